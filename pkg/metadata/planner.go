// Copyright 2026 The pktpipe Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metadata

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/private/prom"
)

// Access identifies attribute Attr of module Module.
type Access struct {
	Module int `json:"module"`
	Attr   int `json:"attr"`
}

// Component is a scope component: the accesses of one attribute that see
// the value of the same writes, and the modules the value passes through.
type Component struct {
	Attr string `json:"attr"`
	Size int    `json:"size"`
	// Members are the module indices in ascending order.
	Members []int    `json:"members"`
	Writers []Access `json:"writers"`
	Readers []Access `json:"readers"`
	// Invalid is set if some path into a member carries no writer.
	Invalid bool   `json:"invalid"`
	Offset  Offset `json:"offset"`
}

// Orphan is a read access without a writer.
type Orphan struct {
	Access
	ModuleName string `json:"module_name"`
	AttrName   string `json:"attr_name"`
}

// Plan is the result of a planning run.
type Plan struct {
	// Components in discovery order.
	Components []Component `json:"components"`
	// Offsets holds the offset of every access, indexed by module and
	// attribute index.
	Offsets [][]Offset `json:"offsets"`
	Orphans []Orphan   `json:"orphans"`
	// ScratchBytes is the end of the highest assigned byte range.
	ScratchBytes int `json:"scratch_bytes"`
	TotalSize    int `json:"total_size"`
}

// Offset returns the offset of attribute attr of module m.
func (p *Plan) Offset(m, attr int) Offset {
	return p.Offsets[m][attr]
}

// Planner computes metadata offsets. The zero value uses DefaultOptions and
// the root logger.
type Planner struct {
	Options Options
	Logger  log.Logger
	Metrics *Metrics
}

// ComputeOffsets plans the scratch area layout for g and publishes every
// offset through g.SetOffset. Offsets are only published if the whole
// computation succeeds. Readers without a writer are logged and returned in
// the plan, they are not an error.
func (p *Planner) ComputeOffsets(g Graph) (*Plan, error) {
	opts := p.Options.withDefaults()
	logger := p.Logger
	if logger == nil {
		logger = log.Root()
	}
	s, err := takeSnapshot(g, opts)
	if err != nil {
		p.Metrics.observe(prom.ErrInvalidReq, nil)
		return nil, err
	}

	c := newPlanContext(s)
	c.discover()
	comps := c.components()
	plan := &Plan{
		Components: comps,
		Offsets:    c.offsets(),
		TotalSize:  opts.TotalSize,
	}
	plan.ScratchBytes = pack(plan, c.memberSets(comps), opts.TotalSize)
	for _, comp := range plan.Components {
		if !comp.needsSpace() {
			// Accesses keep their reset sentinels.
			continue
		}
		for _, a := range comp.Writers {
			plan.Offsets[a.Module][a.Attr] = comp.Offset
		}
		for _, a := range comp.Readers {
			plan.Offsets[a.Module][a.Attr] = comp.Offset
		}
	}

	for m, attrs := range s.attrs {
		for i, a := range attrs {
			if a.Mode.reads() && plan.Offsets[m][i] == OffsetNoWriter {
				o := Orphan{Access: Access{Module: m, Attr: i}, ModuleName: s.names[m],
					AttrName: a.Name}
				plan.Orphans = append(plan.Orphans, o)
				logger.Warn("Metadata attribute read without upstream writer",
					"module", o.ModuleName, "attr", a.Name, "size", a.Size)
			}
		}
	}

	for m := range plan.Offsets {
		for i, off := range plan.Offsets[m] {
			g.SetOffset(m, i, off)
		}
	}
	if logger.Enabled(log.DebugLevel) {
		for _, comp := range plan.Components {
			logger.Debug("Metadata scope component", "attr", comp.Attr, "size", comp.Size,
				"members", comp.Members, "offset", comp.Offset, "invalid", comp.Invalid)
		}
	}
	p.Metrics.observe(prom.Success, plan)
	return plan, nil
}

// planContext holds the state of one planning run.
type planContext struct {
	s *snapshot
	// owner[m][i] is the raw component claiming access (m, i), or -1.
	owner [][]int
	comps []*rawComponent
	// parent links raw components merged because they met on an access.
	parent []int
}

type rawComponent struct {
	name        string
	size        int
	members     *bitset.BitSet
	visitedDown *bitset.BitSet
	visitedUp   *bitset.BitSet
	invalid     bool
}

func newPlanContext(s *snapshot) *planContext {
	c := &planContext{s: s, owner: make([][]int, len(s.attrs))}
	for m, attrs := range s.attrs {
		c.owner[m] = make([]int, len(attrs))
		for i := range attrs {
			c.owner[m][i] = -1
		}
	}
	return c
}

// discover starts a component at every write access not claimed yet, in
// module and attribute order.
func (c *planContext) discover() {
	for m, attrs := range c.s.attrs {
		for i, a := range attrs {
			if a.Mode != Write || c.owner[m][i] != -1 {
				continue
			}
			n := uint(len(c.s.attrs))
			c.comps = append(c.comps, &rawComponent{
				name:        a.Name,
				size:        a.Size,
				members:     bitset.New(n),
				visitedDown: bitset.New(n),
				visitedUp:   bitset.New(n),
			})
			c.parent = append(c.parent, len(c.parent))
			c.identify(len(c.comps)-1, m, i)
		}
	}
}

// identify adds the write access (m, i) to component id and follows the
// value downstream.
func (c *planContext) identify(id, m, i int) {
	c.claim(id, m, i)
	c.comps[id].members.Set(uint(m))
	for _, d := range c.s.down[m] {
		c.traverseDownstream(id, d)
	}
}

// traverseDownstream reports whether the value of component id is live in
// module m, adding m to the component if so.
func (c *planContext) traverseDownstream(id, m int) bool {
	comp := c.comps[id]
	if comp.visitedDown.Test(uint(m)) {
		return comp.members.Test(uint(m))
	}
	comp.visitedDown.Set(uint(m))

	if i := c.s.findAttr(m, comp.name, comp.size); i >= 0 {
		if c.s.attrs[m][i].Mode == Write {
			// Overwritten here, any later reader belongs to another component.
			return false
		}
		c.claim(id, m, i)
		comp.members.Set(uint(m))
		for _, d := range c.s.down[m] {
			c.traverseDownstream(id, d)
		}
		c.traverseUpstream(id, m)
		return true
	}

	inScope := false
	for _, d := range c.s.down[m] {
		if c.traverseDownstream(id, d) {
			inScope = true
		}
	}
	if inScope {
		comp.members.Set(uint(m))
		c.traverseUpstream(id, m)
	}
	return inScope
}

// traverseUpstream walks against the edges from a module the value of
// component id passes through, pulling in every writer feeding it.
func (c *planContext) traverseUpstream(id, m int) {
	comp := c.comps[id]
	comp.members.Set(uint(m))
	if i := c.s.findAttr(m, comp.name, comp.size); i >= 0 {
		if c.s.attrs[m][i].Mode == Write {
			if c.owner[m][i] == -1 {
				c.identify(id, m, i)
			} else {
				c.union(id, c.owner[m][i])
			}
			return
		}
		c.claim(id, m, i)
	}
	if comp.visitedUp.Test(uint(m)) {
		return
	}
	comp.visitedUp.Set(uint(m))
	if len(c.s.up[m]) == 0 {
		comp.invalid = true
		return
	}
	for _, u := range c.s.up[m] {
		c.traverseUpstream(id, u)
	}
}

func (c *planContext) claim(id, m, i int) {
	if o := c.owner[m][i]; o != -1 {
		c.union(id, o)
		return
	}
	c.owner[m][i] = id
}

func (c *planContext) find(id int) int {
	for c.parent[id] != id {
		c.parent[id] = c.parent[c.parent[id]]
		id = c.parent[id]
	}
	return id
}

// union merges two components, the one discovered first survives.
func (c *planContext) union(a, b int) {
	ra, rb := c.find(a), c.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	c.parent[rb] = ra
}

// components folds merged raw components and returns them in discovery
// order with offsets still unset.
func (c *planContext) components() []Component {
	index := make(map[int]int)
	var comps []Component
	for id := range c.comps {
		if c.find(id) != id {
			continue
		}
		index[id] = len(comps)
		comps = append(comps, Component{
			Attr:   c.comps[id].name,
			Size:   c.comps[id].size,
			Offset: OffsetUnassigned,
		})
	}
	members := make([]*bitset.BitSet, len(comps))
	for id, raw := range c.comps {
		k := index[c.find(id)]
		if members[k] == nil {
			members[k] = raw.members.Clone()
		} else {
			members[k].InPlaceUnion(raw.members)
		}
		comps[k].Invalid = comps[k].Invalid || raw.invalid
	}
	for k := range comps {
		for m, ok := members[k].NextSet(0); ok; m, ok = members[k].NextSet(m + 1) {
			comps[k].Members = append(comps[k].Members, int(m))
		}
	}
	for m, owners := range c.owner {
		for i, id := range owners {
			if id == -1 {
				continue
			}
			k := index[c.find(id)]
			a := Access{Module: m, Attr: i}
			if c.s.attrs[m][i].Mode == Write {
				comps[k].Writers = append(comps[k].Writers, a)
			} else {
				comps[k].Readers = append(comps[k].Readers, a)
			}
		}
	}
	return comps
}

func (c *planContext) memberSets(comps []Component) []*bitset.BitSet {
	sets := make([]*bitset.BitSet, len(comps))
	for k, comp := range comps {
		sets[k] = bitset.New(uint(len(c.s.attrs)))
		for _, m := range comp.Members {
			sets[k].Set(uint(m))
		}
	}
	return sets
}

// offsets returns the initial offset table: reads start without a writer,
// writes without a reader.
func (c *planContext) offsets() [][]Offset {
	offs := make([][]Offset, len(c.s.attrs))
	for m, attrs := range c.s.attrs {
		offs[m] = make([]Offset, len(attrs))
		for i, a := range attrs {
			if a.Mode.reads() {
				offs[m][i] = OffsetNoWriter
			} else {
				offs[m][i] = OffsetNoReader
			}
		}
	}
	return offs
}
