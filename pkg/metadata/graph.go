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
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

// Graph is the module graph the Planner works on. Modules are addressed by
// index in [0, NumModules()). The graph may contain cycles.
type Graph interface {
	NumModules() int
	ModuleName(m int) string
	// Attrs returns the declared attributes of module m in index order.
	Attrs(m int) []Attribute
	// Downstream returns the modules connected to the output gates of m.
	Downstream(m int) []int
	// Upstream returns the modules connected to the input gates of m.
	Upstream(m int) []int
	// SetOffset stores the offset of attribute attr of module m.
	SetOffset(m, attr int, off Offset)
}

// snapshot is a validated copy of the graph structure.
type snapshot struct {
	names []string
	attrs [][]Attribute
	down  [][]int
	up    [][]int
}

func takeSnapshot(g Graph, opts Options) (*snapshot, error) {
	n := g.NumModules()
	s := &snapshot{
		names: make([]string, n),
		attrs: make([][]Attribute, n),
		down:  make([][]int, n),
		up:    make([][]int, n),
	}
	checkEdges := func(m int, dir string, edges []int) error {
		for _, o := range edges {
			if o < 0 || o >= n {
				return serrors.JoinNoStack(ErrInvalidArgument, nil, "module", g.ModuleName(m),
					"direction", dir, "peer", o)
			}
		}
		return nil
	}
	for m := 0; m < n; m++ {
		s.names[m] = g.ModuleName(m)
		s.attrs[m] = g.Attrs(m)
		if len(s.attrs[m]) > opts.MaxAttrsPerModule {
			return nil, serrors.JoinNoStack(ErrResourceExhausted, nil, "module", s.names[m],
				"attrs", len(s.attrs[m]))
		}
		for _, a := range s.attrs[m] {
			if err := opts.checkAttr(a); err != nil {
				return nil, serrors.Wrap("bad attribute", err, "module", s.names[m])
			}
		}
		s.down[m] = g.Downstream(m)
		s.up[m] = g.Upstream(m)
		if err := checkEdges(m, "downstream", s.down[m]); err != nil {
			return nil, err
		}
		if err := checkEdges(m, "upstream", s.up[m]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// findAttr returns the index of the first attribute of m matching name and
// size, or -1.
func (s *snapshot) findAttr(m int, name string, size int) int {
	for i, a := range s.attrs[m] {
		if a.Name == name && a.Size == size {
			return i
		}
	}
	return -1
}
