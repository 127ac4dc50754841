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

// Package pipeline runs packets through a graph of modules.
//
// Modules are connected from an output gate to an input gate of another
// module. The graph may contain cycles. Packets are processed in batches,
// run to completion: after a module processed a batch, the batches it
// emitted are processed by the connected modules, depth first.
//
// Modules declare the metadata attributes they access. After the graph or
// the declarations change, ComputeMetadataOffsets must run before packets
// are processed again.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/metadata"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

var (
	// ErrStalePlan indicates that the metadata plan does not reflect the
	// current graph.
	ErrStalePlan = errors.New("metadata offsets not computed for current graph")
	// ErrInvalidArgument indicates a bad module or link declaration.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates an unknown module.
	ErrNotFound = errors.New("module not found")
	// ErrExists indicates a duplicate module name.
	ErrExists = errors.New("module exists")
)

// Options configure a Pipeline.
type Options struct {
	// Metadata bounds attribute declarations and the scratch area.
	Metadata metadata.Options
	// Logger defaults to the root logger.
	Logger log.Logger
	// Metrics are optional.
	Metrics *Metrics
	// PlanMetrics are optional.
	PlanMetrics *metadata.Metrics
}

// Pipeline is a graph of modules. Packet processing and control operations
// are serialized.
type Pipeline struct {
	mu sync.Mutex

	modules  []*Module
	byName   map[string]int
	registry *metadata.Registry
	planner  metadata.Planner
	opts     metadata.Options
	plan     *metadata.Plan
	stale    bool

	scratchSize int
	logger      log.Logger
	metrics     *Metrics
}

// New creates an empty pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = log.Root()
	}
	mopts := opts.Metadata
	if mopts.TotalSize <= 0 {
		mopts.TotalSize = metadata.DefaultTotalSize
	}
	return &Pipeline{
		byName:   make(map[string]int),
		registry: metadata.NewRegistry(),
		planner: metadata.Planner{
			Options: mopts,
			Logger:  logger,
			Metrics: opts.PlanMetrics,
		},
		opts:        mopts,
		scratchSize: mopts.TotalSize,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// Do runs fn serialized with packet processing.
func (p *Pipeline) Do(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn()
}

// AddModule adds a module running proc. If proc is an Initializer, Init is
// called before AddModule returns and the module is discarded if it fails.
func (p *Pipeline) AddModule(name, class string, proc Processor) (*Module, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == "" {
		return nil, serrors.JoinNoStack(ErrInvalidArgument, nil, "reason", "empty name")
	}
	if _, ok := p.byName[name]; ok {
		return nil, serrors.JoinNoStack(ErrExists, nil, "module", name)
	}
	m := &Module{
		name:   name,
		class:  class,
		index:  len(p.modules),
		proc:   proc,
		p:      p,
		Attrs:  metadata.NewAttrTable(p.opts, p.registry),
		ogates: make([]*link, MaxGates),
		logger: p.logger.New("module", name),
	}
	p.modules = append(p.modules, m)
	p.byName[name] = m.index
	p.stale = true
	if init, ok := proc.(Initializer); ok {
		if err := init.Init(m); err != nil {
			m.Attrs.Release()
			p.modules = p.modules[:m.index]
			delete(p.byName, name)
			return nil, serrors.Wrap("initializing module", err, "module", name, "class", class)
		}
	}
	p.metrics.register(m)
	return m, nil
}

// Connect links output gate ogate of module from to input gate igate of
// module to. An output gate carries at most one link.
func (p *Pipeline) Connect(from string, ogate int, to string, igate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fm, err := p.lookup(from)
	if err != nil {
		return err
	}
	tm, err := p.lookup(to)
	if err != nil {
		return err
	}
	if ogate < 0 || ogate >= MaxGates || igate < 0 || igate >= MaxGates {
		return serrors.JoinNoStack(ErrInvalidArgument, nil, "ogate", ogate, "igate", igate)
	}
	if fm.ogates[ogate] != nil {
		return serrors.JoinNoStack(ErrInvalidArgument, nil, "module", from, "ogate", ogate,
			"reason", "gate already connected")
	}
	fm.ogates[ogate] = &link{to: tm.index, igate: igate}
	p.stale = true
	return nil
}

// Disconnect removes the link of output gate ogate of module from.
func (p *Pipeline) Disconnect(from string, ogate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fm, err := p.lookup(from)
	if err != nil {
		return err
	}
	if ogate < 0 || ogate >= MaxGates || fm.ogates[ogate] == nil {
		return serrors.JoinNoStack(ErrInvalidArgument, nil, "module", from, "ogate", ogate,
			"reason", "gate not connected")
	}
	fm.ogates[ogate] = nil
	p.stale = true
	return nil
}

// Module returns the module with the given name.
func (p *Pipeline) Module(name string) (*Module, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.lookup(name)
	return m, err == nil
}

// Modules returns the modules in index order.
func (p *Pipeline) Modules() []*Module {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Module(nil), p.modules...)
}

func (p *Pipeline) lookup(name string) (*Module, error) {
	i, ok := p.byName[name]
	if !ok {
		return nil, serrors.JoinNoStack(ErrNotFound, nil, "module", name)
	}
	return p.modules[i], nil
}

// ComputeMetadataOffsets plans the metadata layout for the current graph
// and stores the offsets in the attribute tables of the modules.
func (p *Pipeline) ComputeMetadataOffsets() (*metadata.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	plan, err := p.planner.ComputeOffsets(graph{p: p})
	if err != nil {
		return nil, serrors.Wrap("computing metadata offsets", err)
	}
	p.plan = plan
	p.stale = false
	p.logger.Info("Metadata offsets computed", "components", len(plan.Components),
		"scratch_bytes", plan.ScratchBytes, "orphans", len(plan.Orphans),
		"duration", time.Since(start))
	return plan, nil
}

// Plan returns the last computed metadata plan and whether it is current.
func (p *Pipeline) Plan() (*metadata.Plan, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plan, p.plan != nil && !p.stale
}

// Process runs b through the graph starting at module name.
func (p *Pipeline) Process(name string, b *Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stale {
		return ErrStalePlan
	}
	m, err := p.lookup(name)
	if err != nil {
		return err
	}
	p.dispatch(m, b, 0, time.Now())
	return nil
}

// NewPacket wraps data into a packet with a zeroed scratch area.
func (p *Pipeline) NewPacket(data []byte) *Packet {
	return &Packet{Data: data, Meta: metadata.NewBuffer(p.scratchSize)}
}

// Run polls the source modules until all of them are exhausted or ctx is
// done.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.stale {
		p.mu.Unlock()
		return ErrStalePlan
	}
	var sources []*Module
	for _, m := range p.modules {
		if _, ok := m.proc.(Source); ok {
			sources = append(sources, m)
		}
	}
	p.mu.Unlock()

	p.logger.Info("Running pipeline", "sources", len(sources))
	active := make([]bool, len(sources))
	for i := range active {
		active[i] = true
	}
	for remaining := len(sources); remaining > 0; {
		for i, m := range sources {
			if !active[i] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil
			}
			more, err := p.poll(m)
			if err != nil {
				return err
			}
			if !more {
				active[i] = false
				remaining--
				p.logger.Debug("Source exhausted", "module", m.name)
			}
		}
	}
	return nil
}

func (p *Pipeline) poll(m *Module) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stale {
		return false, ErrStalePlan
	}
	b := getBatch()
	defer putBatch(b)
	c := &Context{p: p, m: m, now: time.Now()}
	more := m.proc.(Source).NextBatch(c, b)
	if b.Len() > 0 {
		p.dispatch(m, b, 0, c.now)
	}
	return more, nil
}

// dispatch processes b at module m and then, depth first, the batches m
// emitted.
func (p *Pipeline) dispatch(m *Module, b *Batch, depth int, now time.Time) {
	c := &Context{p: p, m: m, depth: depth, now: now}
	if depth >= maxDepth {
		for _, pkt := range b.Pkts {
			c.drop(pkt, DropLoop)
		}
		return
	}
	m.processed.Add(uint64(b.Len()))
	p.metrics.processed(m, b.Len())
	m.proc.ProcessBatch(c, b)
	for _, gate := range c.used {
		out := c.outs[gate]
		next := p.modules[m.ogates[gate].to]
		p.dispatch(next, out, depth+1, now)
		putBatch(out)
	}
}

// Close deinitializes all modules.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.modules {
		if d, ok := m.proc.(Deinitializer); ok {
			d.Deinit()
		}
	}
}

// graph exposes the pipeline to the metadata planner. The pipeline lock
// must be held.
type graph struct {
	p *Pipeline
}

func (g graph) NumModules() int { return len(g.p.modules) }

func (g graph) ModuleName(m int) string { return g.p.modules[m].name }

func (g graph) Attrs(m int) []metadata.Attribute { return g.p.modules[m].Attrs.Attrs() }

func (g graph) Downstream(m int) []int { return g.p.modules[m].downstream() }

func (g graph) Upstream(m int) []int {
	var up []int
	for _, from := range g.p.modules {
		for _, l := range from.ogates {
			if l != nil && l.to == m {
				up = append(up, from.index)
				break
			}
		}
	}
	return up
}

func (g graph) SetOffset(m, attr int, off metadata.Offset) {
	g.p.modules[m].Attrs.SetOffset(attr, off)
}
