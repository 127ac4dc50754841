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

package pipeline

import (
	"sync/atomic"

	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/metadata"
)

// MaxGates is the number of output gates of a module.
const MaxGates = 64

// Processor processes the packets of a batch. It hands every packet either
// to Context.Emit or to Context.Drop.
type Processor interface {
	ProcessBatch(ctx *Context, b *Batch)
}

// Initializer is implemented by processors that need to set up state, such
// as metadata attributes, when they are added to a pipeline.
type Initializer interface {
	Init(m *Module) error
}

// Deinitializer is implemented by processors that hold resources.
type Deinitializer interface {
	Deinit()
}

// Source is implemented by processors that generate packets. NextBatch
// fills b and reports whether the source can produce more packets.
type Source interface {
	NextBatch(ctx *Context, b *Batch) bool
}

type link struct {
	to    int
	igate int
}

// Module is a node of the pipeline graph.
type Module struct {
	name  string
	class string
	index int
	proc  Processor
	p     *Pipeline

	// Attrs are the metadata attributes declared by the module.
	Attrs *metadata.AttrTable

	ogates []*link

	processed atomic.Uint64
	dropped   atomic.Uint64
	logger    log.Logger
}

// Name returns the unique module name.
func (m *Module) Name() string { return m.name }

// Class returns the class name the module was created from.
func (m *Module) Class() string { return m.class }

// Index returns the position of the module in the pipeline.
func (m *Module) Index() int { return m.index }

// Processor returns the processor of the module.
func (m *Module) Processor() Processor { return m.proc }

// Logger returns the module logger.
func (m *Module) Logger() log.Logger { return m.logger }

// AddMetadataAttr declares a metadata attribute and returns its index. It
// invalidates the current metadata plan. It must be called from Init or a
// function passed to Pipeline.Do.
func (m *Module) AddMetadataAttr(name string, size int, mode metadata.AccessMode) (int, error) {
	idx, err := m.Attrs.Add(name, size, mode)
	if err != nil {
		return -1, err
	}
	m.p.stale = true
	return idx, nil
}

// OGate is a connected output gate.
type OGate struct {
	Gate  int    `json:"gate"`
	To    string `json:"to"`
	IGate int    `json:"igate"`
}

// OGates returns the connected output gates in gate order.
func (m *Module) OGates() []OGate {
	var gates []OGate
	for i, l := range m.ogates {
		if l == nil {
			continue
		}
		gates = append(gates, OGate{Gate: i, To: m.p.modules[l.to].name, IGate: l.igate})
	}
	return gates
}

// Stats are the packet counters of a module.
type Stats struct {
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
}

// Stats returns the packet counters.
func (m *Module) Stats() Stats {
	return Stats{Processed: m.processed.Load(), Dropped: m.dropped.Load()}
}

func (m *Module) downstream() []int {
	var down []int
	for _, l := range m.ogates {
		if l != nil {
			down = append(down, l.to)
		}
	}
	return down
}
