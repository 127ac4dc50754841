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
	"time"

	"github.com/pktpipe/pktpipe/pkg/metadata"
)

// Drop reasons.
const (
	DropModule      = "module"
	DropUnconnected = "unconnected"
	DropLoop        = "loop"
)

// maxDepth bounds the dispatch depth so that packets caught in a cycle of
// the graph are dropped.
const maxDepth = 256

// Context is passed to a module while it processes one batch.
type Context struct {
	p     *Pipeline
	m     *Module
	depth int
	now   time.Time
	outs  [MaxGates]*Batch
	used  []int
}

// Module returns the module processing the batch.
func (c *Context) Module() *Module { return c.m }

// Offset returns the metadata offset of the module's attribute attr.
func (c *Context) Offset(attr int) metadata.Offset {
	return c.m.Attrs.Offset(attr)
}

// Now returns the time the current dispatch started.
func (c *Context) Now() time.Time { return c.now }

// NewPacket wraps data into a packet with a zeroed scratch area sized for
// the current plan.
func (c *Context) NewPacket(data []byte) *Packet {
	return &Packet{Data: data, Meta: metadata.NewBuffer(c.p.scratchSize)}
}

// Emit queues pkt on output gate ogate. Packets emitted on unconnected gates
// are dropped.
func (c *Context) Emit(ogate int, pkt *Packet) {
	if ogate < 0 || ogate >= len(c.m.ogates) || c.m.ogates[ogate] == nil {
		c.drop(pkt, DropUnconnected)
		return
	}
	if c.outs[ogate] == nil {
		c.outs[ogate] = getBatch()
		c.used = append(c.used, ogate)
	}
	c.outs[ogate].Add(pkt)
}

// Drop discards pkt.
func (c *Context) Drop(pkt *Packet) {
	c.drop(pkt, DropModule)
}

func (c *Context) drop(_ *Packet, reason string) {
	c.m.dropped.Add(1)
	c.p.metrics.dropped(c.m, reason, 1)
}
