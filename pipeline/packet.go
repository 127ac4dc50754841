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
	"sync"

	"github.com/pktpipe/pktpipe/pkg/metadata"
)

// MaxBatchSize is the maximum number of packets sources put in a batch.
const MaxBatchSize = 32

// Packet is a frame travelling through the pipeline together with its
// metadata scratch area.
type Packet struct {
	Data []byte
	Meta metadata.Buffer
}

// Batch is a group of packets processed together.
type Batch struct {
	Pkts []*Packet
}

// NewBatch returns an empty batch with room for MaxBatchSize packets.
func NewBatch() *Batch {
	return &Batch{Pkts: make([]*Packet, 0, MaxBatchSize)}
}

// Add appends p.
func (b *Batch) Add(p *Packet) {
	b.Pkts = append(b.Pkts, p)
}

// Len returns the number of packets in the batch.
func (b *Batch) Len() int { return len(b.Pkts) }

// Full reports whether a source batch reached MaxBatchSize.
func (b *Batch) Full() bool { return len(b.Pkts) >= MaxBatchSize }

// Reset empties the batch.
func (b *Batch) Reset() {
	clear(b.Pkts)
	b.Pkts = b.Pkts[:0]
}

var batchPool = sync.Pool{
	New: func() any { return NewBatch() },
}

func getBatch() *Batch {
	return batchPool.Get().(*Batch)
}

func putBatch(b *Batch) {
	b.Reset()
	batchPool.Put(b)
}
