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
	"github.com/pktpipe/pktpipe/pkg/htable"
)

// TableEntry maps a lookup key to an output gate. The key format depends on
// the module, e.g. a MAC address or a hex string.
type TableEntry struct {
	Key  string `json:"key" toml:"key"`
	Gate int    `json:"gate" toml:"gate"`
}

// Table is implemented by processors that forward based on a lookup table.
// The methods must be called through Pipeline.WithTable.
type Table interface {
	Entries() []TableEntry
	AddEntries(entries []TableEntry) error
	DeleteEntry(key string) error
	// Clear removes all entries.
	Clear()
	// DefaultGate is the gate of packets without a matching entry. A
	// negative gate drops them.
	DefaultGate() int
	SetDefaultGate(gate int) error
	TableStats() htable.Stats
}

// FrameLookup is implemented by tables that can resolve a raw frame without
// running it through the pipeline.
type FrameLookup interface {
	// LookupFrame returns the gate frame would be emitted on and whether it
	// would be forwarded at all.
	LookupFrame(frame []byte) (gate int, forwarded bool, err error)
}
