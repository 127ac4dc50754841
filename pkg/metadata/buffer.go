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
	"encoding/binary"
)

// Buffer is the per-packet scratch area. Accessors treat sentinel offsets
// and out of range accesses as absent: getters return zero and setters do
// nothing.
type Buffer []byte

// NewBuffer allocates a zeroed scratch area of size bytes.
func NewBuffer(size int) Buffer {
	return make(Buffer, size)
}

// Bytes returns the size bytes at off, or nil.
func (b Buffer) Bytes(off Offset, size int) []byte {
	if !off.Valid() || size < 0 || int(off)+size > len(b) {
		return nil
	}
	return b[int(off) : int(off)+size : int(off)+size]
}

// Reset zeroes the buffer.
func (b Buffer) Reset() {
	clear(b)
}

func (b Buffer) Uint8(off Offset) uint8 {
	if p := b.Bytes(off, 1); p != nil {
		return p[0]
	}
	return 0
}

func (b Buffer) SetUint8(off Offset, v uint8) {
	if p := b.Bytes(off, 1); p != nil {
		p[0] = v
	}
}

func (b Buffer) Uint16(off Offset) uint16 {
	if p := b.Bytes(off, 2); p != nil {
		return binary.NativeEndian.Uint16(p)
	}
	return 0
}

func (b Buffer) SetUint16(off Offset, v uint16) {
	if p := b.Bytes(off, 2); p != nil {
		binary.NativeEndian.PutUint16(p, v)
	}
}

func (b Buffer) Uint32(off Offset) uint32 {
	if p := b.Bytes(off, 4); p != nil {
		return binary.NativeEndian.Uint32(p)
	}
	return 0
}

func (b Buffer) SetUint32(off Offset, v uint32) {
	if p := b.Bytes(off, 4); p != nil {
		binary.NativeEndian.PutUint32(p, v)
	}
}

func (b Buffer) Uint64(off Offset) uint64 {
	if p := b.Bytes(off, 8); p != nil {
		return binary.NativeEndian.Uint64(p)
	}
	return 0
}

func (b Buffer) SetUint64(off Offset, v uint64) {
	if p := b.Bytes(off, 8); p != nil {
		binary.NativeEndian.PutUint64(p, v)
	}
}

// Set copies v to off. Only the first size bytes of v are copied, missing
// bytes are zeroed.
func (b Buffer) Set(off Offset, size int, v []byte) {
	p := b.Bytes(off, size)
	if p == nil {
		return
	}
	n := copy(p, v)
	clear(p[n:])
}
