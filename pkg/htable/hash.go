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

package htable

import (
	"bytes"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashSeed is the initial value passed to the Hasher.
const DefaultHashSeed = ^uint32(0)

// Hasher hashes keys. Implementations must be deterministic for a given
// key and seed.
type Hasher interface {
	Hash(key []byte, seed uint32) uint32
}

// KeyComparator compares two keys of the table's key size.
type KeyComparator interface {
	Equal(a, b []byte) bool
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C hashes with the Castagnoli polynomial, which the crc32 package
// accelerates with SSE4.2 and ARMv8 CRC instructions.
type CRC32C struct{}

func (CRC32C) Hash(key []byte, seed uint32) uint32 {
	return crc32.Update(seed, castagnoli, key)
}

// XXHash folds the 64-bit xxHash of the key into 32 bits.
type XXHash struct{}

func (XXHash) Hash(key []byte, seed uint32) uint32 {
	h := xxhash.Sum64(key)
	return uint32(h) ^ uint32(h>>32) ^ seed
}

// BytesEqual compares keys byte by byte.
type BytesEqual struct{}

func (BytesEqual) Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// makeNonzero sets bit 31 and clears bit 30, so the result is never zero
// and applying it twice is the same as applying it once.
func makeNonzero(h uint32) uint32 {
	return (h | 1<<31) &^ (1 << 30)
}

// secondary derives the alternate hash from a tag alone.
func secondary(tag uint32) uint32 {
	return tag ^ (((tag >> 12) + 1) * 0x5bd1e995)
}
