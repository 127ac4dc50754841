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
	"math/bits"

	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

const (
	// InitNumBuckets is the bucket count used by New.
	InitNumBuckets = 4
	// InitNumEntries is the entry arena size used by New.
	InitNumEntries = 16
	// MaxAlign is the largest supported key or value alignment.
	MaxAlign = 64
)

// Params configures a Table. Zero values for Hasher, KeyComparator and
// Allocator select CRC32C, BytesEqual and HeapAllocator.
type Params struct {
	KeySize   int
	ValueSize int
	// KeyAlign is the alignment of whole entries, in bytes.
	KeyAlign int
	// ValueAlign is the alignment of the value within an entry, in bytes.
	ValueAlign int
	// NumBuckets is the initial bucket count. Must be a power of two.
	NumBuckets int
	// NumEntries is the initial entry arena size. Must be at least
	// EntriesPerBucket.
	NumEntries int
	// HashSeed is passed to the hasher. Zero selects DefaultHashSeed.
	HashSeed uint32

	Hasher        Hasher
	KeyComparator KeyComparator
	Allocator     Allocator
}

// DefaultParams returns the parameters New uses for the given sizes. The
// value alignment is the largest of 8, 4, 2 and 1 that divides valueSize.
func DefaultParams(keySize, valueSize int) Params {
	return Params{
		KeySize:    keySize,
		ValueSize:  valueSize,
		KeyAlign:   1,
		ValueAlign: valueAlignFor(valueSize),
		NumBuckets: InitNumBuckets,
		NumEntries: InitNumEntries,
	}
}

func valueAlignFor(valueSize int) int {
	switch {
	case valueSize%8 == 0:
		return 8
	case valueSize%4 == 0:
		return 4
	case valueSize%2 == 0:
		return 2
	default:
		return 1
	}
}

// Validate checks the parameters. Errors wrap ErrInvalidArgument.
func (p Params) Validate() error {
	invalid := func(param string, value int) error {
		return serrors.JoinNoStack(ErrInvalidArgument, nil, "param", param, "value", value)
	}
	switch {
	case p.KeySize < 1:
		return invalid("key_size", p.KeySize)
	case p.ValueSize < 0:
		return invalid("value_size", p.ValueSize)
	case p.KeyAlign < 1 || p.KeyAlign > MaxAlign:
		return invalid("key_align", p.KeyAlign)
	case p.ValueAlign < 0 || p.ValueAlign > MaxAlign:
		return invalid("value_align", p.ValueAlign)
	case p.ValueSize > 0 && p.ValueAlign < 1:
		return invalid("value_align", p.ValueAlign)
	case p.NumBuckets < 1 || bits.OnesCount(uint(p.NumBuckets)) != 1:
		return invalid("num_buckets", p.NumBuckets)
	case p.NumBuckets > MaxNumBuckets:
		return invalid("num_buckets", p.NumBuckets)
	case p.NumEntries < EntriesPerBucket || p.NumEntries > int(InvalidKeyIndex):
		return invalid("num_entries", p.NumEntries)
	}
	return nil
}

func (p Params) withDefaults() Params {
	if p.Hasher == nil {
		p.Hasher = CRC32C{}
	}
	if p.KeyComparator == nil {
		p.KeyComparator = BytesEqual{}
	}
	if p.Allocator == nil {
		p.Allocator = HeapAllocator{}
	}
	if p.HashSeed == 0 {
		p.HashSeed = DefaultHashSeed
	}
	return p
}

// layout returns the value offset and the entry size.
func (p Params) layout() (valueOffset, entrySize int) {
	valueAlign := max(p.ValueAlign, 1)
	valueOffset = alignUp(p.KeySize, valueAlign)
	entrySize = alignUp(valueOffset+p.ValueSize, p.KeyAlign)
	return valueOffset, entrySize
}

func alignUp(x, align int) int {
	return (x + align - 1) / align * align
}
