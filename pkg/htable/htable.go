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

// Package htable implements a cuckoo hash table with fixed size keys and
// values.
//
// Every key has two candidate buckets of EntriesPerBucket slots, derived from
// a single non-zero hash tag. A slot stores the tag and an index into a
// separate entry arena holding the key and value bytes, so relocating a key
// between buckets only moves the slot. The arena grows by half its size when
// the free list runs dry; the bucket array doubles when neither candidate
// bucket nor a bounded eviction search yields a free slot.
//
// A Table is not safe for concurrent use. Concurrent Get calls are fine as
// long as no mutating call runs at the same time.
package htable

import (
	"encoding/binary"
	"errors"
	"iter"
	"math"

	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

const (
	// EntriesPerBucket is the number of slots in a bucket.
	EntriesPerBucket = 4
	// MaxCuckooPath bounds the depth of the eviction search.
	MaxCuckooPath = 3
	// MaxNumBuckets is the largest bucket count a table grows to.
	MaxNumBuckets = 1 << 28

	slotSize   = 8
	bucketSize = EntriesPerBucket * slotSize
)

var (
	// ErrInvalidArgument indicates bad table parameters or a key or value
	// of the wrong size.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates that the key is not in the table.
	ErrNotFound = errors.New("not found")
	// ErrNoMemory indicates that the allocator could not provide memory.
	ErrNoMemory = errors.New("out of memory")
)

// KeyIndex addresses an entry in the entry arena.
type KeyIndex int32

// InvalidKeyIndex terminates the free list.
const InvalidKeyIndex KeyIndex = math.MaxInt32

// SetResult tells whether Set inserted a new key or updated an existing one.
type SetResult int

const (
	Inserted SetResult = iota
	Updated
)

func (r SetResult) String() string {
	if r == Updated {
		return "updated"
	}
	return "inserted"
}

// Table is a cuckoo hash table. Construct it with New or NewWithParams.
type Table struct {
	// buckets holds numBuckets*EntriesPerBucket slots of (tag uint32,
	// index int32) in native byte order.
	buckets []byte
	entries []byte
	// links[i] is the next free index if entry i is free. It is meaningless
	// for occupied entries.
	links      []KeyIndex
	freeHead   KeyIndex
	bucketMask uint32
	numEntries int
	count      int

	keySize     int
	valueSize   int
	valueOffset int
	entrySize   int

	params Params
	stats  growStats
}

type growStats struct {
	bucketGrows uint64
	entryGrows  uint64
	relocations uint64
}

// New creates a table with automatic value alignment and the initial
// capacity given by InitNumBuckets and InitNumEntries.
func New(keySize, valueSize int) (*Table, error) {
	return NewWithParams(DefaultParams(keySize, valueSize))
}

// NewWithParams creates a table with explicit parameters. Errors wrap
// ErrInvalidArgument or ErrNoMemory.
func NewWithParams(p Params) (*Table, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p = p.withDefaults()
	valueOffset, entrySize := p.layout()
	t := &Table{
		bucketMask:  uint32(p.NumBuckets - 1),
		numEntries:  p.NumEntries,
		keySize:     p.KeySize,
		valueSize:   p.ValueSize,
		valueOffset: valueOffset,
		entrySize:   entrySize,
		params:      p,
	}
	var err error
	if t.buckets, err = p.Allocator.Alloc(p.NumBuckets * bucketSize); err != nil {
		return nil, serrors.Wrap("allocating buckets", err, "buckets", p.NumBuckets)
	}
	if t.entries, err = p.Allocator.Alloc(p.NumEntries * entrySize); err != nil {
		p.Allocator.Free(t.buckets)
		return nil, serrors.Wrap("allocating entries", err, "entries", p.NumEntries)
	}
	t.links = make([]KeyIndex, p.NumEntries)
	t.freeHead = InvalidKeyIndex
	t.threadFree(0, p.NumEntries)
	return t, nil
}

// threadFree pushes indices [from, to) onto the free list so that they are
// popped in ascending order.
func (t *Table) threadFree(from, to int) {
	for i := to - 1; i >= from; i-- {
		t.links[i] = t.freeHead
		t.freeHead = KeyIndex(i)
	}
}

// Hash returns the non-zero hash tag of key, suitable for GetHash.
func (t *Table) Hash(key []byte) uint32 {
	return makeNonzero(t.params.Hasher.Hash(key, t.params.HashSeed))
}

// Get returns the value stored for key. The returned slice aliases the
// table's storage and is valid until the next mutating call.
func (t *Table) Get(key []byte) ([]byte, bool) {
	if len(key) != t.keySize {
		return nil, false
	}
	return t.GetHash(t.Hash(key), key)
}

// GetHash is like Get with a hash previously computed by Hash.
func (t *Table) GetHash(hash uint32, key []byte) ([]byte, bool) {
	if len(key) != t.keySize || t.buckets == nil {
		return nil, false
	}
	b, s, ok := t.find(makeNonzero(hash), key)
	if !ok {
		return nil, false
	}
	return t.value(t.slotIndex(b, s)), true
}

// Set inserts or updates key. It fails with ErrNoMemory if the table needs
// to grow and the allocator cannot provide the memory, or if both candidate
// buckets already hold 2*EntriesPerBucket keys of the same hash tag. The
// table is left as it was before the call in either case.
func (t *Table) Set(key, value []byte) (SetResult, error) {
	if len(key) != t.keySize || len(value) != t.valueSize {
		return 0, serrors.JoinNoStack(ErrInvalidArgument, nil,
			"key_size", len(key), "value_size", len(value))
	}
	tag := t.Hash(key)
	if b, s, ok := t.find(tag, key); ok {
		copy(t.value(t.slotIndex(b, s)), value)
		return Updated, nil
	}
	for {
		ok, err := t.insert(tag, key, value)
		if err != nil {
			return 0, err
		}
		if ok {
			return Inserted, nil
		}
		if t.saturated(tag) {
			return 0, serrors.JoinNoStack(ErrNoMemory, nil, "reason", "hash collision",
				"tag", tag, "buckets", t.NumBuckets())
		}
		if err := t.growBuckets(); err != nil {
			return 0, err
		}
	}
}

// Del removes key. It returns ErrNotFound if the key is not present.
func (t *Table) Del(key []byte) error {
	if len(key) != t.keySize {
		return serrors.JoinNoStack(ErrInvalidArgument, nil, "key_size", len(key))
	}
	b, s, ok := t.find(t.Hash(key), key)
	if !ok {
		return ErrNotFound
	}
	t.freeSlot(b, s)
	return nil
}

// Iterate returns the key in the next occupied slot at or after *cursor and
// advances the cursor past it. Start with a zero cursor. The returned key
// aliases the table's storage. Mutating the table during an iteration
// leads to undefined results.
func (t *Table) Iterate(cursor *uint32) ([]byte, bool) {
	b, s, ok := t.next(cursor)
	if !ok {
		return nil, false
	}
	return t.key(t.slotIndex(b, s)), true
}

// All iterates over all key value pairs in bucket and slot order.
func (t *Table) All() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		var cursor uint32
		for {
			b, s, ok := t.next(&cursor)
			if !ok {
				return
			}
			idx := t.slotIndex(b, s)
			if !yield(t.key(idx), t.value(idx)) {
				return
			}
		}
	}
}

func (t *Table) next(cursor *uint32) (uint32, int, bool) {
	total := uint32(t.NumBuckets() * EntriesPerBucket)
	for i := *cursor; i < total; i++ {
		b, s := i/EntriesPerBucket, int(i%EntriesPerBucket)
		if t.tag(b, s) != 0 {
			*cursor = i + 1
			return b, s, true
		}
	}
	*cursor = total
	return 0, 0, false
}

// Clear deletes every entry. Capacity is kept.
func (t *Table) Clear() {
	var cursor uint32
	for {
		b, s, ok := t.next(&cursor)
		if !ok {
			return
		}
		t.freeSlot(b, s)
	}
}

// Close releases the table's storage. The table must not be used
// afterwards.
func (t *Table) Close() {
	if t.buckets == nil {
		return
	}
	t.params.Allocator.Free(t.buckets)
	t.params.Allocator.Free(t.entries)
	t.buckets, t.entries, t.links = nil, nil, nil
	t.bucketMask, t.numEntries, t.count = 0, 0, 0
	t.freeHead = InvalidKeyIndex
}

// Count returns the number of keys in the table.
func (t *Table) Count() int { return t.count }

// NumBuckets returns the current bucket count.
func (t *Table) NumBuckets() int {
	if t.buckets == nil {
		return 0
	}
	return int(t.bucketMask) + 1
}

// NumEntries returns the current size of the entry arena.
func (t *Table) NumEntries() int { return t.numEntries }

// KeySize returns the key size in bytes.
func (t *Table) KeySize() int { return t.keySize }

// ValueSize returns the value size in bytes.
func (t *Table) ValueSize() int { return t.valueSize }

// Slot access.

func (t *Table) slotOffset(b uint32, s int) int {
	return int(b)*bucketSize + s*slotSize
}

func (t *Table) tag(b uint32, s int) uint32 {
	return binary.NativeEndian.Uint32(t.buckets[t.slotOffset(b, s):])
}

func (t *Table) slotIndex(b uint32, s int) KeyIndex {
	return KeyIndex(binary.NativeEndian.Uint32(t.buckets[t.slotOffset(b, s)+4:]))
}

func (t *Table) setSlot(b uint32, s int, tag uint32, idx KeyIndex) {
	off := t.slotOffset(b, s)
	binary.NativeEndian.PutUint32(t.buckets[off:], tag)
	binary.NativeEndian.PutUint32(t.buckets[off+4:], uint32(idx))
}

func (t *Table) emptySlot(b uint32) int {
	for s := 0; s < EntriesPerBucket; s++ {
		if t.tag(b, s) == 0 {
			return s
		}
	}
	return -1
}

// Entry access.

func (t *Table) key(idx KeyIndex) []byte {
	off := int(idx) * t.entrySize
	return t.entries[off : off+t.keySize : off+t.keySize]
}

func (t *Table) value(idx KeyIndex) []byte {
	off := int(idx)*t.entrySize + t.valueOffset
	return t.entries[off : off+t.valueSize : off+t.valueSize]
}

func (t *Table) findInBucket(b uint32, tag uint32, key []byte) (int, bool) {
	for s := 0; s < EntriesPerBucket; s++ {
		if t.tag(b, s) == tag && t.params.KeyComparator.Equal(t.key(t.slotIndex(b, s)), key) {
			return s, true
		}
	}
	return 0, false
}

func (t *Table) find(tag uint32, key []byte) (uint32, int, bool) {
	b := tag & t.bucketMask
	if s, ok := t.findInBucket(b, tag, key); ok {
		return b, s, true
	}
	b = secondary(tag) & t.bucketMask
	if s, ok := t.findInBucket(b, tag, key); ok {
		return b, s, true
	}
	return 0, 0, false
}

// saturated reports whether both candidate buckets of tag are filled with
// keys of that very tag. Both buckets depend on the tag only, so no bucket
// count separates those keys.
func (t *Table) saturated(tag uint32) bool {
	primary, alt := tag&t.bucketMask, secondary(tag)&t.bucketMask
	if primary == alt {
		return false
	}
	for _, b := range [2]uint32{primary, alt} {
		for s := 0; s < EntriesPerBucket; s++ {
			if t.tag(b, s) != tag {
				return false
			}
		}
	}
	return true
}

// altBucket returns the other candidate bucket of an occupant of bucket b.
func (t *Table) altBucket(b uint32, tag uint32) uint32 {
	if tag&t.bucketMask == b {
		return secondary(tag) & t.bucketMask
	}
	return tag & t.bucketMask
}

func (t *Table) freeSlot(b uint32, s int) {
	t.pushFree(t.slotIndex(b, s))
	t.setSlot(b, s, 0, 0)
	t.count--
}

// Free list.

func (t *Table) popFree() (KeyIndex, error) {
	if t.freeHead == InvalidKeyIndex {
		if err := t.growEntries(); err != nil {
			return InvalidKeyIndex, err
		}
	}
	idx := t.freeHead
	t.freeHead = t.links[idx]
	return idx, nil
}

func (t *Table) pushFree(idx KeyIndex) {
	t.links[idx] = t.freeHead
	t.freeHead = idx
}

// growEntries grows the entry arena by half, and by at least one entry.
func (t *Table) growEntries() error {
	old := t.numEntries
	n := max(old+old/2, old+1)
	if n > int(InvalidKeyIndex) {
		return serrors.JoinNoStack(ErrNoMemory, nil, "entries", n)
	}
	entries, err := t.params.Allocator.Realloc(t.entries, n*t.entrySize)
	if err != nil {
		return serrors.Wrap("growing entries", err, "from", old, "to", n)
	}
	t.entries = entries
	t.links = append(t.links, make([]KeyIndex, n-old)...)
	t.numEntries = n
	t.threadFree(old, n)
	t.stats.entryGrows++
	return nil
}

// Insertion.

// insert stores key and value in a fresh entry and places it in a bucket.
// It reports false, with the free list restored, if no slot could be made
// available.
func (t *Table) insert(tag uint32, key, value []byte) (bool, error) {
	idx, err := t.popFree()
	if err != nil {
		return false, err
	}
	copy(t.key(idx), key)
	copy(t.value(idx), value)
	if !t.addEntry(tag, idx) {
		t.pushFree(idx)
		return false, nil
	}
	t.count++
	return true, nil
}

func (t *Table) addEntry(tag uint32, idx KeyIndex) bool {
	primary := tag & t.bucketMask
	alt := secondary(tag) & t.bucketMask
	for _, b := range [2]uint32{primary, alt} {
		if s := t.emptySlot(b); s >= 0 {
			t.setSlot(b, s, tag, idx)
			return true
		}
	}
	for _, b := range [2]uint32{primary, alt} {
		if s := t.makeSpace(b, 0); s >= 0 {
			t.setSlot(b, s, tag, idx)
			return true
		}
	}
	return false
}

// makeSpace tries to empty a slot of the full bucket b by moving one of its
// occupants to that occupant's other bucket, recursing at most
// MaxCuckooPath levels. It returns the emptied slot or -1.
func (t *Table) makeSpace(b uint32, depth int) int {
	if s := t.emptySlot(b); s >= 0 {
		return s
	}
	if depth >= MaxCuckooPath {
		return -1
	}
	for s := 0; s < EntriesPerBucket; s++ {
		tag := t.tag(b, s)
		alt := t.altBucket(b, tag)
		if alt == b {
			continue
		}
		if free := t.emptySlot(alt); free >= 0 {
			t.move(b, s, alt, free)
			return s
		}
	}
	for s := 0; s < EntriesPerBucket; s++ {
		alt := t.altBucket(b, t.tag(b, s))
		if alt == b {
			continue
		}
		free := t.makeSpace(alt, depth+1)
		if free < 0 {
			continue
		}
		// The recursion may have rearranged bucket b.
		tag := t.tag(b, s)
		if tag == 0 {
			return s
		}
		if t.altBucket(b, tag) != alt {
			continue
		}
		t.move(b, s, alt, free)
		return s
	}
	return -1
}

func (t *Table) move(fromB uint32, fromS int, toB uint32, toS int) {
	t.setSlot(toB, toS, t.tag(fromB, fromS), t.slotIndex(fromB, fromS))
	t.setSlot(fromB, fromS, 0, 0)
	t.stats.relocations++
}

// growBuckets replaces the table with one of twice the bucket count. The
// replacement is built completely before anything is swapped, so on error
// the table is unchanged.
func (t *Table) growBuckets() error {
	n := 2 * t.NumBuckets()
	if n > MaxNumBuckets {
		return serrors.JoinNoStack(ErrNoMemory, nil, "buckets", n)
	}
	nt, err := t.clone(n)
	if err != nil {
		return serrors.Wrap("growing buckets", err, "from", t.NumBuckets(), "to", n)
	}
	nt.stats = t.stats
	nt.stats.bucketGrows++
	old := *t
	*t = *nt
	old.Close()
	return nil
}

func (t *Table) clone(numBuckets int) (*Table, error) {
	p := t.params
	p.NumBuckets = numBuckets
	p.NumEntries = t.numEntries
	nt, err := NewWithParams(p)
	if err != nil {
		return nil, err
	}
	var cursor uint32
	for {
		b, s, ok := t.next(&cursor)
		if !ok {
			return nt, nil
		}
		idx := t.slotIndex(b, s)
		if err := nt.setTagged(t.tag(b, s), t.key(idx), t.value(idx)); err != nil {
			nt.Close()
			return nil, err
		}
	}
}

// setTagged inserts a key known to be absent.
func (t *Table) setTagged(tag uint32, key, value []byte) error {
	for {
		ok, err := t.insert(tag, key, value)
		if err != nil || ok {
			return err
		}
		if err := t.growBuckets(); err != nil {
			return err
		}
	}
}
