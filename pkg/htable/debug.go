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
	"fmt"
	"io"

	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

// Stats is a snapshot of the table's occupancy and growth counters.
type Stats struct {
	Count      int `json:"count"`
	NumBuckets int `json:"num_buckets"`
	NumEntries int `json:"num_entries"`
	// InPrimary is the number of keys stored in their primary bucket.
	InPrimary   int    `json:"in_primary"`
	BucketGrows uint64 `json:"bucket_grows"`
	EntryGrows  uint64 `json:"entry_grows"`
	Relocations uint64 `json:"relocations"`
}

// Occupancy is the fraction of bucket slots in use.
func (s Stats) Occupancy() float64 {
	if s.NumBuckets == 0 {
		return 0
	}
	return float64(s.Count) / float64(s.NumBuckets*EntriesPerBucket)
}

// PrimaryRatio is the fraction of keys stored in their primary bucket.
func (s Stats) PrimaryRatio() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.InPrimary) / float64(s.Count)
}

func (s Stats) String() string {
	return fmt.Sprintf("count: %d, buckets: %d, entries: %d, occupancy: %.1f%%, "+
		"in primary: %.1f%%, bucket grows: %d, entry grows: %d, relocations: %d",
		s.Count, s.NumBuckets, s.NumEntries, 100*s.Occupancy(), 100*s.PrimaryRatio(),
		s.BucketGrows, s.EntryGrows, s.Relocations)
}

// Stats returns the current statistics.
func (t *Table) Stats() Stats {
	s := Stats{
		Count:       t.count,
		NumBuckets:  t.NumBuckets(),
		NumEntries:  t.numEntries,
		BucketGrows: t.stats.bucketGrows,
		EntryGrows:  t.stats.entryGrows,
		Relocations: t.stats.relocations,
	}
	var cursor uint32
	for {
		b, slot, ok := t.next(&cursor)
		if !ok {
			break
		}
		if t.tag(b, slot)&t.bucketMask == b {
			s.InPrimary++
		}
	}
	return s
}

// Dump writes the statistics to w. With detail, every occupied slot is
// listed with its tag, entry index and key.
func (t *Table) Dump(w io.Writer, detail bool) error {
	if _, err := fmt.Fprintln(w, t.Stats()); err != nil {
		return err
	}
	if !detail {
		return nil
	}
	for b := uint32(0); b < uint32(t.NumBuckets()); b++ {
		for s := 0; s < EntriesPerBucket; s++ {
			tag := t.tag(b, s)
			if tag == 0 {
				continue
			}
			idx := t.slotIndex(b, s)
			_, err := fmt.Fprintf(w, "%6d/%d tag=%08x idx=%-6d key=%x primary=%v\n",
				b, s, tag, idx, t.key(idx), tag&t.bucketMask == b)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// checkInvariants verifies the structural invariants of the table.
func (t *Table) checkInvariants() error {
	used := make(map[KeyIndex]bool)
	occupied := 0
	for b := uint32(0); b < uint32(t.NumBuckets()); b++ {
		for s := 0; s < EntriesPerBucket; s++ {
			tag := t.tag(b, s)
			if tag == 0 {
				continue
			}
			occupied++
			if makeNonzero(tag) != tag {
				return serrors.New("tag not normalized", "bucket", b, "slot", s, "tag", tag)
			}
			if tag&t.bucketMask != b && secondary(tag)&t.bucketMask != b {
				return serrors.New("key in wrong bucket", "bucket", b, "slot", s, "tag", tag)
			}
			idx := t.slotIndex(b, s)
			if idx < 0 || int(idx) >= t.numEntries {
				return serrors.New("index out of range", "bucket", b, "slot", s, "idx", idx)
			}
			if used[idx] {
				return serrors.New("index referenced twice", "idx", idx)
			}
			used[idx] = true
			if makeNonzero(t.params.Hasher.Hash(t.key(idx), t.params.HashSeed)) != tag {
				return serrors.New("tag does not match key", "bucket", b, "slot", s)
			}
		}
	}
	if occupied != t.count {
		return serrors.New("count mismatch", "occupied", occupied, "count", t.count)
	}
	free := 0
	for idx := t.freeHead; idx != InvalidKeyIndex; idx = t.links[idx] {
		if idx < 0 || int(idx) >= t.numEntries {
			return serrors.New("free index out of range", "idx", idx)
		}
		if used[idx] {
			return serrors.New("free index in use", "idx", idx)
		}
		used[idx] = true
		free++
	}
	if free+occupied != t.numEntries {
		return serrors.New("entries leaked", "free", free, "occupied", occupied,
			"entries", t.numEntries)
	}
	return nil
}
