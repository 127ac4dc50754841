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
	"math/bits"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// needsSpace reports whether the component carries a value from a writer to
// a reader.
func (c *Component) needsSpace() bool {
	return !c.Invalid && len(c.Readers) > 0
}

type span struct {
	start, end int
}

// pack assigns offsets to the components of plan and returns the number of
// scratch bytes used. Components conflict if they share a module. Conflict
// groups are walked depth first, starting with the components with the most
// conflicts, and each component is placed at the lowest aligned offset that
// does not overlap an already placed conflicting component.
func pack(plan *Plan, members []*bitset.BitSet, total int) int {
	comps := plan.Components
	n := len(comps)
	adj := make([][]int, n)
	for i := 0; i < n; i++ {
		if !comps[i].needsSpace() {
			continue
		}
		for j := i + 1; j < n; j++ {
			if comps[j].needsSpace() && members[i].IntersectionCardinality(members[j]) > 0 {
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
			}
		}
	}

	var order []int
	for k := range comps {
		if comps[k].needsSpace() {
			order = append(order, k)
			continue
		}
		// Writers fall back to OffsetNoReader, readers of invalid components
		// to OffsetNoWriter.
		comps[k].Offset = OffsetNoReader
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return len(adj[b]) - len(adj[a])
	})

	visited := make([]bool, n)
	seq := make([]int, 0, len(order))
	var visit func(k int)
	visit = func(k int) {
		visited[k] = true
		seq = append(seq, k)
		for _, j := range adj[k] {
			if !visited[j] {
				visit(j)
			}
		}
	}
	for _, k := range order {
		if !visited[k] {
			visit(k)
		}
	}

	placed := make([]bool, n)
	used := 0
	for _, k := range seq {
		var taken []span
		for _, j := range adj[k] {
			if placed[j] {
				off := int(comps[j].Offset)
				taken = append(taken, span{start: off, end: off + comps[j].Size})
			}
		}
		off, ok := firstFit(comps[k].Size, total, taken)
		if !ok {
			comps[k].Offset = OffsetNoSpace
			continue
		}
		comps[k].Offset = Offset(off)
		placed[k] = true
		used = max(used, off+comps[k].Size)
	}
	return used
}

// firstFit returns the lowest offset aligned to the power of two covering
// size at which size bytes fit into [0, total) without overlapping taken.
func firstFit(size, total int, taken []span) (int, bool) {
	align := ceilPow2(size)
	off := 0
	for moved := true; moved; {
		moved = false
		for _, s := range taken {
			if off < s.end && s.start < off+size {
				off = alignUp(s.end, align)
				moved = true
			}
		}
	}
	if off+size > total {
		return 0, false
	}
	return off, true
}

func ceilPow2(v int) int {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(v-1))
}

func alignUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}
