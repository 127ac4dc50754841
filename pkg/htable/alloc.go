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
	"sync"

	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

// Allocator provides the backing memory of a Table.
//
// Alloc returns a zeroed buffer of the given size. Realloc returns a buffer
// of the new size holding the old contents up to the smaller of both sizes,
// with any growth zeroed; on failure the old buffer stays valid. Free
// releases a buffer previously returned by Alloc or Realloc.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Realloc(buf []byte, size int) ([]byte, error)
	Free(buf []byte)
}

// HeapAllocator allocates from the Go heap.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (HeapAllocator) Realloc(buf []byte, size int) ([]byte, error) {
	if size <= cap(buf) {
		old := len(buf)
		buf = buf[:size]
		if size > old {
			clear(buf[old:])
		}
		return buf, nil
	}
	n := make([]byte, size)
	copy(n, buf)
	return n, nil
}

// Free leaves the buffer to the garbage collector.
func (HeapAllocator) Free([]byte) {}

// LimitAllocator fails allocations once Limit bytes are in use. It is safe
// for concurrent use, so several tables can share one budget.
type LimitAllocator struct {
	// Limit is the byte budget.
	Limit int
	// Allocator is the underlying allocator. Nil selects HeapAllocator.
	Allocator Allocator

	mu   sync.Mutex
	used int
}

// NewLimitAllocator returns an allocator with the given budget on top of
// the heap.
func NewLimitAllocator(limit int) *LimitAllocator {
	return &LimitAllocator{Limit: limit}
}

func (a *LimitAllocator) backend() Allocator {
	if a.Allocator == nil {
		return HeapAllocator{}
	}
	return a.Allocator
}

func (a *LimitAllocator) reserve(n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.used+n > a.Limit {
		return serrors.JoinNoStack(ErrNoMemory, nil,
			"requested", n, "used", a.used, "limit", a.Limit)
	}
	a.used += n
	return nil
}

func (a *LimitAllocator) release(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used -= n
}

func (a *LimitAllocator) Alloc(size int) ([]byte, error) {
	if err := a.reserve(size); err != nil {
		return nil, err
	}
	buf, err := a.backend().Alloc(size)
	if err != nil {
		a.release(size)
		return nil, err
	}
	return buf, nil
}

func (a *LimitAllocator) Realloc(buf []byte, size int) ([]byte, error) {
	delta := size - len(buf)
	if delta > 0 {
		if err := a.reserve(delta); err != nil {
			return nil, err
		}
	}
	n, err := a.backend().Realloc(buf, size)
	if err != nil {
		if delta > 0 {
			a.release(delta)
		}
		return nil, err
	}
	if delta < 0 {
		a.release(-delta)
	}
	return n, nil
}

func (a *LimitAllocator) Free(buf []byte) {
	a.release(len(buf))
	a.backend().Free(buf)
}

// Used returns the number of bytes currently allocated.
func (a *LimitAllocator) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}
