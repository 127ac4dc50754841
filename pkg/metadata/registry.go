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
	"sort"
	"sync"

	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

type registration struct {
	size int
	refs int
}

// Registry tracks the attribute names in use in a pipeline. A name has one
// size pipeline wide.
type Registry struct {
	mu    sync.Mutex
	attrs map[string]*registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{attrs: make(map[string]*registration)}
}

// Register adds a reference to name. It fails with ErrSizeMismatch if the
// name is registered with another size.
func (r *Registry) Register(name string, size int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.attrs[name]; ok {
		if reg.size != size {
			return serrors.JoinNoStack(ErrSizeMismatch, nil, "name", name,
				"registered", reg.size, "requested", size)
		}
		reg.refs++
		return nil
	}
	r.attrs[name] = &registration{size: size, refs: 1}
	return nil
}

// Deregister drops a reference to name. The name is forgotten with its last
// reference.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.attrs[name]
	if !ok {
		return
	}
	reg.refs--
	if reg.refs <= 0 {
		delete(r.attrs, name)
	}
}

// Size returns the registered size of name.
func (r *Registry) Size(name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.attrs[name]
	if !ok {
		return 0, false
	}
	return reg.size, true
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.attrs))
	for n := range r.attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
