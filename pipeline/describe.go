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
	"errors"

	"github.com/pktpipe/pktpipe/pkg/metadata"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

var (
	// ErrNotTable indicates that a module has no lookup table.
	ErrNotTable = errors.New("module has no table")
	// ErrUnsupported indicates that a table does not support an operation.
	ErrUnsupported = errors.New("operation not supported")
)

// AttrInfo is an attribute declaration with its current offset.
type AttrInfo struct {
	metadata.Attribute
	Offset metadata.Offset `json:"offset"`
}

// ModuleInfo is a snapshot of a module.
type ModuleInfo struct {
	Name   string     `json:"name"`
	Class  string     `json:"class"`
	Index  int        `json:"index"`
	Attrs  []AttrInfo `json:"attrs"`
	OGates []OGate    `json:"ogates"`
	Stats  Stats      `json:"stats"`
	// Table is set if the module implements Table.
	Table bool `json:"table"`
}

func (m *Module) describe() ModuleInfo {
	info := ModuleInfo{
		Name:   m.name,
		Class:  m.class,
		Index:  m.index,
		Attrs:  make([]AttrInfo, 0, m.Attrs.Len()),
		OGates: m.OGates(),
		Stats:  m.Stats(),
	}
	if info.OGates == nil {
		info.OGates = []OGate{}
	}
	for i, a := range m.Attrs.Attrs() {
		info.Attrs = append(info.Attrs, AttrInfo{Attribute: a, Offset: m.Attrs.Offset(i)})
	}
	_, info.Table = m.proc.(Table)
	return info
}

// Describe returns a snapshot of all modules in index order.
func (p *Pipeline) Describe() []ModuleInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	infos := make([]ModuleInfo, 0, len(p.modules))
	for _, m := range p.modules {
		infos = append(infos, m.describe())
	}
	return infos
}

// DescribeModule returns a snapshot of the named module.
func (p *Pipeline) DescribeModule(name string) (ModuleInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.lookup(name)
	if err != nil {
		return ModuleInfo{}, err
	}
	return m.describe(), nil
}

// WithTable runs fn on the table of the named module, serialized with
// packet processing.
func (p *Pipeline) WithTable(name string, fn func(Table) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.lookup(name)
	if err != nil {
		return err
	}
	t, ok := m.proc.(Table)
	if !ok {
		return serrors.JoinNoStack(ErrNotTable, nil, "module", name, "class", m.class)
	}
	return fn(t)
}
