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

// Package metadata plans the layout of per-packet metadata.
//
// Modules declare the attributes they read, write or update. The Planner
// groups the accesses of one attribute that see the same value into scope
// components by walking the module graph, and assigns each component a byte
// range of the per-packet scratch area. Components that never share a module
// may share storage. At runtime modules only look up the offset of their own
// attribute index and access the Buffer there.
package metadata

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

var (
	// ErrInvalidArgument indicates a malformed attribute declaration or
	// graph.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrResourceExhausted indicates that a module declared too many
	// attributes.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrSizeMismatch indicates that an attribute name is already
	// registered with another size.
	ErrSizeMismatch = errors.New("attribute size mismatch")
)

// AccessMode is the way a module accesses an attribute.
type AccessMode uint8

const (
	Read AccessMode = iota
	Write
	Update
)

func (m AccessMode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("AccessMode(%d)", uint8(m))
	}
}

// Valid reports whether m is one of Read, Write and Update.
func (m AccessMode) Valid() bool {
	return m <= Update
}

// reads reports whether the access consumes the value written upstream.
func (m AccessMode) reads() bool {
	return m == Read || m == Update
}

// ParseAccessMode parses "read", "write" or "update".
func ParseAccessMode(s string) (AccessMode, error) {
	switch strings.ToLower(s) {
	case "read", "r":
		return Read, nil
	case "write", "w":
		return Write, nil
	case "update", "rw":
		return Update, nil
	}
	return 0, serrors.JoinNoStack(ErrInvalidArgument, nil, "mode", s)
}

func (m AccessMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, serrors.JoinNoStack(ErrInvalidArgument, nil, "mode", uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *AccessMode) UnmarshalText(b []byte) error {
	v, err := ParseAccessMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Attribute is an attribute declaration of a module.
type Attribute struct {
	Name string     `json:"name"`
	Size int        `json:"size"`
	Mode AccessMode `json:"mode"`
}

func (a Attribute) String() string {
	return fmt.Sprintf("%s/%d(%s)", a.Name, a.Size, a.Mode)
}

// Offset is the position of an attribute in the scratch area. Negative
// values are sentinels.
type Offset int16

const (
	// OffsetNoReader marks a write nobody downstream reads. The write can be
	// skipped.
	OffsetNoReader Offset = -1
	// OffsetNoWriter marks a read of an attribute nobody upstream writes.
	// Reads see zero bytes.
	OffsetNoWriter Offset = -2
	// OffsetNoSpace marks an access whose component did not fit in the
	// scratch area.
	OffsetNoSpace Offset = -3
	// OffsetUnassigned marks an access declared after the last planning.
	OffsetUnassigned Offset = -4
)

// Valid reports whether o is a real offset.
func (o Offset) Valid() bool {
	return o >= 0
}

func (o Offset) String() string {
	switch o {
	case OffsetNoReader:
		return "no_reader"
	case OffsetNoWriter:
		return "no_writer"
	case OffsetNoSpace:
		return "no_space"
	case OffsetUnassigned:
		return "unassigned"
	}
	return fmt.Sprint(int16(o))
}

// Options bounds attribute declarations and the scratch area.
type Options struct {
	MaxAttrNameLen    int
	MaxAttrSize       int
	MaxAttrsPerModule int
	TotalSize         int
}

const (
	DefaultMaxAttrNameLen    = 32
	DefaultMaxAttrSize       = 32
	DefaultMaxAttrsPerModule = 16
	DefaultTotalSize         = 96
)

// DefaultOptions returns the default limits.
func DefaultOptions() Options {
	return Options{
		MaxAttrNameLen:    DefaultMaxAttrNameLen,
		MaxAttrSize:       DefaultMaxAttrSize,
		MaxAttrsPerModule: DefaultMaxAttrsPerModule,
		TotalSize:         DefaultTotalSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttrNameLen <= 0 {
		o.MaxAttrNameLen = d.MaxAttrNameLen
	}
	if o.MaxAttrSize <= 0 {
		o.MaxAttrSize = d.MaxAttrSize
	}
	if o.MaxAttrsPerModule <= 0 {
		o.MaxAttrsPerModule = d.MaxAttrsPerModule
	}
	if o.TotalSize <= 0 {
		o.TotalSize = d.TotalSize
	}
	// Offsets are int16.
	o.TotalSize = min(o.TotalSize, math.MaxInt16)
	return o
}

func (o Options) checkAttr(a Attribute) error {
	switch {
	case a.Name == "" || len(a.Name) > o.MaxAttrNameLen:
		return serrors.JoinNoStack(ErrInvalidArgument, nil, "name", a.Name,
			"max_len", o.MaxAttrNameLen)
	case a.Size < 1 || a.Size > o.MaxAttrSize:
		return serrors.JoinNoStack(ErrInvalidArgument, nil, "name", a.Name, "size", a.Size,
			"max_size", o.MaxAttrSize)
	case !a.Mode.Valid():
		return serrors.JoinNoStack(ErrInvalidArgument, nil, "name", a.Name, "mode", a.Mode)
	}
	return nil
}

// AttrTable holds the attribute declarations of one module together with
// the offsets assigned to them.
type AttrTable struct {
	opts     Options
	registry *Registry
	attrs    []Attribute
	offsets  []Offset
}

// NewAttrTable creates an empty table. If registry is not nil, declared
// names are registered there and must agree on their size pipeline wide.
func NewAttrTable(opts Options, registry *Registry) *AttrTable {
	return &AttrTable{opts: opts.withDefaults(), registry: registry}
}

// Add declares an attribute and returns its index. The offset of the new
// attribute is OffsetUnassigned until the next planning.
func (t *AttrTable) Add(name string, size int, mode AccessMode) (int, error) {
	if len(t.attrs) >= t.opts.MaxAttrsPerModule {
		return -1, serrors.JoinNoStack(ErrResourceExhausted, nil, "name", name,
			"max_attrs", t.opts.MaxAttrsPerModule)
	}
	a := Attribute{Name: name, Size: size, Mode: mode}
	if err := t.opts.checkAttr(a); err != nil {
		return -1, err
	}
	if t.registry != nil {
		if err := t.registry.Register(name, size); err != nil {
			return -1, err
		}
	}
	t.attrs = append(t.attrs, a)
	t.offsets = append(t.offsets, OffsetUnassigned)
	return len(t.attrs) - 1, nil
}

// Len returns the number of declared attributes.
func (t *AttrTable) Len() int { return len(t.attrs) }

// Attr returns the declaration at index i.
func (t *AttrTable) Attr(i int) Attribute { return t.attrs[i] }

// Attrs returns the declarations in index order. The slice must not be
// modified.
func (t *AttrTable) Attrs() []Attribute { return t.attrs }

// Offset returns the offset of attribute i.
func (t *AttrTable) Offset(i int) Offset { return t.offsets[i] }

// SetOffset sets the offset of attribute i.
func (t *AttrTable) SetOffset(i int, off Offset) { t.offsets[i] = off }

// Index returns the index of the attribute with the given name, or -1.
func (t *AttrTable) Index(name string) int {
	for i, a := range t.attrs {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Release drops all declarations and their registry references.
func (t *AttrTable) Release() {
	if t.registry != nil {
		for _, a := range t.attrs {
			t.registry.Deregister(a.Name)
		}
	}
	t.attrs, t.offsets = nil, nil
}
