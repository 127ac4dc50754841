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

package modules

import (
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pkg/htable"
	"github.com/pktpipe/pktpipe/pkg/metadata"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

func init() {
	Register("ExactMatch", "forwards packets by exact match on packet and metadata fields",
		newExactMatch)
}

// FieldArgs select a match field. A field is either a metadata attribute or
// a byte range of the packet.
type FieldArgs struct {
	Attr   string `toml:"attr"`
	Offset int    `toml:"offset"`
	Size   int    `toml:"size"`
	// Mask is an optional hex string of Size bytes that is ANDed with the
	// field.
	Mask string `toml:"mask"`
}

type field struct {
	FieldArgs
	attr int
	pos  int
	mask []byte
}

var _ pipeline.Table = (*ExactMatch)(nil)

// ExactMatch concatenates its fields into a key and emits every packet on
// the gate of the matching rule. Rule keys are hex strings of the
// concatenated, masked fields.
type ExactMatch struct {
	fields      []field
	keySize     int
	key         []byte
	t           *htable.Table
	defaultGate int
}

func newExactMatch(args Args, opts Options) (pipeline.Processor, error) {
	var a struct {
		Fields    []FieldArgs `toml:"fields"`
		TableArgs `toml:",squash"`
	}
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if len(a.Fields) == 0 {
		return nil, serrors.JoinNoStack(ErrInvalidArgs, nil, "arg", "fields", "reason", "required")
	}
	e := &ExactMatch{defaultGate: a.DefaultGate}
	for _, fa := range a.Fields {
		f := field{FieldArgs: fa, pos: e.keySize, attr: -1}
		if fa.Size <= 0 || (fa.Attr == "" && fa.Offset < 0) {
			return nil, serrors.JoinNoStack(ErrInvalidArgs, nil, "field", fa.Attr,
				"offset", fa.Offset, "size", fa.Size)
		}
		if fa.Mask != "" {
			m, err := hex.DecodeString(strings.TrimPrefix(fa.Mask, "0x"))
			if err != nil || len(m) != fa.Size {
				return nil, serrors.JoinNoStack(ErrInvalidArgs, err, "mask", fa.Mask)
			}
			f.mask = m
		}
		e.fields = append(e.fields, f)
		e.keySize += fa.Size
	}
	e.key = make([]byte, e.keySize)
	params, err := a.params(e.keySize, opts)
	if err != nil {
		return nil, err
	}
	if e.t, err = htable.NewWithParams(params); err != nil {
		return nil, serrors.Wrap("creating table", err)
	}
	if err := e.AddEntries(a.Entries); err != nil {
		e.t.Close()
		return nil, err
	}
	return e, nil
}

func (e *ExactMatch) Init(m *pipeline.Module) error {
	for i := range e.fields {
		f := &e.fields[i]
		if f.Attr == "" {
			continue
		}
		idx, err := m.AddMetadataAttr(f.Attr, f.Size, metadata.Read)
		if err != nil {
			return err
		}
		f.attr = idx
	}
	return nil
}

// extract fills e.key from pkt. It returns false if the packet is too short
// for a packet field.
func (e *ExactMatch) extract(ctx *pipeline.Context, pkt *pipeline.Packet) bool {
	for i := range e.fields {
		f := &e.fields[i]
		dst := e.key[f.pos : f.pos+f.Size]
		if f.attr >= 0 {
			if src := pkt.Meta.Bytes(ctx.Offset(f.attr), f.Size); src != nil {
				copy(dst, src)
			} else {
				clear(dst)
			}
		} else {
			if len(pkt.Data) < f.Offset+f.Size {
				return false
			}
			copy(dst, pkt.Data[f.Offset:f.Offset+f.Size])
		}
		for j, m := range f.mask {
			dst[j] &= m
		}
	}
	return true
}

func (e *ExactMatch) ProcessBatch(ctx *pipeline.Context, b *pipeline.Batch) {
	for _, pkt := range b.Pkts {
		if !e.extract(ctx, pkt) {
			ctx.Drop(pkt)
			continue
		}
		gate := e.defaultGate
		if v, ok := e.t.Get(e.key); ok {
			gate = int(binary.LittleEndian.Uint16(v))
		}
		if gate < 0 {
			ctx.Drop(pkt)
			continue
		}
		ctx.Emit(gate, pkt)
	}
}

func (e *ExactMatch) parseKey(s string) ([]byte, error) {
	k, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(k) != e.keySize {
		return nil, serrors.JoinNoStack(ErrInvalidArgs, err, "key", s, "key_size", e.keySize)
	}
	for _, f := range e.fields {
		for j, m := range f.mask {
			k[f.pos+j] &= m
		}
	}
	return k, nil
}

// AddEntries adds or updates rules. Keys are masked like packet fields.
func (e *ExactMatch) AddEntries(entries []pipeline.TableEntry) error {
	keys := make([][]byte, 0, len(entries))
	for _, en := range entries {
		k, err := e.parseKey(en.Key)
		if err != nil {
			return err
		}
		if err := checkGate(en.Gate); err != nil {
			return err
		}
		keys = append(keys, k)
	}
	for i, en := range entries {
		if _, err := e.t.Set(keys[i], gateValue(en.Gate)); err != nil {
			return serrors.Wrap("adding rule", err, "key", en.Key)
		}
	}
	return nil
}

// DeleteEntry removes a rule.
func (e *ExactMatch) DeleteEntry(key string) error {
	k, err := e.parseKey(key)
	if err != nil {
		return err
	}
	return e.t.Del(k)
}

// Entries returns the rules sorted by key.
func (e *ExactMatch) Entries() []pipeline.TableEntry {
	var entries []pipeline.TableEntry
	for k, v := range e.t.All() {
		entries = append(entries, pipeline.TableEntry{
			Key:  hex.EncodeToString(k),
			Gate: int(binary.LittleEndian.Uint16(v)),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// Clear removes all rules.
func (e *ExactMatch) Clear() { e.t.Clear() }

func (e *ExactMatch) DefaultGate() int { return e.defaultGate }

// SetDefaultGate sets the gate of packets no rule matches.
func (e *ExactMatch) SetDefaultGate(gate int) error {
	if err := checkDefaultGate(gate); err != nil {
		return err
	}
	e.defaultGate = gate
	return nil
}

func (e *ExactMatch) TableStats() htable.Stats { return e.t.Stats() }

func (e *ExactMatch) Deinit() {
	e.t.Close()
}
