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
	"bytes"
	"encoding/binary"
	"net"
	"slices"

	"github.com/mdlayher/ethernet"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pkg/htable"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

const (
	macLen  = 6
	gateLen = 2
)

func init() {
	Register("L2Forward", "forwards frames by destination MAC address", newL2Forward)
}

// TableArgs configure the hash table of a table driven module.
type TableArgs struct {
	// Size is the initial number of buckets. It is rounded up to a power of
	// two.
	Size int `toml:"size"`
	// MemoryLimit bounds the table memory in bytes. Zero means unlimited.
	MemoryLimit int `toml:"memory_limit"`
	// Hasher is "crc32c" (default) or "xxhash".
	Hasher string `toml:"hasher"`
	// DefaultGate receives packets without a matching entry. A negative
	// value drops them.
	DefaultGate int `toml:"default_gate"`
	// Entries are added at construction.
	Entries []pipeline.TableEntry `toml:"entries"`
}

func (a TableArgs) params(keySize int, opts Options) (htable.Params, error) {
	p := htable.DefaultParams(keySize, gateLen)
	if a.Size > 0 {
		n := htable.InitNumBuckets
		for n < a.Size && n < htable.MaxNumBuckets {
			n <<= 1
		}
		p.NumBuckets = n
		p.NumEntries = n * htable.EntriesPerBucket
	}
	hasher := a.Hasher
	if hasher == "" {
		hasher = opts.Hasher
	}
	switch hasher {
	case "", "crc32c":
	case "xxhash":
		p.Hasher = htable.XXHash{}
	default:
		return p, serrors.JoinNoStack(ErrInvalidArgs, nil, "arg", "hasher", "value", hasher)
	}
	if a.MemoryLimit > 0 {
		p.Allocator = htable.NewLimitAllocator(a.MemoryLimit)
	}
	if err := checkDefaultGate(a.DefaultGate); err != nil {
		return p, serrors.JoinNoStack(ErrInvalidArgs, err, "arg", "default_gate")
	}
	return p, nil
}

func checkGate(gate int) error {
	if gate < 0 || gate >= pipeline.MaxGates {
		return serrors.JoinNoStack(ErrInvalidArgs, nil, "gate", gate)
	}
	return nil
}

// checkDefaultGate is like checkGate but also accepts the negative drop gate.
func checkDefaultGate(gate int) error {
	if gate < 0 {
		return nil
	}
	return checkGate(gate)
}

func gateValue(gate int) []byte {
	var v [gateLen]byte
	binary.LittleEndian.PutUint16(v[:], uint16(gate))
	return v[:]
}

var (
	_ pipeline.Table       = (*L2Forward)(nil)
	_ pipeline.FrameLookup = (*L2Forward)(nil)
)

// L2Forward looks up the destination MAC address of every frame and emits
// it on the gate of the matching entry.
type L2Forward struct {
	t           *htable.Table
	defaultGate int
}

func newL2Forward(args Args, opts Options) (pipeline.Processor, error) {
	var a TableArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	params, err := a.params(macLen, opts)
	if err != nil {
		return nil, err
	}
	t, err := htable.NewWithParams(params)
	if err != nil {
		return nil, serrors.Wrap("creating table", err)
	}
	l := &L2Forward{t: t, defaultGate: a.DefaultGate}
	if err := l.AddEntries(a.Entries); err != nil {
		t.Close()
		return nil, err
	}
	return l, nil
}

func (l *L2Forward) ProcessBatch(ctx *pipeline.Context, b *pipeline.Batch) {
	for _, pkt := range b.Pkts {
		if len(pkt.Data) < macLen {
			ctx.Drop(pkt)
			continue
		}
		gate := l.defaultGate
		if v, ok := l.t.Get(pkt.Data[:macLen]); ok {
			gate = int(binary.LittleEndian.Uint16(v))
		}
		if gate < 0 {
			ctx.Drop(pkt)
			continue
		}
		ctx.Emit(gate, pkt)
	}
}

func parseMAC(s string) ([]byte, error) {
	mac, err := net.ParseMAC(s)
	if err != nil || len(mac) != macLen {
		return nil, serrors.JoinNoStack(ErrInvalidArgs, err, "addr", s)
	}
	return mac, nil
}

// AddEntries adds or updates entries keyed by MAC address. Entries are
// validated before any of them is added.
func (l *L2Forward) AddEntries(entries []pipeline.TableEntry) error {
	keys := make([][]byte, 0, len(entries))
	for _, e := range entries {
		mac, err := parseMAC(e.Key)
		if err != nil {
			return err
		}
		if err := checkGate(e.Gate); err != nil {
			return err
		}
		keys = append(keys, mac)
	}
	for i, e := range entries {
		if _, err := l.t.Set(keys[i], gateValue(e.Gate)); err != nil {
			return serrors.Wrap("adding entry", err, "addr", e.Key)
		}
	}
	return nil
}

// DeleteEntry removes the entry of a MAC address.
func (l *L2Forward) DeleteEntry(key string) error {
	mac, err := parseMAC(key)
	if err != nil {
		return err
	}
	return l.t.Del(mac)
}

// Entries returns the entries sorted by address.
func (l *L2Forward) Entries() []pipeline.TableEntry {
	type kv struct {
		mac  []byte
		gate int
	}
	var all []kv
	for k, v := range l.t.All() {
		all = append(all, kv{mac: k, gate: int(binary.LittleEndian.Uint16(v))})
	}
	slices.SortFunc(all, func(a, b kv) int { return bytes.Compare(a.mac, b.mac) })
	entries := make([]pipeline.TableEntry, 0, len(all))
	for _, e := range all {
		entries = append(entries, pipeline.TableEntry{
			Key:  net.HardwareAddr(e.mac).String(),
			Gate: e.gate,
		})
	}
	return entries
}

// Clear removes all entries.
func (l *L2Forward) Clear() { l.t.Clear() }

func (l *L2Forward) DefaultGate() int { return l.defaultGate }

// SetDefaultGate sets the gate of frames with an unknown destination.
func (l *L2Forward) SetDefaultGate(gate int) error {
	if err := checkDefaultGate(gate); err != nil {
		return err
	}
	l.defaultGate = gate
	return nil
}

func (l *L2Forward) TableStats() htable.Stats { return l.t.Stats() }

// LookupFrame parses an ethernet frame and returns the gate its destination
// maps to, or false if the frame would be dropped.
func (l *L2Forward) LookupFrame(frame []byte) (int, bool, error) {
	var f ethernet.Frame
	if err := f.UnmarshalBinary(frame); err != nil {
		return 0, false, serrors.JoinNoStack(ErrInvalidArgs, err)
	}
	gate := l.defaultGate
	if v, ok := l.t.Get(f.Destination); ok {
		gate = int(binary.LittleEndian.Uint16(v))
	}
	return gate, gate >= 0, nil
}

func (l *L2Forward) Deinit() {
	l.t.Close()
}
