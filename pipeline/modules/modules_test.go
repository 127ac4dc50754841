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

package modules_test

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/mdlayher/ethernet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pipeline/modules"
	"github.com/pktpipe/pktpipe/pkg/htable"
	"github.com/pktpipe/pktpipe/pkg/log/testlog"
	"github.com/pktpipe/pktpipe/pkg/metrics/v2"
)

var (
	macA = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0a}
	macB = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0b}
	macC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0c}
)

func frame(t *testing.T, dst net.HardwareAddr) []byte {
	f := ethernet.Frame{
		Destination: dst,
		Source:      macC,
		EtherType:   ethernet.EtherTypeIPv4,
		Payload:     []byte("payload"),
	}
	raw, err := f.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func writeCapture(t *testing.T, frames ...[]byte) string {
	path := filepath.Join(t.TempDir(), "in.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Unix(1700000000, 0)
	for _, fr := range frames {
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(fr), Length: len(fr)}
		require.NoError(t, w.WritePacket(ci, fr))
	}
	return path
}

func build(t *testing.T, specs []modules.Spec, links []modules.Link) *pipeline.Pipeline {
	p := pipeline.New(pipeline.Options{Logger: testlog.NewLogger(t)})
	opts := modules.Options{
		Metrics: []metrics.Option{metrics.WithRegistry(prometheus.NewRegistry())},
	}
	require.NoError(t, modules.Build(p, specs, links, opts))
	_, err := p.ComputeMetadataOffsets()
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func processed(t *testing.T, p *pipeline.Pipeline, name string) uint64 {
	m, ok := p.Module(name)
	require.True(t, ok, name)
	return m.Stats().Processed
}

func TestClasses(t *testing.T) {
	var names []string
	for _, c := range modules.Classes() {
		names = append(names, c.Name)
		assert.NotEmpty(t, c.Help)
	}
	assert.Equal(t, []string{"ExactMatch", "L2Forward", "Measure", "SetMetadata", "Sink",
		"Source", "Timestamp"}, names)
}

func TestNew(t *testing.T) {
	testCases := map[string]struct {
		class     string
		args      modules.Args
		assertErr assert.ErrorAssertionFunc
	}{
		"sink": {
			class:     "Sink",
			assertErr: assert.NoError,
		},
		"unknown class": {
			class: "Nope",
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, modules.ErrUnknownClass)
			},
		},
		"unknown arg": {
			class: "Sink",
			args:  modules.Args{"speed": int64(3)},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, modules.ErrInvalidArgs)
			},
		},
		"source without file": {
			class: "Source",
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, modules.ErrInvalidArgs)
			},
		},
		"bad hasher": {
			class: "L2Forward",
			args:  modules.Args{"hasher": "md5"},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, modules.ErrInvalidArgs)
			},
		},
		"metadata value too large": {
			class: "SetMetadata",
			args: modules.Args{"attrs": []any{
				map[string]any{"name": "a", "size": int64(1), "value": int64(256)},
			}},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, modules.ErrInvalidArgs)
			},
		},
		"metadata hex value": {
			class: "SetMetadata",
			args: modules.Args{"attrs": []any{
				map[string]any{"name": "a", "size": int64(3), "value": "0xabcdef"},
			}},
			assertErr: assert.NoError,
		},
		"exact match without fields": {
			class: "ExactMatch",
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, modules.ErrInvalidArgs)
			},
		},
		"exact match bad mask": {
			class: "ExactMatch",
			args: modules.Args{"fields": []any{
				map[string]any{"offset": int64(0), "size": int64(2), "mask": "ff"},
			}},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, modules.ErrInvalidArgs)
			},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := modules.New(tc.class, tc.args, modules.Options{})
			tc.assertErr(t, err)
		})
	}
}

func TestSource(t *testing.T) {
	testCases := map[string]struct {
		loop     int64
		batch    int64
		frames   int
		expected uint64
	}{
		"single pass":      {frames: 5, expected: 5},
		"three passes":     {loop: 3, frames: 5, expected: 15},
		"small batches":    {batch: 2, frames: 7, expected: 7},
		"more than batch":  {frames: 100, expected: 100},
		"empty forever":    {loop: -1, frames: 0, expected: 0},
		"loop with frames": {loop: 2, batch: 3, frames: 4, expected: 8},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var frames [][]byte
			for i := 0; i < tc.frames; i++ {
				frames = append(frames, frame(t, macA))
			}
			path := writeCapture(t, frames...)
			p := build(t, []modules.Spec{
				{Name: "src", Class: "Source", Args: modules.Args{
					"file": path, "loop": tc.loop, "batch": tc.batch,
				}},
				{Name: "sink", Class: "Sink"},
			}, []modules.Link{{From: "src", To: "sink"}})

			require.NoError(t, p.Run(context.Background()))
			assert.Equal(t, tc.expected, processed(t, p, "sink"))
			sink, _ := p.Module("sink")
			assert.Equal(t, tc.expected*uint64(len(frame(t, macA))),
				sink.Processor().(*modules.Sink).Bytes())
		})
	}
}

func TestSourceMissingFile(t *testing.T) {
	p := pipeline.New(pipeline.Options{Logger: testlog.NewLogger(t)})
	err := modules.Build(p, []modules.Spec{
		{Name: "src", Class: "Source", Args: modules.Args{"file": "/does/not/exist.pcap"}},
	}, nil, modules.Options{})
	assert.Error(t, err)
	_, ok := p.Module("src")
	assert.False(t, ok)
}

func TestSetMetadataExactMatch(t *testing.T) {
	var color [2]byte
	binary.NativeEndian.PutUint16(color[:], 7)
	p := build(t, []modules.Spec{
		{Name: "mark", Class: "SetMetadata", Args: modules.Args{"attrs": []any{
			map[string]any{"name": "color", "size": int64(2), "value": int64(7)},
		}}},
		{Name: "em", Class: "ExactMatch", Args: modules.Args{
			"fields": []any{
				map[string]any{"attr": "color", "size": int64(2)},
				map[string]any{"offset": int64(0), "size": int64(6)},
			},
			"default_gate": int64(0),
			"entries": []any{
				map[string]any{
					"key":  hex.EncodeToString(color[:]) + hex.EncodeToString(macA),
					"gate": int64(1),
				},
			},
		}},
		{Name: "miss", Class: "Sink"},
		{Name: "hit", Class: "Sink"},
	}, []modules.Link{
		{From: "mark", To: "em"},
		{From: "em", OGate: 0, To: "miss"},
		{From: "em", OGate: 1, To: "hit"},
	})

	b := pipeline.NewBatch()
	b.Add(p.NewPacket(frame(t, macA)))
	b.Add(p.NewPacket(frame(t, macB)))
	b.Add(p.NewPacket(frame(t, macA)))
	require.NoError(t, p.Process("mark", b))
	assert.Equal(t, uint64(2), processed(t, p, "hit"))
	assert.Equal(t, uint64(1), processed(t, p, "miss"))

	plan, _ := p.Plan()
	require.Len(t, plan.Components, 1)
	assert.Equal(t, []int{0, 1}, plan.Components[0].Members)
	assert.Equal(t, 2, plan.ScratchBytes)
}

func TestExactMatchTable(t *testing.T) {
	proc, err := modules.New("ExactMatch", modules.Args{
		"fields": []any{
			map[string]any{"offset": int64(12), "size": int64(2), "mask": "fff0"},
		},
		"default_gate": int64(-1),
	}, modules.Options{})
	require.NoError(t, err)
	em := proc.(*modules.ExactMatch)
	defer em.Deinit()

	require.NoError(t, em.AddEntries([]pipeline.TableEntry{
		{Key: "0801", Gate: 2},
		{Key: "86dd", Gate: 3},
	}))
	// Keys are masked.
	assert.Equal(t, []pipeline.TableEntry{
		{Key: "0800", Gate: 2},
		{Key: "86d0", Gate: 3},
	}, em.Entries())
	assert.ErrorIs(t, em.AddEntries([]pipeline.TableEntry{{Key: "08", Gate: 1}}),
		modules.ErrInvalidArgs)
	assert.ErrorIs(t, em.AddEntries([]pipeline.TableEntry{{Key: "0800", Gate: 64}}),
		modules.ErrInvalidArgs)
	require.NoError(t, em.DeleteEntry("0800"))
	assert.ErrorIs(t, em.DeleteEntry("0800"), htable.ErrNotFound)
	assert.Equal(t, 1, em.TableStats().Count)
}

func TestExactMatchShortPacket(t *testing.T) {
	p := build(t, []modules.Spec{
		{Name: "em", Class: "ExactMatch", Args: modules.Args{
			"fields": []any{map[string]any{"offset": int64(12), "size": int64(2)}},
		}},
		{Name: "out", Class: "Sink"},
	}, []modules.Link{{From: "em", To: "out"}})

	b := pipeline.NewBatch()
	b.Add(p.NewPacket([]byte{1, 2, 3}))
	b.Add(p.NewPacket(frame(t, macA)))
	require.NoError(t, p.Process("em", b))
	em, _ := p.Module("em")
	assert.Equal(t, pipeline.Stats{Processed: 2, Dropped: 1}, em.Stats())
	assert.Equal(t, uint64(1), processed(t, p, "out"))
}

func TestL2Forward(t *testing.T) {
	entries := []any{
		map[string]any{"key": macA.String(), "gate": int64(1)},
		map[string]any{"key": macB.String(), "gate": int64(2)},
	}
	testCases := map[string]struct {
		args     modules.Args
		dst      net.HardwareAddr
		gate     int
		forwards bool
	}{
		"known a": {
			args: modules.Args{"entries": entries}, dst: macA, gate: 1, forwards: true,
		},
		"known b xxhash": {
			args:     modules.Args{"entries": entries, "hasher": "xxhash"},
			dst:      macB,
			gate:     2,
			forwards: true,
		},
		"unknown default": {
			args: modules.Args{"entries": entries, "default_gate": int64(3)},
			dst:  macC, gate: 3, forwards: true,
		},
		"unknown dropped": {
			args: modules.Args{"entries": entries, "default_gate": int64(-1)},
			dst:  macC, gate: -1,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			proc, err := modules.New("L2Forward", tc.args, modules.Options{})
			require.NoError(t, err)
			l2 := proc.(*modules.L2Forward)
			defer l2.Deinit()

			gate, ok, err := l2.LookupFrame(frame(t, tc.dst))
			require.NoError(t, err)
			assert.Equal(t, tc.forwards, ok)
			assert.Equal(t, tc.gate, gate)
		})
	}
}

func TestL2ForwardPipeline(t *testing.T) {
	p := build(t, []modules.Spec{
		{Name: "fwd", Class: "L2Forward", Args: modules.Args{
			"default_gate": int64(-1),
			"entries": []any{
				map[string]any{"key": macA.String(), "gate": int64(0)},
				map[string]any{"key": macB.String(), "gate": int64(1)},
			},
		}},
		{Name: "a", Class: "Sink"},
		{Name: "b", Class: "Sink"},
	}, []modules.Link{
		{From: "fwd", OGate: 0, To: "a"},
		{From: "fwd", OGate: 1, To: "b"},
	})
	b := pipeline.NewBatch()
	for _, dst := range []net.HardwareAddr{macA, macB, macB, macC} {
		b.Add(p.NewPacket(frame(t, dst)))
	}
	b.Add(p.NewPacket([]byte{0xff}))
	require.NoError(t, p.Process("fwd", b))
	assert.Equal(t, uint64(1), processed(t, p, "a"))
	assert.Equal(t, uint64(2), processed(t, p, "b"))
	fwd, _ := p.Module("fwd")
	assert.Equal(t, uint64(2), fwd.Stats().Dropped)
}

func TestL2ForwardTable(t *testing.T) {
	proc, err := modules.New("L2Forward", nil, modules.Options{})
	require.NoError(t, err)
	l2 := proc.(*modules.L2Forward)
	defer l2.Deinit()

	require.NoError(t, l2.AddEntries([]pipeline.TableEntry{
		{Key: macB.String(), Gate: 2},
		{Key: macA.String(), Gate: 1},
	}))
	assert.Equal(t, []pipeline.TableEntry{
		{Key: macA.String(), Gate: 1},
		{Key: macB.String(), Gate: 2},
	}, l2.Entries())

	// A bad entry rejects the whole batch.
	err = l2.AddEntries([]pipeline.TableEntry{
		{Key: macC.String(), Gate: 1},
		{Key: "not-a-mac", Gate: 1},
	})
	assert.ErrorIs(t, err, modules.ErrInvalidArgs)
	assert.Len(t, l2.Entries(), 2)

	require.NoError(t, l2.DeleteEntry(macA.String()))
	assert.ErrorIs(t, l2.DeleteEntry(macA.String()), htable.ErrNotFound)
	assert.Equal(t, 1, l2.TableStats().Count)
}

func TestTableCommands(t *testing.T) {
	testCases := map[string]struct {
		class string
		args  modules.Args
	}{
		"L2Forward": {
			class: "L2Forward",
			args: modules.Args{"entries": []any{
				map[string]any{"key": macA.String(), "gate": int64(1)},
			}},
		},
		"ExactMatch": {
			class: "ExactMatch",
			args: modules.Args{
				"fields":  []any{map[string]any{"offset": int64(0), "size": int64(2)}},
				"entries": []any{map[string]any{"key": "0200", "gate": int64(1)}},
			},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			proc, err := modules.New(tc.class, tc.args, modules.Options{})
			require.NoError(t, err)
			tbl := proc.(pipeline.Table)
			defer proc.(pipeline.Deinitializer).Deinit()

			assert.Equal(t, 0, tbl.DefaultGate())
			require.NoError(t, tbl.SetDefaultGate(5))
			assert.Equal(t, 5, tbl.DefaultGate())
			require.NoError(t, tbl.SetDefaultGate(-1))
			assert.Equal(t, -1, tbl.DefaultGate())
			assert.ErrorIs(t, tbl.SetDefaultGate(pipeline.MaxGates), modules.ErrInvalidArgs)
			assert.Equal(t, -1, tbl.DefaultGate())

			require.Len(t, tbl.Entries(), 1)
			tbl.Clear()
			assert.Empty(t, tbl.Entries())
			assert.Equal(t, 0, tbl.TableStats().Count)
		})
	}
}

func TestL2ForwardDefaultGateLookup(t *testing.T) {
	proc, err := modules.New("L2Forward", modules.Args{"entries": []any{
		map[string]any{"key": macA.String(), "gate": int64(1)},
	}}, modules.Options{})
	require.NoError(t, err)
	l2 := proc.(*modules.L2Forward)
	defer l2.Deinit()

	require.NoError(t, l2.SetDefaultGate(7))
	gate, ok, err := l2.LookupFrame(frame(t, macC))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, gate)

	l2.Clear()
	gate, _, err = l2.LookupFrame(frame(t, macA))
	require.NoError(t, err)
	assert.Equal(t, 7, gate)

	_, _, err = l2.LookupFrame([]byte{0x02})
	assert.ErrorIs(t, err, modules.ErrInvalidArgs)
}

func TestL2ForwardMemoryLimit(t *testing.T) {
	proc, err := modules.New("L2Forward", modules.Args{"memory_limit": int64(1024)},
		modules.Options{})
	require.NoError(t, err)
	l2 := proc.(*modules.L2Forward)
	defer l2.Deinit()

	var addErr error
	added := 0
	for i := 0; i < 1000 && addErr == nil; i++ {
		mac := net.HardwareAddr{0x02, 0, 0, 0, byte(i >> 8), byte(i)}
		addErr = l2.AddEntries([]pipeline.TableEntry{{Key: mac.String(), Gate: 1}})
		if addErr == nil {
			added++
		}
	}
	require.ErrorIs(t, addErr, htable.ErrNoMemory)
	assert.Equal(t, added, l2.TableStats().Count)
	assert.Len(t, l2.Entries(), added)
}

func TestTimestampMeasure(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := pipeline.New(pipeline.Options{Logger: testlog.NewLogger(t)})
	opts := modules.Options{Metrics: []metrics.Option{metrics.WithRegistry(reg)}}
	require.NoError(t, modules.Build(p, []modules.Spec{
		{Name: "ts", Class: "Timestamp"},
		{Name: "measure", Class: "Measure"},
		{Name: "sink", Class: "Sink"},
	}, []modules.Link{
		{From: "ts", To: "measure"},
		{From: "measure", To: "sink"},
	}, opts))
	_, err := p.ComputeMetadataOffsets()
	require.NoError(t, err)
	defer p.Close()

	b := pipeline.NewBatch()
	b.Add(p.NewPacket(nil))
	b.Add(p.NewPacket(nil))
	require.NoError(t, p.Process("ts", b))
	// Packets entering after the timestamp carry none.
	b = pipeline.NewBatch()
	b.Add(p.NewPacket(nil))
	require.NoError(t, p.Process("measure", b))

	m, _ := p.Module("measure")
	stats := m.Processor().(*modules.Measure).Stats()
	assert.Equal(t, uint64(2), stats.Count)
	assert.Equal(t, uint64(1), stats.Missing)
	assert.GreaterOrEqual(t, stats.Mean, time.Duration(0))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "pktpipe_measure_latency_seconds"))
	assert.Equal(t, uint64(3), processed(t, p, "sink"))
}
