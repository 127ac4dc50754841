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
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pkg/metadata"
	"github.com/pktpipe/pktpipe/pkg/metrics/v2"
	"github.com/pktpipe/pktpipe/pkg/private/prom"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

// TimestampAttr is the attribute written by Timestamp and read by Measure.
const TimestampAttr = "timestamp"

func init() {
	Register("SetMetadata", "writes constant metadata attributes", newSetMetadata)
	Register("Timestamp", "writes the dispatch time to the timestamp attribute",
		func(args Args, _ Options) (pipeline.Processor, error) {
			if err := decode(args, &struct{}{}); err != nil {
				return nil, err
			}
			return &Timestamp{}, nil
		})
	Register("Measure", "observes the latency since Timestamp", newMeasure)
}

// AttrArgs declare a constant attribute value.
type AttrArgs struct {
	Name string `toml:"name"`
	Size int    `toml:"size"`
	// Value is an unsigned integer stored in host byte order, or a hex
	// string stored as is and zero padded to Size. Integers need a Size of
	// 1, 2, 4 or 8.
	Value any `toml:"value"`
}

type setAttr struct {
	idx   int
	size  int
	value []byte
}

// SetMetadata writes constant values to metadata attributes and forwards
// every packet on gate 0.
type SetMetadata struct {
	args  []AttrArgs
	attrs []setAttr
}

func newSetMetadata(args Args, _ Options) (pipeline.Processor, error) {
	var a struct {
		Attrs []AttrArgs `toml:"attrs"`
	}
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if len(a.Attrs) == 0 {
		return nil, serrors.JoinNoStack(ErrInvalidArgs, nil, "arg", "attrs", "reason", "required")
	}
	s := &SetMetadata{args: a.Attrs}
	for _, attr := range a.Attrs {
		v, err := attrValue(attr)
		if err != nil {
			return nil, err
		}
		s.attrs = append(s.attrs, setAttr{size: attr.Size, value: v})
	}
	return s, nil
}

func attrValue(a AttrArgs) ([]byte, error) {
	invalid := func(reason string) error {
		return serrors.JoinNoStack(ErrInvalidArgs, nil, "attr", a.Name, "value", a.Value,
			"reason", reason)
	}
	if a.Size <= 0 {
		return nil, invalid("size must be positive")
	}
	switch v := a.Value.(type) {
	case string:
		b, err := hex.DecodeString(strings.TrimPrefix(v, "0x"))
		if err != nil {
			return nil, invalid(err.Error())
		}
		if len(b) > a.Size {
			return nil, invalid("value longer than size")
		}
		return b, nil
	case int64, int, uint64:
		var u uint64
		switch v := v.(type) {
		case int64:
			if v < 0 {
				return nil, invalid("negative value")
			}
			u = uint64(v)
		case int:
			if v < 0 {
				return nil, invalid("negative value")
			}
			u = uint64(v)
		case uint64:
			u = v
		}
		if a.Size < 8 && u>>(8*a.Size) != 0 {
			return nil, invalid("value does not fit size")
		}
		b := make([]byte, a.Size)
		switch a.Size {
		case 1:
			b[0] = uint8(u)
		case 2:
			binary.NativeEndian.PutUint16(b, uint16(u))
		case 4:
			binary.NativeEndian.PutUint32(b, uint32(u))
		case 8:
			binary.NativeEndian.PutUint64(b, u)
		default:
			return nil, invalid("integer values need size 1, 2, 4 or 8")
		}
		return b, nil
	default:
		return nil, invalid("value must be an integer or a hex string")
	}
}

func (s *SetMetadata) Init(m *pipeline.Module) error {
	for i, a := range s.args {
		idx, err := m.AddMetadataAttr(a.Name, a.Size, metadata.Write)
		if err != nil {
			return err
		}
		s.attrs[i].idx = idx
	}
	return nil
}

func (s *SetMetadata) ProcessBatch(ctx *pipeline.Context, b *pipeline.Batch) {
	for _, a := range s.attrs {
		off := ctx.Offset(a.idx)
		if !off.Valid() {
			continue
		}
		for _, pkt := range b.Pkts {
			pkt.Meta.Set(off, a.size, a.value)
		}
	}
	for _, pkt := range b.Pkts {
		ctx.Emit(0, pkt)
	}
}

// Timestamp stores the dispatch time in nanoseconds since the epoch in the
// 8 byte attribute "timestamp".
type Timestamp struct {
	attr int
}

func (t *Timestamp) Init(m *pipeline.Module) error {
	var err error
	t.attr, err = m.AddMetadataAttr(TimestampAttr, 8, metadata.Write)
	return err
}

func (t *Timestamp) ProcessBatch(ctx *pipeline.Context, b *pipeline.Batch) {
	off := ctx.Offset(t.attr)
	now := uint64(ctx.Now().UnixNano())
	for _, pkt := range b.Pkts {
		pkt.Meta.SetUint64(off, now)
		ctx.Emit(0, pkt)
	}
}

// Measure observes the time elapsed since Timestamp ran for every packet and
// forwards it on gate 0.
type Measure struct {
	attr    int
	opts    Options
	hist    prometheus.Observer
	now     func() time.Time
	count   uint64
	total   time.Duration
	missing uint64
}

func newMeasure(args Args, opts Options) (pipeline.Processor, error) {
	if err := decode(args, &struct{}{}); err != nil {
		return nil, err
	}
	return &Measure{opts: opts, now: time.Now}, nil
}

func (m *Measure) Init(mod *pipeline.Module) error {
	var err error
	if m.attr, err = mod.AddMetadataAttr(TimestampAttr, 8, metadata.Read); err != nil {
		return err
	}
	hist := metrics.ApplyOptions(m.opts.Metrics...).Auto().NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "measure",
			Name:      "latency_seconds",
			Help:      "Time between Timestamp and Measure.",
			Buckets:   prom.DefaultLatencyBuckets,
		},
		[]string{prom.LabelModule},
	)
	m.hist = hist.WithLabelValues(mod.Name())
	return nil
}

func (m *Measure) ProcessBatch(ctx *pipeline.Context, b *pipeline.Batch) {
	off := ctx.Offset(m.attr)
	now := m.now()
	for _, pkt := range b.Pkts {
		if ts := pkt.Meta.Uint64(off); ts != 0 {
			d := now.Sub(time.Unix(0, int64(ts)))
			m.hist.Observe(d.Seconds())
			m.count++
			m.total += d
		} else {
			m.missing++
		}
		ctx.Emit(0, pkt)
	}
}

// MeasureStats summarize the observed latencies.
type MeasureStats struct {
	Count uint64 `json:"count"`
	// Missing counts packets without a timestamp.
	Missing uint64        `json:"missing"`
	Mean    time.Duration `json:"mean"`
}

// Stats returns the latency summary.
func (m *Measure) Stats() MeasureStats {
	s := MeasureStats{Count: m.count, Missing: m.missing}
	if m.count > 0 {
		s.Mean = m.total / time.Duration(m.count)
	}
	return s
}
