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
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

func init() {
	Register("Source", "reads frames from a pcap file", newSource)
}

// SourceArgs configure a Source.
type SourceArgs struct {
	// File is the pcap file to read.
	File string `toml:"file"`
	// Loop is the number of passes over the file. Zero reads it once, a
	// negative value loops until the pipeline stops.
	Loop int `toml:"loop"`
	// Batch is the maximum number of packets per batch.
	Batch int `toml:"batch"`
}

// Source emits the frames of a pcap file on gate 0.
type Source struct {
	args   SourceArgs
	f      *os.File
	r      *pcapgo.Reader
	passes int
	// inPass counts the frames read in the current pass.
	inPass int
	logger log.Logger
}

func newSource(args Args, opts Options) (pipeline.Processor, error) {
	s := &Source{}
	if err := decode(args, &s.args); err != nil {
		return nil, err
	}
	if s.args.File == "" {
		return nil, serrors.JoinNoStack(ErrInvalidArgs, nil, "arg", "file", "reason", "required")
	}
	if !filepath.IsAbs(s.args.File) && opts.Dir != "" {
		s.args.File = filepath.Join(opts.Dir, s.args.File)
	}
	if s.args.Batch <= 0 {
		s.args.Batch = opts.BatchSize
	}
	if s.args.Batch <= 0 || s.args.Batch > pipeline.MaxBatchSize {
		s.args.Batch = pipeline.MaxBatchSize
	}
	return s, nil
}

func (s *Source) Init(m *pipeline.Module) error {
	s.logger = m.Logger()
	return s.open()
}

func (s *Source) open() error {
	if s.f != nil {
		s.f.Close()
	}
	f, err := os.Open(s.args.File)
	if err != nil {
		return serrors.Wrap("opening capture", err, "file", s.args.File)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return serrors.Wrap("reading capture header", err, "file", s.args.File)
	}
	if lt := r.LinkType(); lt != layers.LinkTypeEthernet {
		s.logger.Info("Capture is not ethernet", "file", s.args.File, "link_type", lt.String())
	}
	s.f, s.r, s.inPass = f, r, 0
	return nil
}

// NextBatch reads up to Batch frames.
func (s *Source) NextBatch(ctx *pipeline.Context, b *pipeline.Batch) bool {
	for b.Len() < s.args.Batch {
		data, _, err := s.r.ReadPacketData()
		switch {
		case err == nil:
			b.Add(ctx.NewPacket(data))
			s.inPass++
			continue
		case errors.Is(err, io.EOF):
		default:
			s.logger.Error("Reading capture failed", "file", s.args.File, "err", err)
			return false
		}
		s.passes++
		if s.inPass == 0 {
			return false
		}
		if s.args.Loop >= 0 && s.passes >= max(s.args.Loop, 1) {
			return false
		}
		if err := s.open(); err != nil {
			s.logger.Error("Reopening capture failed", "err", err)
			return false
		}
	}
	return true
}

func (s *Source) ProcessBatch(ctx *pipeline.Context, b *pipeline.Batch) {
	for _, pkt := range b.Pkts {
		ctx.Emit(0, pkt)
	}
}

func (s *Source) Deinit() {
	if s.f != nil {
		s.f.Close()
		s.f = nil
	}
}

func init() {
	Register("Sink", "drops all packets", func(args Args, _ Options) (pipeline.Processor, error) {
		if err := decode(args, &struct{}{}); err != nil {
			return nil, err
		}
		return &Sink{}, nil
	})
}

// Sink drops every packet and counts the bytes.
type Sink struct {
	bytes uint64
}

func (s *Sink) ProcessBatch(ctx *pipeline.Context, b *pipeline.Batch) {
	for _, pkt := range b.Pkts {
		s.bytes += uint64(len(pkt.Data))
		ctx.Drop(pkt)
	}
}

// Bytes returns the number of bytes dropped.
func (s *Sink) Bytes() uint64 { return s.bytes }
