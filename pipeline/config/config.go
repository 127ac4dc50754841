// Copyright 2018 ETH Zurich
// Copyright 2020 ETH Zurich, Anapaya Systems
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

// Package config contains the configuration of the pktpipe daemon.
package config

import (
	"io"
	"time"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pipeline/modules"
	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/metadata"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
	"github.com/pktpipe/pktpipe/pkg/private/util"
	"github.com/pktpipe/pktpipe/private/app/feature"
	"github.com/pktpipe/pktpipe/private/config"
	"github.com/pktpipe/pktpipe/private/env"
)

const idSample = "pipe-1"

var _ config.Config = (*Config)(nil)

type Config struct {
	General  env.General    `toml:"general,omitempty"`
	Logging  log.Config     `toml:"log,omitempty"`
	Metrics  env.Metrics    `toml:"metrics,omitempty"`
	API      env.API        `toml:"api,omitempty"`
	Metadata Metadata       `toml:"metadata,omitempty"`
	Pipeline Pipeline       `toml:"pipeline,omitempty"`
	Modules  []modules.Spec `toml:"modules,omitempty"`
	Links    []modules.Link `toml:"links,omitempty"`
}

func (cfg *Config) InitDefaults() {
	config.InitAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Metadata,
		&cfg.Pipeline,
	)
}

func (cfg *Config) Validate() error {
	if err := config.ValidateAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Metadata,
		&cfg.Pipeline,
	); err != nil {
		return err
	}
	return cfg.validateGraph()
}

// validateGraph checks the module and link declarations without creating
// any module.
func (cfg *Config) validateGraph() error {
	known := make(map[string]bool)
	for _, c := range modules.Classes() {
		known[c.Name] = true
	}
	names := make(map[string]bool, len(cfg.Modules))
	for _, m := range cfg.Modules {
		if m.Name == "" {
			return serrors.New("module without name", "class", m.Class)
		}
		if names[m.Name] {
			return serrors.New("duplicate module name", "module", m.Name)
		}
		if !known[m.Class] {
			return serrors.New("unknown module class", "module", m.Name, "class", m.Class)
		}
		names[m.Name] = true
	}
	gates := make(map[string]map[int]bool)
	for _, l := range cfg.Links {
		if !names[l.From] || !names[l.To] {
			return serrors.New("link references unknown module", "from", l.From, "to", l.To)
		}
		if l.OGate < 0 || l.OGate >= pipeline.MaxGates ||
			l.IGate < 0 || l.IGate >= pipeline.MaxGates {
			return serrors.New("gate out of range", "from", l.From, "ogate", l.OGate,
				"to", l.To, "igate", l.IGate, "max", pipeline.MaxGates-1)
		}
		if gates[l.From] == nil {
			gates[l.From] = make(map[int]bool)
		}
		if gates[l.From][l.OGate] {
			return serrors.New("output gate linked twice", "from", l.From, "ogate", l.OGate)
		}
		gates[l.From][l.OGate] = true
	}
	return nil
}

func (cfg *Config) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteSample(dst, path, config.CtxMap{config.ID: idSample},
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Metadata,
		&cfg.Pipeline,
		graphSampler{},
	)
}

func (cfg *Config) ConfigName() string {
	return "pktpipe_config"
}

// ModuleOptions returns the options modules are created with.
func (cfg *Config) ModuleOptions() modules.Options {
	opts := modules.Options{
		Dir:       cfg.General.ConfigDir,
		BatchSize: cfg.Pipeline.BatchSize,
	}
	if cfg.Pipeline.Flags.XXHashTables {
		opts.Hasher = "xxhash"
	}
	return opts
}

const (
	// DefaultBatchSize is the default number of packets per source batch.
	DefaultBatchSize = pipeline.MaxBatchSize
	// DefaultStatsInterval is the default table statistics interval.
	DefaultStatsInterval = 10 * time.Second
)

var _ config.Config = (*Metadata)(nil)

// Metadata bounds the metadata attributes and the per-packet scratch area.
type Metadata struct {
	// TotalSize is the size of the scratch area in bytes.
	TotalSize int `toml:"total_size,omitempty"`
	// MaxAttrSize is the largest attribute size in bytes.
	MaxAttrSize int `toml:"max_attr_size,omitempty"`
	// MaxAttrsPerModule bounds the attribute declarations of a module.
	MaxAttrsPerModule int `toml:"max_attrs_per_module,omitempty"`
}

func (cfg *Metadata) InitDefaults() {
	if cfg.TotalSize == 0 {
		cfg.TotalSize = metadata.DefaultTotalSize
	}
	if cfg.MaxAttrSize == 0 {
		cfg.MaxAttrSize = metadata.DefaultMaxAttrSize
	}
	if cfg.MaxAttrsPerModule == 0 {
		cfg.MaxAttrsPerModule = metadata.DefaultMaxAttrsPerModule
	}
}

func (cfg *Metadata) Validate() error {
	switch {
	case cfg.TotalSize <= 0 || cfg.TotalSize > maxTotalSize:
		return serrors.New("total_size out of range", "total_size", cfg.TotalSize,
			"max", maxTotalSize)
	case cfg.MaxAttrSize <= 0 || cfg.MaxAttrSize > cfg.TotalSize:
		return serrors.New("max_attr_size out of range", "max_attr_size", cfg.MaxAttrSize,
			"total_size", cfg.TotalSize)
	case cfg.MaxAttrsPerModule <= 0:
		return serrors.New("max_attrs_per_module must be positive",
			"max_attrs_per_module", cfg.MaxAttrsPerModule)
	}
	return nil
}

// maxTotalSize keeps offsets representable.
const maxTotalSize = 1<<15 - 1

func (cfg *Metadata) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, metadataSample)
}

func (cfg *Metadata) ConfigName() string {
	return "metadata"
}

// Options returns the planner options.
func (cfg *Metadata) Options() metadata.Options {
	return metadata.Options{
		MaxAttrNameLen:    metadata.DefaultMaxAttrNameLen,
		MaxAttrSize:       cfg.MaxAttrSize,
		MaxAttrsPerModule: cfg.MaxAttrsPerModule,
		TotalSize:         cfg.TotalSize,
	}
}

var _ config.Config = (*Pipeline)(nil)

// Pipeline configures packet processing.
type Pipeline struct {
	// BatchSize is the default number of packets sources put in a batch.
	BatchSize int `toml:"batch_size,omitempty"`
	// Features enables feature flags by name.
	Features []string `toml:"features,omitempty"`
	// StatsInterval is the interval at which table statistics are exported.
	StatsInterval util.DurWrap `toml:"stats_interval,omitempty"`
	// Flags are the parsed features, set by Validate.
	Flags feature.Flags `toml:"-"`
}

func (cfg *Pipeline) InitDefaults() {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.StatsInterval.Duration == 0 {
		cfg.StatsInterval.Duration = DefaultStatsInterval
	}
}

func (cfg *Pipeline) Validate() error {
	if cfg.BatchSize <= 0 || cfg.BatchSize > pipeline.MaxBatchSize {
		return serrors.New("batch_size out of range", "batch_size", cfg.BatchSize,
			"max", pipeline.MaxBatchSize)
	}
	if cfg.StatsInterval.Duration < 0 {
		return serrors.New("stats_interval must not be negative",
			"stats_interval", cfg.StatsInterval)
	}
	flags, err := feature.ParseFlags(cfg.Features)
	if err != nil {
		return err
	}
	cfg.Flags = flags
	return nil
}

func (cfg *Pipeline) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, pipelineSample)
}

func (cfg *Pipeline) ConfigName() string {
	return "pipeline"
}

// graphSampler writes the module and link arrays. They are top level arrays
// of tables and thus have no header of their own.
type graphSampler struct{}

func (graphSampler) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, graphSample)
}
