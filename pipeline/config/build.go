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

package config

import (
	"errors"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pipeline/modules"
	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/metadata"
	"github.com/pktpipe/pktpipe/pkg/metrics/v2"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

// ErrUnwrittenReads is returned by Build in strict metadata mode if a module
// reads an attribute that no upstream module writes.
var ErrUnwrittenReads = errors.New("metadata attribute read but never written")

// EnableFeatures adds features by name. The names are checked by Validate.
func (cfg *Config) EnableFeatures(names []string) {
	cfg.Pipeline.Features = append(cfg.Pipeline.Features, names...)
}

// Build creates the pipeline described by cfg and computes its metadata
// offsets. cfg must be validated.
func (cfg *Config) Build(
	logger log.Logger,
	opts ...metrics.Option,
) (*pipeline.Pipeline, *metadata.Plan, error) {

	p := pipeline.New(pipeline.Options{
		Metadata:    cfg.Metadata.Options(),
		Logger:      logger,
		Metrics:     pipeline.NewMetrics(opts...),
		PlanMetrics: metadata.NewMetrics(opts...),
	})
	mopts := cfg.ModuleOptions()
	mopts.Metrics = opts
	if err := modules.Build(p, cfg.Modules, cfg.Links, mopts); err != nil {
		p.Close()
		return nil, nil, err
	}
	plan, err := p.ComputeMetadataOffsets()
	if err != nil {
		p.Close()
		return nil, nil, serrors.Wrap("computing metadata offsets", err)
	}
	if cfg.Pipeline.Flags.StrictMetadata && len(plan.Orphans) > 0 {
		p.Close()
		o := plan.Orphans[0]
		return nil, nil, serrors.JoinNoStack(ErrUnwrittenReads, nil,
			"module", o.ModuleName, "attr", o.AttrName, "count", len(plan.Orphans))
	}
	return p, plan, nil
}
