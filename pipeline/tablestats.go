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
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/metrics/v2"
	"github.com/pktpipe/pktpipe/pkg/private/prom"
	"github.com/pktpipe/pktpipe/private/periodic"
)

// TableMetrics are gauges describing the lookup tables of a pipeline.
type TableMetrics struct {
	Entries      *prometheus.GaugeVec
	Occupancy    *prometheus.GaugeVec
	PrimaryRatio *prometheus.GaugeVec
}

// NewTableMetrics creates the table metrics.
func NewTableMetrics(opts ...metrics.Option) *TableMetrics {
	auto := metrics.ApplyOptions(opts...).Auto()
	labels := []string{prom.LabelModule}
	return &TableMetrics{
		Entries: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "table",
			Name:      "entries",
			Help:      "Number of entries in a lookup table.",
		}, labels),
		Occupancy: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "table",
			Name:      "occupancy_ratio",
			Help:      "Fraction of bucket slots in use.",
		}, labels),
		PrimaryRatio: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "table",
			Name:      "primary_ratio",
			Help:      "Fraction of entries stored in their primary bucket.",
		}, labels),
	}
}

var _ periodic.Task = (*TableReporter)(nil)

// TableReporter exports the statistics of all table modules.
type TableReporter struct {
	Pipeline *Pipeline
	Metrics  *TableMetrics
}

func (r *TableReporter) Name() string {
	return "pipeline_table_reporter"
}

func (r *TableReporter) Run(ctx context.Context) {
	logger := log.FromCtx(ctx)
	exported := 0
	for _, info := range r.Pipeline.Describe() {
		if !info.Table {
			continue
		}
		err := r.Pipeline.WithTable(info.Name, func(t Table) error {
			s := t.TableStats()
			l := prometheus.Labels{prom.LabelModule: info.Name}
			r.Metrics.Entries.With(l).Set(float64(s.Count))
			r.Metrics.Occupancy.With(l).Set(s.Occupancy())
			r.Metrics.PrimaryRatio.With(l).Set(s.PrimaryRatio())
			return nil
		})
		// The module may have been removed since Describe.
		if err != nil {
			logger.Debug("Skipping table", "module", info.Name, "err", err)
			continue
		}
		exported++
	}
	logger.Debug("Exported table statistics", "tables", exported)
}
