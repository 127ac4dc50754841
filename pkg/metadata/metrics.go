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

package metadata

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pktpipe/pktpipe/pkg/metrics/v2"
	"github.com/pktpipe/pktpipe/pkg/private/prom"
)

// Metrics are the planner metrics. A nil *Metrics records nothing.
type Metrics struct {
	Computations  *prometheus.CounterVec
	Components    prometheus.Gauge
	ScratchBytes  prometheus.Gauge
	OrphanReaders prometheus.Gauge
}

// NewMetrics creates the planner metrics.
func NewMetrics(opts ...metrics.Option) *Metrics {
	auto := metrics.ApplyOptions(opts...).Auto()
	return &Metrics{
		Computations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "metadata",
			Name:      "computations_total",
			Help:      "Total number of metadata offset computations.",
		}, []string{prom.LabelResult}),
		Components: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "metadata",
			Name:      "scope_components",
			Help:      "Number of scope components in the last plan.",
		}),
		ScratchBytes: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "metadata",
			Name:      "scratch_bytes",
			Help:      "Bytes of the per-packet scratch area used by the last plan.",
		}),
		OrphanReaders: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "metadata",
			Name:      "orphan_readers",
			Help:      "Attribute reads without an upstream writer in the last plan.",
		}),
	}
}

func (m *Metrics) observe(result string, plan *Plan) {
	if m == nil {
		return
	}
	m.Computations.WithLabelValues(result).Inc()
	if plan == nil {
		return
	}
	m.Components.Set(float64(len(plan.Components)))
	m.ScratchBytes.Set(float64(plan.ScratchBytes))
	m.OrphanReaders.Set(float64(len(plan.Orphans)))
}
