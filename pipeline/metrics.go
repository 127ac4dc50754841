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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pktpipe/pktpipe/pkg/metrics/v2"
	"github.com/pktpipe/pktpipe/pkg/private/prom"
)

// Metrics are the packet counters of a pipeline. A nil *Metrics records
// nothing.
type Metrics struct {
	ProcessedPackets *prometheus.CounterVec
	DroppedPackets   *prometheus.CounterVec
	Modules          *prometheus.GaugeVec
}

// NewMetrics creates the pipeline metrics.
func NewMetrics(opts ...metrics.Option) *Metrics {
	auto := metrics.ApplyOptions(opts...).Auto()
	return &Metrics{
		ProcessedPackets: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "pipeline",
			Name:      "processed_packets_total",
			Help:      "Total number of packets processed by a module.",
		}, []string{prom.LabelModule}),
		DroppedPackets: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "pipeline",
			Name:      "dropped_packets_total",
			Help:      "Total number of packets dropped by a module.",
		}, []string{prom.LabelModule, prom.LabelReason}),
		Modules: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "pipeline",
			Name:      "modules",
			Help:      "Number of modules per class.",
		}, []string{prom.LabelClass}),
	}
}

func (m *Metrics) register(mod *Module) {
	if m == nil {
		return
	}
	m.Modules.WithLabelValues(mod.class).Inc()
	// Initialize the series so that they are exported before the first
	// packet.
	m.ProcessedPackets.WithLabelValues(mod.name)
	m.DroppedPackets.WithLabelValues(mod.name, DropModule)
}

func (m *Metrics) processed(mod *Module, n int) {
	if m == nil {
		return
	}
	m.ProcessedPackets.WithLabelValues(mod.name).Add(float64(n))
}

func (m *Metrics) dropped(mod *Module, reason string, n int) {
	if m == nil {
		return
	}
	m.DroppedPackets.WithLabelValues(mod.name, reason).Add(float64(n))
}
