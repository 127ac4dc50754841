// Copyright 2026 Anapaya Systems
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

// Package metrics builds prometheus collectors against an injectable
// registerer. Components take metrics.Option values, production code
// passes none and ends up on the default registerer, tests pass a fresh
// prometheus.Registry.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the prometheus namespace of all pktpipe metrics.
const Namespace = "pktpipe"

// Option modifies Options.
type Option func(*Options)

// Options selects where a Factory registers its collectors.
type Options struct {
	registry prometheus.Registerer
}

// WithRegistry makes the Factory register with registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(o *Options) { o.registry = registry }
}

// ApplyOptions folds options into Options.
func ApplyOptions(options ...Option) Options {
	var o Options
	for _, apply := range options {
		apply(&o)
	}
	return o
}

// Auto returns a Factory for o.
func (o Options) Auto() Factory {
	reg := o.registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return Factory{reg: reg}
}

// Factory creates and registers collectors. Creating a collector that is
// already registered returns the registered one, so a pipeline can be built
// more than once in the same process.
type Factory struct {
	reg prometheus.Registerer
}

func (f Factory) register(c prometheus.Collector) prometheus.Collector {
	err := f.reg.Register(c)
	var are prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
		return c
	case errors.As(err, &are):
		return are.ExistingCollector
	default:
		panic(err)
	}
}

func (f Factory) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	return f.register(prometheus.NewCounter(opts)).(prometheus.Counter)
}

func (f Factory) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return f.register(prometheus.NewCounterVec(opts, labels)).(*prometheus.CounterVec)
}

func (f Factory) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	return f.register(prometheus.NewGauge(opts)).(prometheus.Gauge)
}

func (f Factory) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	return f.register(prometheus.NewGaugeVec(opts, labels)).(*prometheus.GaugeVec)
}

func (f Factory) NewHistogramVec(
	opts prometheus.HistogramOpts,
	labels []string,
) *prometheus.HistogramVec {
	return f.register(prometheus.NewHistogramVec(opts, labels)).(*prometheus.HistogramVec)
}
