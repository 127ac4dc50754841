// Copyright 2018 ETH Zurich
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

// Package periodic runs a task at a fixed period until it is stopped.
package periodic

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pktpipe/pktpipe/pkg/log"
)

// Events counted in Metrics.
const (
	EventStop    = "stop"
	EventKill    = "kill"
	EventTrigger = "trigger"
)

// Task is a job that runs periodically.
type Task interface {
	// Run is called every period. The context is canceled after the
	// timeout or when the runner is killed.
	Run(ctx context.Context)
	// Name is used in logs and metrics.
	Name() string
}

// Metrics of a Runner. All fields are optional.
type Metrics struct {
	Events    *prometheus.CounterVec
	Period    prometheus.Gauge
	Runtime   prometheus.Gauge
	StartTime prometheus.Gauge
}

func (m *Metrics) event(e string) {
	if m != nil && m.Events != nil {
		m.Events.WithLabelValues(e).Inc()
	}
}

func setGauge(g prometheus.Gauge, v float64) {
	if g != nil {
		g.Set(v)
	}
}

// Runner runs a task periodically.
type Runner struct {
	task    Task
	ticker  *time.Ticker
	timeout time.Duration
	stop    chan struct{}
	loopEnd chan struct{}
	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *Metrics
	logger  log.Logger
}

// Start runs task immediately and then every period. Each run is limited to
// timeout.
func Start(task Task, period, timeout time.Duration) *Runner {
	return StartWithMetrics(task, nil, period, timeout)
}

// StartWithMetrics is like Start and reports to m.
func StartWithMetrics(task Task, m *Metrics, period, timeout time.Duration) *Runner {
	logger := log.New("task", task.Name())
	ctx, cancel := context.WithCancel(log.CtxWith(context.Background(), logger))
	r := &Runner{
		task:    task,
		ticker:  time.NewTicker(period),
		timeout: timeout,
		stop:    make(chan struct{}),
		loopEnd: make(chan struct{}),
		trigger: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		metrics: m,
		logger:  logger,
	}
	if m != nil {
		setGauge(m.Period, period.Seconds())
		setGauge(m.StartTime, float64(time.Now().Unix()))
	}
	logger.Info("Starting periodic task", "period", period, "timeout", timeout)
	go func() {
		defer log.HandlePanic()
		r.runLoop()
	}()
	return r
}

// Stop stops the runner and waits for a running task to finish.
func (r *Runner) Stop() {
	r.ticker.Stop()
	close(r.stop)
	<-r.loopEnd
	r.cancel()
	r.metrics.event(EventStop)
	r.logger.Info("Stopped periodic task")
}

// Kill stops the runner and cancels a running task.
func (r *Runner) Kill() {
	r.ticker.Stop()
	close(r.stop)
	r.cancel()
	<-r.loopEnd
	r.metrics.event(EventKill)
	r.logger.Info("Killed periodic task")
}

// TriggerRun runs the task now, unless the runner was stopped. It blocks
// while a previous run is in progress.
func (r *Runner) TriggerRun() {
	select {
	case <-r.stop:
	case r.trigger <- struct{}{}:
		r.metrics.event(EventTrigger)
	}
}

func (r *Runner) runLoop() {
	defer close(r.loopEnd)
	r.onTick()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ticker.C:
			r.onTick()
		case <-r.trigger:
			r.onTick()
		}
	}
}

func (r *Runner) onTick() {
	select {
	case <-r.stop:
		return
	default:
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()
	start := time.Now()
	r.task.Run(ctx)
	if r.metrics != nil {
		setGauge(r.metrics.Runtime, time.Since(start).Seconds())
	}
}
