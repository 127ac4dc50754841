// Copyright 2023 SCION Association
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

// Package processmetrics exports the CPU time the scheduler granted to the
// process and the time it was denied, summed over all threads. Together with
// the pipeline packet counters they give the packet rate per available core:
//
//	rate(pktpipe_pipeline_processed_packets_total[1m])
//	  / on (instance, job) group_left ()
//	(go_sched_maxprocs_threads - rate(process_runnable_seconds_total[1m]))
//
// Only Linux is supported, elsewhere Init is a no-op.
package processmetrics

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"

	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

var (
	runningDesc = prometheus.NewDesc(
		"process_running_seconds_total",
		"CPU time the process used since it started (all threads summed).",
		nil, nil,
	)
	runnableDesc = prometheus.NewDesc(
		"process_runnable_seconds_total",
		"CPU time the process was runnable but not running since it started "+
			"(all threads summed).",
		nil, nil,
	)
	maxProcsDesc = prometheus.NewDesc(
		"go_sched_maxprocs_threads",
		"The current runtime.GOMAXPROCS setting.",
		nil, nil,
	)
)

type schedCollector struct {
	pid   int
	tasks *os.File
	// threads is reloaded only when the thread count changes. Go never ends
	// the threads it creates, so an unchanged count means unchanged threads.
	threads     procfs.Procs
	threadCount uint64
	running     uint64
	runnable    uint64
}

func (c *schedCollector) update() error {
	var st syscall.Stat_t
	if err := syscall.Fstat(int(c.tasks.Fd()), &st); err != nil {
		return err
	}
	//nolint:unconvert // Nlink is uint32 on arm64
	count := uint64(st.Nlink - 2)
	if count != c.threadCount {
		threads, err := procfs.AllThreads(c.pid)
		if err != nil {
			return err
		}
		c.threads, c.threadCount = threads, count
	}
	var running, runnable uint64
	var err error
	for _, t := range c.threads {
		s, tErr := t.Schedstat()
		if tErr != nil {
			// The thread is gone, the others are still valid.
			err = tErr
			continue
		}
		running += s.RunningNanoseconds
		runnable += s.WaitingNanoseconds
	}
	c.running, c.runnable = running, runnable
	return err
}

func (c *schedCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *schedCollector) Collect(ch chan<- prometheus.Metric) {
	_ = c.update()
	ch <- prometheus.MustNewConstMetric(runningDesc, prometheus.CounterValue,
		float64(c.running)/1e9)
	ch <- prometheus.MustNewConstMetric(runnableDesc, prometheus.CounterValue,
		float64(c.runnable)/1e9)
	ch <- prometheus.MustNewConstMetric(maxProcsDesc, prometheus.GaugeValue,
		float64(runtime.GOMAXPROCS(-1)))
}

// Init registers the collector with reg, or the default registerer if reg is
// nil. It fails if the scheduler statistics are not readable, callers may
// ignore that at the cost of the metrics.
func Init(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	pid := os.Getpid()
	tasks, err := os.Open(filepath.Join(procfs.DefaultMountPoint, strconv.Itoa(pid), "task"))
	if err != nil {
		return serrors.Wrap("opening task directory", err, "pid", pid)
	}
	c := &schedCollector{pid: pid, tasks: tasks}
	if err := c.update(); err != nil {
		tasks.Close()
		return serrors.Wrap("reading scheduler statistics", err)
	}
	if err := reg.Register(c); err != nil {
		tasks.Close()
		return serrors.Wrap("registering collector", err)
	}
	return nil
}
