// Copyright 2021 Anapaya Systems
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

// Package testlog provides loggers for tests.
package testlog

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pktpipe/pktpipe/pkg/log"
)

// NewLogger builds a new Logger that logs all messages to the given testing.TB.
func NewLogger(t testing.TB, opts ...zaptest.LoggerOption) log.Logger {
	return log.FromZap(zaptest.NewLogger(t, opts...))
}

// NewObserved builds a Logger that records every entry at or above lvl. The
// returned ObservedLogs can be used to assert on emitted entries, e.g.
//
//	logger, logs := testlog.NewObserved(log.WarnLevel)
//	...
//	assert.Equal(t, 1, logs.FilterMessage("orphan reader").Len())
func NewObserved(lvl log.Level) (log.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.Level(lvl))
	return log.FromZap(zap.New(core)), logs
}
