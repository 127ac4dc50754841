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

package log_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/log/testlog"
	"github.com/pktpipe/pktpipe/private/config"
)

func TestConsoleConfigValidate(t *testing.T) {
	testCases := map[string]struct {
		cfg       log.ConsoleConfig
		assertErr assert.ErrorAssertionFunc
	}{
		"defaults": {
			assertErr: assert.NoError,
		},
		"json debug": {
			cfg:       log.ConsoleConfig{Level: "debug", Format: "json"},
			assertErr: assert.NoError,
		},
		"stacktrace at error": {
			cfg:       log.ConsoleConfig{StacktraceLevel: "error"},
			assertErr: assert.NoError,
		},
		"bad level": {
			cfg:       log.ConsoleConfig{Level: "verbose"},
			assertErr: assert.Error,
		},
		"bad stacktrace level": {
			cfg:       log.ConsoleConfig{StacktraceLevel: "always"},
			assertErr: assert.Error,
		},
		"bad format": {
			cfg:       log.ConsoleConfig{Format: "xml"},
			assertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			tc.cfg.InitDefaults()
			tc.assertErr(t, tc.cfg.Validate())
		})
	}
}

func TestConfigSample(t *testing.T) {
	var cfg log.Config
	sample := config.SampleString(&cfg, nil)
	require.NoError(t, config.Decode([]byte(sample), &cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, log.DefaultConsoleLevel, cfg.Console.Level)
	assert.Equal(t, "human", cfg.Console.Format)
}

func TestSetupEntriesCounter(t *testing.T) {
	counter := log.EntriesCounter{
		Info: prometheus.NewCounter(prometheus.CounterOpts{Name: "info"}),
		Warn: prometheus.NewCounter(prometheus.CounterOpts{Name: "warn"}),
	}
	require.NoError(t, log.Setup(log.Config{
		Console: log.ConsoleConfig{Level: "warn", DisableCaller: true},
	}, log.WithEntriesCounter(counter)))
	defer func() {
		require.NoError(t, log.Setup(log.Config{}))
	}()

	log.Info("suppressed")
	log.Warn("emitted", "module", "sink0")
	assert.Equal(t, 0.0, testutil.ToFloat64(counter.Info))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.Warn))
	assert.False(t, log.Root().Enabled(log.InfoLevel))
}

func TestSetupInvalid(t *testing.T) {
	err := log.Setup(log.Config{Console: log.ConsoleConfig{Format: "yaml"}})
	assert.Error(t, err)
}

func TestContext(t *testing.T) {
	logger, logs := testlog.NewObserved(log.DebugLevel)
	ctx := log.CtxWith(context.Background(), logger)
	assert.Same(t, logger, log.FromCtx(ctx))

	ctx = log.CtxWith(ctx, log.FromCtx(ctx).New("module", "l2fwd0"))
	log.FromCtx(ctx).Info("table updated")
	log.FromCtx(ctx).Debug("again")

	require.Equal(t, 2, logs.Len())
	for _, e := range logs.All() {
		assert.Equal(t, "l2fwd0", e.ContextMap()["module"])
	}
	assert.NotNil(t, log.FromCtx(context.Background()))
}
