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

package env_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktpipe/pktpipe/private/config"
	"github.com/pktpipe/pktpipe/private/env"
)

func TestGeneralSample(t *testing.T) {
	var sample bytes.Buffer
	var cfg env.General
	cfg.Sample(&sample, nil, config.CtxMap{config.ID: "pipe-1"})
	require.NoError(t, config.Decode(sample.Bytes(), &cfg))
	assert.Equal(t, "pipe-1", cfg.ID)
	assert.Empty(t, cfg.ConfigDir)
	assert.NoError(t, cfg.Validate())
}

func TestGeneralValidate(t *testing.T) {
	testCases := map[string]struct {
		Cfg       env.General
		AssertErr assert.ErrorAssertionFunc
	}{
		"missing id": {
			Cfg:       env.General{},
			AssertErr: assert.Error,
		},
		"config dir is a directory": {
			Cfg:       env.General{ID: "a", ConfigDir: t.TempDir()},
			AssertErr: assert.NoError,
		},
		"config dir does not exist": {
			Cfg:       env.General{ID: "a", ConfigDir: "/does/not/exist"},
			AssertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			tc.AssertErr(t, tc.Cfg.Validate())
		})
	}
}

func TestMetricsSample(t *testing.T) {
	var sample bytes.Buffer
	var cfg env.Metrics
	cfg.Sample(&sample, nil, nil)
	require.NoError(t, config.Decode(sample.Bytes(), &cfg))
	assert.Empty(t, cfg.Prometheus)
	assert.NoError(t, cfg.Validate())
}

func TestAPISample(t *testing.T) {
	var sample bytes.Buffer
	var cfg env.API
	cfg.Sample(&sample, nil, nil)
	require.NoError(t, config.Decode(sample.Bytes(), &cfg))
	assert.Equal(t, env.DefaultAPIAddr, cfg.Addr)
	assert.NoError(t, cfg.Validate())

	cfg.Addr = "no-port"
	assert.Error(t, cfg.Validate())
}
