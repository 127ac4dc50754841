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

package util_test

import (
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktpipe/pktpipe/pkg/private/util"
)

func TestParseDuration(t *testing.T) {
	testCases := map[string]struct {
		input     string
		want      time.Duration
		assertErr assert.ErrorAssertionFunc
	}{
		"seconds":  {input: "10s", want: 10 * time.Second, assertErr: assert.NoError},
		"compound": {input: "1m30s", want: 90 * time.Second, assertErr: assert.NoError},
		"days":     {input: "2d", want: 48 * time.Hour, assertErr: assert.NoError},
		"bad days": {input: "xd", assertErr: assert.Error},
		"no unit":  {input: "10", assertErr: assert.Error},
		"empty":    {input: "", assertErr: assert.Error},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			d, err := util.ParseDuration(tc.input)
			tc.assertErr(t, err)
			assert.Equal(t, tc.want, d)
		})
	}
}

func TestDurWrapTOML(t *testing.T) {
	var cfg struct {
		Interval util.DurWrap `toml:"interval"`
	}
	require.NoError(t, toml.Unmarshal([]byte(`interval = "250ms"`), &cfg))
	assert.Equal(t, 250*time.Millisecond, cfg.Interval.Duration)

	raw, err := toml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "250ms")
}
