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

package mgmtapi_test

import (
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mdlayher/ethernet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pipeline/mgmtapi"
	"github.com/pktpipe/pktpipe/pipeline/modules"
	"github.com/pktpipe/pktpipe/pkg/htable"
	"github.com/pktpipe/pktpipe/pkg/log/testlog"
	"github.com/pktpipe/pktpipe/pkg/metrics/v2"
	"github.com/pktpipe/pktpipe/pkg/private/xtest"
	api "github.com/pktpipe/pktpipe/private/mgmtapi"
)

var update = xtest.UpdateGoldenFiles()

var (
	knownMAC   = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0a}
	unknownMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0b}
)

// newPipeline builds mark -> em -> {miss, hit} plus a standalone l2 table.
// The offsets are not computed.
func newPipeline(t *testing.T) *pipeline.Pipeline {
	p := pipeline.New(pipeline.Options{Logger: testlog.NewLogger(t)})
	specs := []modules.Spec{
		{Name: "mark", Class: "SetMetadata", Args: modules.Args{"attrs": []any{
			map[string]any{"name": "color", "size": int64(2), "value": "0x0007"},
		}}},
		{Name: "em", Class: "ExactMatch", Args: modules.Args{
			"fields":       []any{map[string]any{"attr": "color", "size": int64(2)}},
			"default_gate": int64(0),
			"entries":      []any{map[string]any{"key": "0007", "gate": int64(1)}},
		}},
		{Name: "miss", Class: "Sink"},
		{Name: "hit", Class: "Sink"},
		{Name: "l2", Class: "L2Forward", Args: modules.Args{"memory_limit": int64(1024)}},
	}
	links := []modules.Link{
		{From: "mark", To: "em"},
		{From: "em", OGate: 0, To: "miss"},
		{From: "em", OGate: 1, To: "hit"},
	}
	opts := modules.Options{
		Metrics: []metrics.Option{metrics.WithRegistry(prometheus.NewRegistry())},
	}
	require.NoError(t, modules.Build(p, specs, links, opts))
	t.Cleanup(p.Close)
	return p
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func problem(t *testing.T, rr *httptest.ResponseRecorder) api.Problem {
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p api.Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, rr.Code, p.Status)
	return p
}

func TestAPI(t *testing.T) {
	testCases := map[string]struct {
		setup  func(t *testing.T, p *pipeline.Pipeline)
		method string
		path   string
		body   string
		status int
		golden string
		check  func(t *testing.T, p *pipeline.Pipeline, rr *httptest.ResponseRecorder)
	}{
		"module": {
			setup:  compute,
			method: http.MethodGet,
			path:   "/api/v1/modules/mark",
			status: http.StatusOK,
			golden: "module-mark.json",
		},
		"module not found": {
			method: http.MethodGet,
			path:   "/api/v1/modules/nope",
			status: http.StatusNotFound,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				p := problem(t, rr)
				assert.Equal(t, "module not found", p.Title)
				assert.Equal(t, api.NotFound, *p.Type)
			},
		},
		"modules": {
			method: http.MethodGet,
			path:   "/api/v1/modules",
			status: http.StatusOK,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				var infos []pipeline.ModuleInfo
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &infos))
				require.Len(t, infos, 5)
				for i, name := range []string{"mark", "em", "miss", "hit", "l2"} {
					assert.Equal(t, name, infos[i].Name)
					assert.Equal(t, i, infos[i].Index)
				}
				assert.True(t, infos[1].Table)
				assert.False(t, infos[2].Table)
				assert.Empty(t, infos[4].OGates)
			},
		},
		"classes": {
			method: http.MethodGet,
			path:   "/api/v1/classes",
			status: http.StatusOK,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				var classes []struct{ Name string }
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &classes))
				assert.Len(t, classes, len(modules.Classes()))
			},
		},
		"table": {
			method: http.MethodGet,
			path:   "/api/v1/modules/em/table",
			status: http.StatusOK,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				var rep mgmtapi.TableResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
				assert.Equal(t, 1, rep.Stats.Count)
				// The stats depend on the table layout, they are not golden.
				raw, err := json.Marshal(struct {
					Entries     []pipeline.TableEntry `json:"entries"`
					DefaultGate int                   `json:"default_gate"`
				}{rep.Entries, rep.DefaultGate})
				require.NoError(t, err)
				xtest.AssertGoldenJSON(t, *update, raw, "table-em.json")
			},
		},
		"empty table": {
			method: http.MethodGet,
			path:   "/api/v1/modules/l2/table",
			status: http.StatusOK,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				assert.Contains(t, rr.Body.String(), `"entries": []`)
			},
		},
		"not a table": {
			method: http.MethodGet,
			path:   "/api/v1/modules/miss/table",
			status: http.StatusBadRequest,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				assert.Equal(t, api.BadRequest, *problem(t, rr).Type)
			},
		},
		"add entries": {
			method: http.MethodPut,
			path:   "/api/v1/modules/l2/table",
			body:   `{"entries": [{"key": "02:00:00:00:00:0a", "gate": 3}]}`,
			status: http.StatusOK,
			check: func(t *testing.T, p *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				var stats htable.Stats
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
				assert.Equal(t, 1, stats.Count)
				require.NoError(t, p.WithTable("l2", func(tbl pipeline.Table) error {
					assert.Equal(t, []pipeline.TableEntry{
						{Key: "02:00:00:00:00:0a", Gate: 3},
					}, tbl.Entries())
					return nil
				}))
			},
		},
		"add invalid entry": {
			method: http.MethodPut,
			path:   "/api/v1/modules/l2/table",
			body:   `{"entries": [{"key": "not-a-mac", "gate": 3}]}`,
			status: http.StatusBadRequest,
		},
		"add unknown field": {
			method: http.MethodPut,
			path:   "/api/v1/modules/l2/table",
			body:   `{"rules": []}`,
			status: http.StatusBadRequest,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				assert.Equal(t, "malformed request body", problem(t, rr).Title)
			},
		},
		"add out of memory": {
			method: http.MethodPut,
			path:   "/api/v1/modules/l2/table",
			body:   manyEntries(1000),
			status: http.StatusInsufficientStorage,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				assert.Equal(t, api.NoMemory, *problem(t, rr).Type)
			},
		},
		"delete entry": {
			method: http.MethodDelete,
			path:   "/api/v1/modules/em/table/0007",
			status: http.StatusNoContent,
			check: func(t *testing.T, p *pipeline.Pipeline, _ *httptest.ResponseRecorder) {
				require.NoError(t, p.WithTable("em", func(tbl pipeline.Table) error {
					assert.Empty(t, tbl.Entries())
					return nil
				}))
			},
		},
		"clear table": {
			method: http.MethodDelete,
			path:   "/api/v1/modules/em/table",
			status: http.StatusNoContent,
			check: func(t *testing.T, p *pipeline.Pipeline, _ *httptest.ResponseRecorder) {
				require.NoError(t, p.WithTable("em", func(tbl pipeline.Table) error {
					assert.Empty(t, tbl.Entries())
					assert.Equal(t, 0, tbl.TableStats().Count)
					return nil
				}))
			},
		},
		"clear not a table": {
			method: http.MethodDelete,
			path:   "/api/v1/modules/miss/table",
			status: http.StatusBadRequest,
		},
		"set default gate": {
			method: http.MethodPut,
			path:   "/api/v1/modules/em/default_gate",
			body:   `{"gate": 1}`,
			status: http.StatusOK,
			golden: "default-gate-em.json",
			check: func(t *testing.T, p *pipeline.Pipeline, _ *httptest.ResponseRecorder) {
				require.NoError(t, p.WithTable("em", func(tbl pipeline.Table) error {
					assert.Equal(t, 1, tbl.DefaultGate())
					return nil
				}))
			},
		},
		"set default gate drop": {
			method: http.MethodPut,
			path:   "/api/v1/modules/l2/default_gate",
			body:   `{"gate": -1}`,
			status: http.StatusOK,
		},
		"set default gate out of range": {
			method: http.MethodPut,
			path:   "/api/v1/modules/l2/default_gate",
			body:   `{"gate": 64}`,
			status: http.StatusBadRequest,
			check: func(t *testing.T, p *pipeline.Pipeline, _ *httptest.ResponseRecorder) {
				require.NoError(t, p.WithTable("l2", func(tbl pipeline.Table) error {
					assert.Equal(t, 0, tbl.DefaultGate())
					return nil
				}))
			},
		},
		"lookup": {
			setup:  addL2Entry,
			method: http.MethodPost,
			path:   "/api/v1/modules/l2/lookup",
			body:   lookupBody(t, knownMAC),
			status: http.StatusOK,
			golden: "lookup-l2.json",
		},
		"lookup unknown dropped": {
			setup: func(t *testing.T, p *pipeline.Pipeline) {
				addL2Entry(t, p)
				require.NoError(t, p.WithTable("l2", func(tbl pipeline.Table) error {
					return tbl.SetDefaultGate(-1)
				}))
			},
			method: http.MethodPost,
			path:   "/api/v1/modules/l2/lookup",
			body:   lookupBody(t, unknownMAC),
			status: http.StatusOK,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				var rep mgmtapi.LookupResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
				assert.Equal(t, mgmtapi.LookupResponse{Gate: -1, Forwarded: false}, rep)
			},
		},
		"lookup unsupported": {
			method: http.MethodPost,
			path:   "/api/v1/modules/em/lookup",
			body:   lookupBody(t, knownMAC),
			status: http.StatusBadRequest,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				assert.Contains(t, *problem(t, rr).Detail, "operation not supported")
			},
		},
		"lookup malformed hex": {
			method: http.MethodPost,
			path:   "/api/v1/modules/l2/lookup",
			body:   `{"frame": "zz"}`,
			status: http.StatusBadRequest,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				assert.Equal(t, "malformed frame", problem(t, rr).Title)
			},
		},
		"lookup truncated frame": {
			method: http.MethodPost,
			path:   "/api/v1/modules/l2/lookup",
			body:   `{"frame": "0x0200"}`,
			status: http.StatusBadRequest,
		},
		"delete missing entry": {
			method: http.MethodDelete,
			path:   "/api/v1/modules/em/table/0008",
			status: http.StatusNotFound,
		},
		"metadata not computed": {
			method: http.MethodGet,
			path:   "/api/v1/metadata",
			status: http.StatusNotFound,
		},
		"metadata stale": {
			setup: func(t *testing.T, p *pipeline.Pipeline) {
				compute(t, p)
				require.NoError(t, p.Disconnect("em", 1))
			},
			method: http.MethodGet,
			path:   "/api/v1/metadata",
			status: http.StatusOK,
			check: func(t *testing.T, _ *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				var rep mgmtapi.PlanResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
				assert.False(t, rep.Current)
				require.NotNil(t, rep.Plan)
				require.Len(t, rep.Components, 1)
				assert.Equal(t, "color", rep.Components[0].Attr)
			},
		},
		"compute metadata": {
			method: http.MethodPost,
			path:   "/api/v1/metadata/compute",
			status: http.StatusOK,
			check: func(t *testing.T, p *pipeline.Pipeline, rr *httptest.ResponseRecorder) {
				var rep mgmtapi.PlanResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
				assert.True(t, rep.Current)
				assert.Equal(t, 2, rep.ScratchBytes)
				_, current := p.Plan()
				assert.True(t, current)
			},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			p := newPipeline(t)
			if tc.setup != nil {
				tc.setup(t, p)
			}
			h := mgmtapi.Handler(&mgmtapi.Server{Pipeline: p, Logger: testlog.NewLogger(t)}, nil)
			rr := serve(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			if tc.golden != "" {
				xtest.AssertGoldenJSON(t, *update, rr.Body.Bytes(), tc.golden)
			}
			if tc.check != nil {
				tc.check(t, p, rr)
			}
		})
	}
}

func compute(t *testing.T, p *pipeline.Pipeline) {
	_, err := p.ComputeMetadataOffsets()
	require.NoError(t, err)
}

func addL2Entry(t *testing.T, p *pipeline.Pipeline) {
	require.NoError(t, p.WithTable("l2", func(tbl pipeline.Table) error {
		return tbl.AddEntries([]pipeline.TableEntry{{Key: knownMAC.String(), Gate: 3}})
	}))
}

func lookupBody(t *testing.T, dst net.HardwareAddr) string {
	f := ethernet.Frame{
		Destination: dst,
		Source:      net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
		EtherType:   ethernet.EtherTypeIPv4,
		Payload:     []byte("payload"),
	}
	raw, err := f.MarshalBinary()
	require.NoError(t, err)
	body, err := json.Marshal(mgmtapi.LookupRequest{Frame: hex.EncodeToString(raw)})
	require.NoError(t, err)
	return string(body)
}

func manyEntries(n int) string {
	entries := make([]pipeline.TableEntry, 0, n)
	for i := 0; i < n; i++ {
		mac := net.HardwareAddr{0x02, 0, 0, 0, byte(i >> 8), byte(i)}
		entries = append(entries, pipeline.TableEntry{Key: mac.String(), Gate: 1})
	}
	raw, _ := json.Marshal(mgmtapi.TableRequest{Entries: entries})
	return string(raw)
}
