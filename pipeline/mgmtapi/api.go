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

// Package mgmtapi implements the management API of a pipeline.
package mgmtapi

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pipeline/modules"
	"github.com/pktpipe/pktpipe/pkg/htable"
	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/metadata"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
	api "github.com/pktpipe/pktpipe/private/mgmtapi"
)

// BaseURL is the prefix of all routes.
const BaseURL = "/api/v1"

// Server implements the management API.
type Server struct {
	Pipeline *pipeline.Pipeline
	Logger   log.Logger
}

// PlanResponse is the metadata plan together with whether it reflects the
// current graph.
type PlanResponse struct {
	Current bool `json:"current"`
	*metadata.Plan
}

// TableResponse lists the entries of a table.
type TableResponse struct {
	Entries     []pipeline.TableEntry `json:"entries"`
	DefaultGate int                   `json:"default_gate"`
	Stats       htable.Stats          `json:"stats"`
}

// TableRequest adds table entries.
type TableRequest struct {
	Entries []pipeline.TableEntry `json:"entries"`
}

// DefaultGate is the body of the default gate routes. A negative gate drops
// unmatched packets.
type DefaultGate struct {
	Gate int `json:"gate"`
}

// LookupRequest holds a frame as hex string, optionally prefixed with 0x.
type LookupRequest struct {
	Frame string `json:"frame"`
}

// LookupResponse is the forwarding decision for a frame.
type LookupResponse struct {
	Gate      int  `json:"gate"`
	Forwarded bool `json:"forwarded"`
}

// Handler returns the routes of s below BaseURL on r. If r is nil, a new
// router is created.
func Handler(s *Server, r chi.Router) http.Handler {
	if r == nil {
		r = chi.NewRouter()
	}
	r.Route(BaseURL, func(r chi.Router) {
		r.Get("/classes", s.GetClasses)
		r.Get("/modules", s.GetModules)
		r.Get("/modules/{name}", s.GetModule)
		r.Get("/modules/{name}/table", s.GetTable)
		r.Put("/modules/{name}/table", s.AddTableEntries)
		r.Delete("/modules/{name}/table", s.ClearTable)
		r.Delete("/modules/{name}/table/{key}", s.DeleteTableEntry)
		r.Put("/modules/{name}/default_gate", s.SetDefaultGate)
		r.Post("/modules/{name}/lookup", s.Lookup)
		r.Get("/metadata", s.GetMetadata)
		r.Post("/metadata/compute", s.ComputeMetadata)
	})
	return r
}

func (s *Server) logger() log.Logger {
	if s.Logger == nil {
		return log.Root()
	}
	return s.Logger
}

// GetClasses lists the module classes.
func (s *Server) GetClasses(w http.ResponseWriter, r *http.Request) {
	api.JSONResponse(w, http.StatusOK, modules.Classes())
}

// GetModules lists all modules.
func (s *Server) GetModules(w http.ResponseWriter, r *http.Request) {
	api.JSONResponse(w, http.StatusOK, s.Pipeline.Describe())
}

// GetModule describes one module.
func (s *Server) GetModule(w http.ResponseWriter, r *http.Request) {
	info, err := s.Pipeline.DescribeModule(chi.URLParam(r, "name"))
	if err != nil {
		s.error(w, "module not found", err)
		return
	}
	api.JSONResponse(w, http.StatusOK, info)
}

// GetTable lists the entries of a table module.
func (s *Server) GetTable(w http.ResponseWriter, r *http.Request) {
	var rep TableResponse
	err := s.Pipeline.WithTable(chi.URLParam(r, "name"), func(t pipeline.Table) error {
		rep.Entries = t.Entries()
		rep.DefaultGate = t.DefaultGate()
		rep.Stats = t.TableStats()
		return nil
	})
	if err != nil {
		s.error(w, "error reading table", err)
		return
	}
	if rep.Entries == nil {
		rep.Entries = []pipeline.TableEntry{}
	}
	api.JSONResponse(w, http.StatusOK, rep)
}

// AddTableEntries adds or updates entries of a table module.
func (s *Server) AddTableEntries(w http.ResponseWriter, r *http.Request) {
	var req TableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := chi.URLParam(r, "name")
	var stats htable.Stats
	err := s.Pipeline.WithTable(name, func(t pipeline.Table) error {
		if err := t.AddEntries(req.Entries); err != nil {
			return err
		}
		stats = t.TableStats()
		return nil
	})
	if err != nil {
		s.error(w, "error adding entries", err)
		return
	}
	s.logger().Info("Table entries added", "module", name, "entries", len(req.Entries))
	api.JSONResponse(w, http.StatusOK, stats)
}

// DeleteTableEntry removes an entry of a table module.
func (s *Server) DeleteTableEntry(w http.ResponseWriter, r *http.Request) {
	name, key := chi.URLParam(r, "name"), chi.URLParam(r, "key")
	err := s.Pipeline.WithTable(name, func(t pipeline.Table) error {
		return t.DeleteEntry(key)
	})
	if err != nil {
		s.error(w, "error deleting entry", err)
		return
	}
	s.logger().Info("Table entry deleted", "module", name, "key", key)
	w.WriteHeader(http.StatusNoContent)
}

// ClearTable removes all entries of a table module.
func (s *Server) ClearTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := s.Pipeline.WithTable(name, func(t pipeline.Table) error {
		t.Clear()
		return nil
	})
	if err != nil {
		s.error(w, "error clearing table", err)
		return
	}
	s.logger().Info("Table cleared", "module", name)
	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultGate sets the gate of packets without a matching entry.
func (s *Server) SetDefaultGate(w http.ResponseWriter, r *http.Request) {
	var req DefaultGate
	if !decodeBody(w, r, &req) {
		return
	}
	name := chi.URLParam(r, "name")
	err := s.Pipeline.WithTable(name, func(t pipeline.Table) error {
		return t.SetDefaultGate(req.Gate)
	})
	if err != nil {
		s.error(w, "error setting default gate", err)
		return
	}
	s.logger().Info("Default gate set", "module", name, "gate", req.Gate)
	api.JSONResponse(w, http.StatusOK, req)
}

// Lookup returns the gate a table module would emit a frame on.
func (s *Server) Lookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	frame, err := hex.DecodeString(strings.TrimPrefix(req.Frame, "0x"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "malformed frame", api.BadRequest, err)
		return
	}
	var rep LookupResponse
	err = s.Pipeline.WithTable(chi.URLParam(r, "name"), func(t pipeline.Table) error {
		fl, ok := t.(pipeline.FrameLookup)
		if !ok {
			return serrors.JoinNoStack(pipeline.ErrUnsupported, nil, "operation", "lookup")
		}
		var err error
		rep.Gate, rep.Forwarded, err = fl.LookupFrame(frame)
		return err
	})
	if err != nil {
		s.error(w, "error looking up frame", err)
		return
	}
	api.JSONResponse(w, http.StatusOK, rep)
}

// GetMetadata returns the last computed metadata plan.
func (s *Server) GetMetadata(w http.ResponseWriter, r *http.Request) {
	plan, current := s.Pipeline.Plan()
	if plan == nil {
		api.Error(w, http.StatusNotFound, "metadata offsets not computed", api.NotFound, nil)
		return
	}
	api.JSONResponse(w, http.StatusOK, PlanResponse{Current: current, Plan: plan})
}

// ComputeMetadata recomputes the metadata offsets.
func (s *Server) ComputeMetadata(w http.ResponseWriter, r *http.Request) {
	plan, err := s.Pipeline.ComputeMetadataOffsets()
	if err != nil {
		s.error(w, "error computing metadata offsets", err)
		return
	}
	api.JSONResponse(w, http.StatusOK, PlanResponse{Current: true, Plan: plan})
}

func (s *Server) error(w http.ResponseWriter, title string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound), errors.Is(err, htable.ErrNotFound):
		api.Error(w, http.StatusNotFound, title, api.NotFound, err)
	case errors.Is(err, pipeline.ErrNotTable), errors.Is(err, pipeline.ErrUnsupported),
		errors.Is(err, modules.ErrInvalidArgs), errors.Is(err, htable.ErrInvalidArgument):
		api.Error(w, http.StatusBadRequest, title, api.BadRequest, err)
	case errors.Is(err, htable.ErrNoMemory):
		api.Error(w, http.StatusInsufficientStorage, title, api.NoMemory, err)
	default:
		s.logger().Error("Management API request failed", "title", title, "err", err)
		api.Error(w, http.StatusInternalServerError, title, api.InternalError, err)
	}
}

// decodeBody decodes the JSON body of r into v. Unknown fields are an error.
// On failure it writes the problem and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		api.Error(w, http.StatusBadRequest, "malformed request body", api.BadRequest, err)
		return false
	}
	return true
}
