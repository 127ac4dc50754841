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

// Package mgmtapi contains the response helpers shared by the management
// APIs. Errors are reported as RFC 7807 problem documents.
package mgmtapi

import (
	"encoding/json"
	"net/http"
)

// Problem types.
const (
	BadRequest    = "/problems/bad-request"
	NotFound      = "/problems/not-found"
	Conflict      = "/problems/conflict"
	NoMemory      = "/problems/no-memory"
	InternalError = "/problems/internal-error"
)

// Problem is an RFC 7807 problem document.
type Problem struct {
	Detail *string `json:"detail,omitempty"`
	Status int     `json:"status"`
	Title  string  `json:"title"`
	Type   *string `json:"type,omitempty"`
}

// StringRef returns a pointer to s.
func StringRef(s string) *string {
	return &s
}

// ErrorResponse writes p.
func ErrorResponse(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	// no point in catching error here, there is nothing we can do about it anymore.
	_ = enc.Encode(p)
}

// Error writes a problem with the given status, title and type. The error
// text is the detail.
func Error(w http.ResponseWriter, status int, title, typ string, err error) {
	p := Problem{Status: status, Title: title, Type: StringRef(typ)}
	if err != nil {
		p.Detail = StringRef(err.Error())
	}
	ErrorResponse(w, p)
}

// JSONResponse writes v as indented JSON with the given status.
func JSONResponse(w http.ResponseWriter, status int, v any) {
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		Error(w, http.StatusInternalServerError, "unable to marshal response",
			InternalError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(raw, '\n'))
}
