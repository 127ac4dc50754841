// Copyright 2017 ETH Zurich
// Copyright 2018 ETH Zurich, Anapaya Systems
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

// Package prom contains the label names and values shared by pktpipe
// metrics.
package prom

import (
	"errors"
)

// Common label names.
const (
	// LabelResult is the label for result classifications.
	LabelResult = "result"
	// LabelModule is the name of a pipeline module.
	LabelModule = "module"
	// LabelClass is the class of a pipeline module.
	LabelClass = "class"
	// LabelReason classifies packet drops.
	LabelReason = "reason"
	// LabelOperation is the label for the name of an executed operation.
	LabelOperation = "op"
)

// Common result values.
const (
	// Success is no error.
	Success = "ok_success"
	// ErrInternal is an internal error.
	ErrInternal = "err_internal"
	// ErrInvalidReq is an invalid request.
	ErrInvalidReq = "err_invalid_request"
	// ErrNotFound is used for errors where a resource is not found.
	ErrNotFound = "err_not_found"
	// ErrNoMemory is used when a memory limit is hit.
	ErrNoMemory = "err_no_memory"
)

var (
	// DefaultLatencyBuckets 1us, 2us, 4us, ... 0.5ms, 1ms, ... 1s.
	DefaultLatencyBuckets = []float64{1e-6, 2e-6, 4e-6, 8e-6, 16e-6, 32e-6, 64e-6,
		128e-6, 256e-6, 512e-6, 1e-3, 1e-2, 1e-1, 1}
	// DefaultSizeBuckets 64, 128, 256, 512, 1024, 1518, 9000 bytes.
	DefaultSizeBuckets = []float64{64, 128, 256, 512, 1024, 1518, 9000}
)

// ResultClassifier maps an error to a result label value. Sentinels not in
// the table are classified as ErrInternal.
type ResultClassifier map[error]string

// Classify returns the result label value for err.
func (c ResultClassifier) Classify(err error) string {
	if err == nil {
		return Success
	}
	for sentinel, result := range c {
		if errors.Is(err, sentinel) {
			return result
		}
	}
	return ErrInternal
}
