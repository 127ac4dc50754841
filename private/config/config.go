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

// Package config holds the building blocks of the pktpipe TOML
// configuration.
//
// A configuration is a tree of blocks. Every block fills in its own
// defaults (InitDefaults), checks itself (Validate) and renders a commented
// TOML sample of itself (Sample). A parent block forwards each of these
// calls to its children, usually through InitAll, ValidateAll and
// WriteSample. The samples double as test fixtures: decoding a sample must
// yield the defaults.
//
// Sample panics on write errors, since it only ever writes to memory or to
// the terminal.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

// ID is the sample context key of the instance ID.
const ID = "id"

// Config is a configuration block.
type Config interface {
	Sampler
	Validator
	Defaulter
}

// Validator checks a block and all its children.
type Validator interface {
	Validate() error
}

// Defaulter fills in the unset fields of a block and all its children.
type Defaulter interface {
	InitDefaults()
}

// Sampler writes the TOML sample of a block to dst.
type Sampler interface {
	Sample(dst io.Writer, path Path, ctx CtxMap)
}

// TableSampler is a Sampler whose sample is a TOML table of its own.
// WriteSample emits the table header and indents the body.
type TableSampler interface {
	Sampler
	ConfigName() string
}

// Path is the dotted name of a TOML table, e.g. {"pipeline", "graph"}.
type Path []string

// Extend returns a copy of p with s appended. p itself is not modified.
func (p Path) Extend(s string) Path {
	return append(append(make(Path, 0, len(p)+1), p...), s)
}

// NoDefaulter can be embedded by blocks without defaults.
type NoDefaulter struct{}

// InitDefaults does nothing.
func (NoDefaulter) InitDefaults() {}

// InitAll calls InitDefaults on every block in order.
func InitAll(blocks ...Defaulter) {
	for _, b := range blocks {
		b.InitDefaults()
	}
}

// ValidateAll validates the blocks in order and stops at the first error.
func ValidateAll(blocks ...Validator) error {
	for _, b := range blocks {
		if err := b.Validate(); err != nil {
			return serrors.Wrap("invalid config block", err, "block", fmt.Sprintf("%T", b))
		}
	}
	return nil
}

// Decode decodes raw TOML into cfg. Keys that do not map to a field are an
// error, so typos in a config file do not go unnoticed.
func Decode(raw []byte, cfg any) error {
	return toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(cfg)
}

// LoadFile decodes the TOML file into cfg. Decoding errors carry the row and
// column of the offending key.
func LoadFile(file string, cfg any) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	err = Decode(raw, cfg)
	var derr *toml.DecodeError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &derr):
		row, col := derr.Position()
		return serrors.Wrap("decoding config", err, "file", file, "row", row, "col", col)
	default:
		return serrors.Wrap("decoding config", err, "file", file)
	}
}
