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

// Package flag contains command line flag values.
package flag

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/pktpipe/pktpipe/private/app/feature"
)

var _ pflag.Value = (*Features)(nil)

// Features is a repeatable flag of comma separated feature names. Names are
// checked against the flags in feature.Flags when set.
type Features struct {
	names []string
}

func (f *Features) Set(val string) error {
	var names []string
	for _, n := range strings.Split(val, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if _, err := feature.ParseFlags(names); err != nil {
		return err
	}
	f.names = append(f.names, names...)
	return nil
}

func (f *Features) Type() string   { return "features" }
func (f *Features) String() string { return strings.Join(f.names, ",") }

// Names returns the features set so far.
func (f *Features) Names() []string {
	return f.names
}

// Register adds the features flag to fs.
func (f *Features) Register(fs *pflag.FlagSet) {
	fs.Var(f, "features", "Enable features, comma separated (supported: "+
		feature.String(feature.Flags{}, ", ")+")")
}
