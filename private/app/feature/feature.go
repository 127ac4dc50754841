// Copyright 2020 Anapaya Systems
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

// Package feature parses feature flags given by name, e.g. in the
// configuration or on the command line.
//
// A flag set is a struct of booleans. The name of a flag is the value of its
// feature tag, or the field name if there is no tag. Non-boolean fields are
// not flags.
package feature

import (
	"reflect"
	"slices"
	"strings"

	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

// Parse enables the named flags in set, which must be a non-nil pointer to
// a struct.
func Parse(names []string, set any) error {
	val := reflect.ValueOf(set)
	if val.Kind() != reflect.Ptr || val.IsNil() || val.Elem().Kind() != reflect.Struct {
		return serrors.New("feature set must be a non-nil struct pointer",
			"type", reflect.TypeOf(set))
	}
	flags := flagFields(val.Type())
	for _, name := range names {
		i, ok := flags[name]
		if !ok {
			return serrors.New("feature not supported", "feature", name,
				"supported", String(set, ","))
		}
		val.Elem().Field(i).SetBool(true)
	}
	return nil
}

// ParseFlags parses the pktpipe flags.
func ParseFlags(names []string) (Flags, error) {
	var f Flags
	if err := Parse(names, &f); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// Names returns the flag names of set in lexical order.
func Names(set any) []string {
	if set == nil {
		return nil
	}
	var names []string
	for name := range flagFields(reflect.TypeOf(set)) {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Enabled returns the names of the flags that are set, in lexical order.
func Enabled(set any) []string {
	val := reflect.Indirect(reflect.ValueOf(set))
	if !val.IsValid() {
		return nil
	}
	var names []string
	for name, i := range flagFields(val.Type()) {
		if val.Field(i).Bool() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// String joins the flag names of set with sep.
func String(set any, sep string) string {
	return strings.Join(Names(set), sep)
}

func flagFields(t reflect.Type) map[string]int {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	flags := map[string]int{}
	if t.Kind() != reflect.Struct {
		return flags
	}
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Type.Kind() != reflect.Bool {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("feature"); ok {
			name, _, _ = strings.Cut(tag, ",")
		}
		flags[name] = i
	}
	return flags
}

// Flags are the pktpipe feature flags.
type Flags struct {
	// StrictMetadata refuses to run a pipeline with reads of attributes
	// nobody writes upstream.
	StrictMetadata bool `feature:"strict_metadata"`
	// XXHashTables makes xxhash the default hasher of lookup tables.
	XXHashTables bool `feature:"xxhash_tables"`
}
