// Copyright 2018 ETH Zurich
// Copyright 2020 ETH Zurich, Anapaya Systems
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

// Package xtest contains helpers shared by tests.
package xtest

import (
	"encoding/hex"
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// UpdateGoldenFiles registers the '-update' flag for the test.
//
// Golden file tests check the flag to decide whether to rewrite the files
// under testdata instead of comparing against them. The flag should be
// registered as a package global variable:
//
//	var update = xtest.UpdateGoldenFiles()
func UpdateGoldenFiles() *bool {
	return flag.Bool("update", false, "set to regenerate the golden files")
}

// ExpandPath returns testdata/file.
func ExpandPath(file string) string {
	return filepath.Join("testdata", file)
}

// MustWriteToFile writes b to file testdata/baseName. On errors, t.Fatal() is
// called.
func MustWriteToFile(t testing.TB, b []byte, baseName string) {
	t.Helper()
	require.NoError(t, os.WriteFile(ExpandPath(baseName), b, 0644))
}

// MustReadFromFile reads testdata/baseName and returns the raw content. On
// errors, t.Fatal() is called.
func MustReadFromFile(t testing.TB, baseName string) []byte {
	t.Helper()
	b, err := os.ReadFile(ExpandPath(baseName))
	require.NoError(t, err)
	return b
}

// AssertGoldenJSON compares got with the golden file testdata/baseName. If
// update is set, the golden file is rewritten with got instead.
func AssertGoldenJSON(t testing.TB, update bool, got []byte, baseName string) {
	t.Helper()
	if update {
		MustWriteToFile(t, got, baseName)
	}
	assert.JSONEq(t, string(MustReadFromFile(t, baseName)), string(got))
}

var whitespace = regexp.MustCompile(`\s+`)

// MustParseHexString parses s and returns the corresponding byte slice.
// Whitespace is ignored. It panics if the decoding fails.
func MustParseHexString(s string) []byte {
	decoded, err := hex.DecodeString(whitespace.ReplaceAllString(s, ""))
	if err != nil {
		panic(err)
	}
	return decoded
}
