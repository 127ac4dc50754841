// Copyright 2019 Anapaya Systems
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

package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// CtxMap carries values into sample generation, e.g. the instance ID under
// the key ID.
type CtxMap map[string]string

// WriteSample renders the samplers to dst in order. A TableSampler is
// written below its own header, path extended by its name, with the body
// indented by four spaces.
func WriteSample(dst io.Writer, path Path, ctx CtxMap, samplers ...Sampler) {
	var body bytes.Buffer
	for _, s := range samplers {
		body.Reset()
		ts, ok := s.(TableSampler)
		if !ok {
			s.Sample(&body, path, ctx)
			mustCopy(dst, &body)
			continue
		}
		table := path.Extend(ts.ConfigName())
		WriteString(dst, "\n["+strings.Join(table, ".")+"]")
		ts.Sample(&body, table, ctx)
		indent(dst, &body)
	}
}

// SampleString returns the sample of s rendered at the top level.
func SampleString(s Sampler, ctx CtxMap) string {
	var sb strings.Builder
	s.Sample(&sb, nil, ctx)
	return sb.String()
}

// WriteString writes s to dst and panics on failure.
func WriteString(dst io.Writer, s string) {
	if _, err := io.WriteString(dst, s); err != nil {
		panic(fmt.Sprintf("writing sample: %s", err))
	}
}

func mustCopy(dst io.Writer, src io.Reader) {
	if _, err := io.Copy(dst, src); err != nil {
		panic(fmt.Sprintf("writing sample: %s", err))
	}
}

func indent(dst io.Writer, src io.Reader) {
	lines := bufio.NewScanner(src)
	for lines.Scan() {
		line := lines.Text()
		if line != "" {
			line = "    " + line
		}
		WriteString(dst, line+"\n")
	}
}
