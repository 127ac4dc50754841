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

package serrors

import (
	"fmt"
	"runtime"
	"strconv"

	"go.uber.org/zap/zapcore"
)

// Frame represents a program counter inside a stack frame.
type Frame uintptr

// pc returns the program counter for this frame. Frame stores pc+1 because
// runtime.Callers reports return addresses.
func (f Frame) pc() uintptr { return uintptr(f) - 1 }

func (f Frame) location() (file string, line int, name string) {
	fn := runtime.FuncForPC(f.pc())
	if fn == nil {
		return "unknown", 0, "unknown"
	}
	file, line = fn.FileLine(f.pc())
	return file, line, fn.Name()
}

// MarshalText formats the frame as "function file:line".
func (f Frame) MarshalText() ([]byte, error) {
	file, line, name := f.location()
	if name == "unknown" {
		return []byte(name), nil
	}
	return []byte(name + " " + file + ":" + strconv.Itoa(line)), nil
}

// StackTrace is a stack of Frames from innermost (newest) to outermost.
type StackTrace []Frame

// String renders one frame per line.
func (st StackTrace) String() string {
	var s string
	for _, f := range st {
		t, _ := f.MarshalText()
		s += fmt.Sprintf("%s\n", t)
	}
	return s
}

type stack []uintptr

func (s *stack) StackTrace() StackTrace {
	f := make([]Frame, len(*s))
	for i := range f {
		f[i] = Frame((*s)[i])
	}
	return f
}

func callers() *stack {
	const depth = 32
	var pcs [depth]uintptr
	// Skip runtime.Callers, callers, newError and the exported constructor.
	n := runtime.Callers(4, pcs[:])
	var st stack = pcs[0:n]
	return &st
}

func (s *stack) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, pc := range *s {
		t, err := Frame(pc).MarshalText()
		if err != nil {
			return err
		}
		enc.AppendByteString(t)
	}
	return nil
}
