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

// Package serrors provides errors that carry structured context. The
// context is a list of key value pairs that is rendered sorted by key, both
// in the error text and when the error is logged with zap.
//
// Wrap and New attach a stack trace unless the cause already went through
// this package. The NoStack variants never do; they are meant for errors
// that are expected in normal operation, e.g. a full table.
//
// Every error returned here is a pointer, so errors.Is(err, err) holds and
// two errors built from the same arguments are still distinct.
package serrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxPair struct {
	key   string
	value any
}

// ctxError is the single error type of the package. base is set for
// joined errors and replaces msg in that case.
type ctxError struct {
	base  error
	msg   string
	cause error
	ctx   []ctxPair
	stack *stack
}

func newError(base error, msg string, cause error, withStack bool, errCtx []any) *ctxError {
	e := &ctxError{base: base, msg: msg, cause: cause}
	for i := 0; i+1 < len(errCtx); i += 2 {
		e.ctx = append(e.ctx, ctxPair{key: fmt.Sprint(errCtx[i]), value: errCtx[i+1]})
	}
	sort.SliceStable(e.ctx, func(a, b int) bool { return e.ctx[a].key < e.ctx[b].key })
	var inner *ctxError
	if withStack && !errors.As(cause, &inner) {
		e.stack = callers()
	}
	return e
}

func (e *ctxError) head() string {
	if e.base != nil {
		return e.base.Error()
	}
	return e.msg
}

func (e *ctxError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.head())
	if len(e.ctx) > 0 {
		sb.WriteString(" {")
		for i, p := range e.ctx {
			if i > 0 {
				sb.WriteString("; ")
			}
			fmt.Fprintf(&sb, "%s=%v", p.key, p.value)
		}
		sb.WriteString("}")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

func (e *ctxError) Unwrap() []error {
	errs := make([]error, 0, 2)
	for _, err := range []error{e.base, e.cause} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// StackTrace returns the stack recorded at construction, or nil.
func (e *ctxError) StackTrace() StackTrace {
	if e.stack == nil {
		return nil
	}
	return e.stack.StackTrace()
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (e *ctxError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("msg", e.head())
	if m, ok := e.cause.(zapcore.ObjectMarshaler); ok {
		if err := enc.AddObject("cause", m); err != nil {
			return err
		}
	} else if e.cause != nil {
		enc.AddString("cause", e.cause.Error())
	}
	if e.stack != nil {
		if err := enc.AddArray("stacktrace", e.stack); err != nil {
			return err
		}
	}
	for _, p := range e.ctx {
		zap.Any(p.key, p.value).AddTo(enc)
	}
	return nil
}

// New returns an error with msg and the key value context errCtx. Use
// errors.New for sentinels; New records a stack trace.
func New(msg string, errCtx ...any) error {
	return newError(nil, msg, nil, true, errCtx)
}

// Wrap returns an error with msg that wraps cause, which may be nil.
func Wrap(msg string, cause error, errCtx ...any) error {
	return newError(nil, msg, cause, true, errCtx)
}

// WrapNoStack is Wrap without a stack trace.
func WrapNoStack(msg string, cause error, errCtx ...any) error {
	return newError(nil, msg, cause, false, errCtx)
}

// Join returns an error that matches both err, typically a sentinel, and
// cause. It returns nil if both are nil.
func Join(err, cause error, errCtx ...any) error {
	if err == nil && cause == nil {
		return nil
	}
	return newError(err, "", cause, true, errCtx)
}

// JoinNoStack is Join without a stack trace.
func JoinNoStack(err, cause error, errCtx ...any) error {
	if err == nil && cause == nil {
		return nil
	}
	return newError(err, "", cause, false, errCtx)
}
