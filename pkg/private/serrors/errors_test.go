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

package serrors_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

type testErrType struct {
	msg string
}

func (e *testErrType) Error() string {
	return e.msg
}

func TestWrappers(t *testing.T) {
	sentinel := errors.New("table full")
	typed := &testErrType{msg: "typed"}
	testCases := map[string]struct {
		wrap func(cause error) error
		// joined wrappers also match the sentinel
		joined bool
	}{
		"Wrap": {
			wrap: func(cause error) error { return serrors.Wrap("msg", cause, "k", "v") },
		},
		"WrapNoStack": {
			wrap: func(cause error) error { return serrors.WrapNoStack("msg", cause, "k", "v") },
		},
		"Join": {
			wrap:   func(cause error) error { return serrors.Join(sentinel, cause, "k", "v") },
			joined: true,
		},
		"JoinNoStack": {
			wrap: func(cause error) error {
				return serrors.JoinNoStack(sentinel, cause, "k", "v")
			},
			joined: true,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			cause := serrors.New("simple err")
			err := tc.wrap(cause)
			assert.ErrorIs(t, err, cause)
			assert.ErrorIs(t, err, err)
			assert.Equal(t, tc.joined, errors.Is(err, sentinel))

			var errAs *testErrType
			require.True(t, errors.As(tc.wrap(typed), &errAs))
			assert.Equal(t, typed, errAs)
		})
	}
}

func TestNew(t *testing.T) {
	err1 := serrors.New("err msg", "someCtx", "value")
	err2 := serrors.New("err msg", "someCtx", "value")
	assert.ErrorIs(t, err1, err1)
	assert.False(t, errors.Is(err1, err2))
	assert.Equal(t, "err msg {someCtx=value}", err1.Error())
}

func TestContextSorted(t *testing.T) {
	err := serrors.WrapNoStack("bucket growth failed", io.EOF, "num_buckets", 8, "count", 3)
	assert.Equal(t, "bucket growth failed {count=3; num_buckets=8}: EOF", err.Error())
}

func TestEncoding(t *testing.T) {
	testCases := map[string]struct {
		err       error
		wantMsg   string
		wantCause any
		wantCtx   map[string]any
		stack     bool
	}{
		"new with context": {
			err:     serrors.New("err msg", "k0", "v0", "k1", 1),
			wantMsg: "err msg",
			wantCtx: map[string]any{"k0": "v0", "k1": 1.0},
			stack:   true,
		},
		"wrapped string cause": {
			err:       serrors.Wrap("msg error", io.ErrUnexpectedEOF, "k0", "v0"),
			wantMsg:   "msg error",
			wantCause: "unexpected EOF",
			wantCtx:   map[string]any{"k0": "v0"},
			stack:     true,
		},
		"joined no stack": {
			err:       serrors.JoinNoStack(errors.New("msg error"), errors.New("msg cause")),
			wantMsg:   "msg error",
			wantCause: "msg cause",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var b bytes.Buffer
			logger := zap.New(zapcore.NewCore(
				zapcore.NewJSONEncoder(zapcore.EncoderConfig{MessageKey: "msg"}),
				zapcore.AddSync(&b),
				zapcore.DebugLevel,
			))
			logger.Sugar().Infow("Failed to do thing", "err", tc.err)

			var parsed struct {
				Err map[string]any `json:"err"`
			}
			require.NoError(t, json.Unmarshal(b.Bytes(), &parsed), b.String())
			assert.Equal(t, tc.wantMsg, parsed.Err["msg"])
			if tc.wantCause != nil {
				assert.Equal(t, tc.wantCause, parsed.Err["cause"])
			}
			for k, v := range tc.wantCtx {
				assert.Equal(t, v, parsed.Err[k], k)
			}
			_, hasStack := parsed.Err["stacktrace"]
			assert.Equal(t, tc.stack, hasStack)
		})
	}
}

func TestJoinNil(t *testing.T) {
	assert.Nil(t, serrors.Join(nil, nil))
	assert.Nil(t, serrors.JoinNoStack(nil, nil))
}

func TestNoStackCauseKeepsOuterStack(t *testing.T) {
	inner := serrors.JoinNoStack(errors.New("no memory"), nil)
	var st interface{ StackTrace() serrors.StackTrace }
	require.True(t, errors.As(inner, &st))
	assert.Nil(t, st.StackTrace())
	assert.Equal(t, "grow {buckets=16}: no memory",
		serrors.WrapNoStack("grow", inner, "buckets", 16).Error())
}

func TestAtMostOneStacktrace(t *testing.T) {
	err := errors.New("core")
	for i := range [20]int{} {
		err = serrors.Wrap("wrap", err, "level", i)
	}

	var b bytes.Buffer
	logger := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{MessageKey: "msg"}),
		zapcore.AddSync(&b),
		zapcore.DebugLevel,
	))
	logger.Sugar().Infow("Failed to do thing", "err", err)

	require.Equal(t, 1, bytes.Count(b.Bytes(), []byte("stacktrace")))
}

func TestStackTrace(t *testing.T) {
	err := serrors.New("with stack")
	var st interface{ StackTrace() serrors.StackTrace }
	require.True(t, errors.As(err, &st))
	trace := st.StackTrace()
	require.NotEmpty(t, trace)
	assert.Contains(t, trace.String(), "TestStackTrace")
}

func ExampleWrap() {
	var ErrNoSpace = serrors.New("no space", "dev", "sd0")
	wrappedErr := serrors.Wrap("wrap with more context", ErrNoSpace, "ctx", 1)

	fmt.Println(errors.Is(wrappedErr, ErrNoSpace))
	fmt.Printf("\n%v", wrappedErr)
	// Output:
	// true
	//
	// wrap with more context {ctx=1}: no space {dev=sd0}
}

func ExampleJoinNoStack() {
	var ErrInvalidArgument = errors.New("invalid argument")
	err := serrors.JoinNoStack(ErrInvalidArgument, nil, "num_buckets", 3)

	fmt.Println(errors.Is(err, ErrInvalidArgument))
	fmt.Println(err)
	// Output:
	// true
	// invalid argument {num_buckets=3}
}
