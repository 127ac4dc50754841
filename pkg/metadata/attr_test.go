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

package metadata_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktpipe/pktpipe/pkg/metadata"
)

func TestAttrTableAdd(t *testing.T) {
	testCases := map[string]struct {
		name      string
		size      int
		mode      metadata.AccessMode
		assertErr assert.ErrorAssertionFunc
	}{
		"valid": {
			name:      "ts",
			size:      8,
			mode:      metadata.Write,
			assertErr: assert.NoError,
		},
		"empty name": {
			size: 1,
			mode: metadata.Read,
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
			},
		},
		"name too long": {
			name: strings.Repeat("x", metadata.DefaultMaxAttrNameLen+1),
			size: 1,
			mode: metadata.Read,
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
			},
		},
		"zero size": {
			name: "a",
			mode: metadata.Read,
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
			},
		},
		"size too large": {
			name: "a",
			size: metadata.DefaultMaxAttrSize + 1,
			mode: metadata.Write,
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
			},
		},
		"bad mode": {
			name: "a",
			size: 1,
			mode: metadata.AccessMode(7),
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
			},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			tbl := metadata.NewAttrTable(metadata.Options{}, nil)
			idx, err := tbl.Add(tc.name, tc.size, tc.mode)
			if !tc.assertErr(t, err) || err != nil {
				assert.Equal(t, 0, tbl.Len())
				return
			}
			assert.Equal(t, 0, idx)
			assert.Equal(t, metadata.OffsetUnassigned, tbl.Offset(idx))
			assert.Equal(t, idx, tbl.Index(tc.name))
		})
	}
}

func TestAttrTableLimit(t *testing.T) {
	tbl := metadata.NewAttrTable(metadata.Options{MaxAttrsPerModule: 2}, nil)
	for i := 0; i < 2; i++ {
		idx, err := tbl.Add(fmt.Sprintf("a%d", i), 1, metadata.Write)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
	_, err := tbl.Add("a2", 1, metadata.Write)
	assert.ErrorIs(t, err, metadata.ErrResourceExhausted)
	assert.Equal(t, 2, tbl.Len())
}

func TestRegistry(t *testing.T) {
	r := metadata.NewRegistry()
	require.NoError(t, r.Register("attr0", 1))
	err := r.Register("attr0", 2)
	assert.ErrorIs(t, err, metadata.ErrSizeMismatch)

	// Declarations are rejected on mismatch across modules.
	m0 := metadata.NewAttrTable(metadata.Options{}, r)
	m1 := metadata.NewAttrTable(metadata.Options{}, r)
	_, err = m0.Add("attr0", 1, metadata.Read)
	require.NoError(t, err)
	_, err = m1.Add("attr0", 2, metadata.Write)
	assert.ErrorIs(t, err, metadata.ErrSizeMismatch)
	assert.Equal(t, 0, m1.Len())

	// The name is forgotten with its last reference.
	r.Deregister("attr0")
	m0.Release()
	_, ok := r.Size("attr0")
	assert.False(t, ok)
	require.NoError(t, r.Register("attr0", 2))
	assert.Equal(t, []string{"attr0"}, r.Names())
}

func TestAccessModeText(t *testing.T) {
	for _, m := range []metadata.AccessMode{metadata.Read, metadata.Write, metadata.Update} {
		b, err := m.MarshalText()
		require.NoError(t, err)
		var got metadata.AccessMode
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, m, got)
	}
	_, err := metadata.ParseAccessMode("execute")
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
}

func TestBuffer(t *testing.T) {
	b := metadata.NewBuffer(16)
	b.SetUint64(8, 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), b.Uint64(8))
	b.SetUint16(2, 0xbeef)
	assert.Equal(t, uint16(0xbeef), b.Uint16(2))
	b.SetUint8(0, 7)
	assert.Equal(t, uint8(7), b.Uint8(0))
	b.SetUint32(4, 42)
	assert.Equal(t, uint32(42), b.Uint32(4))

	// Sentinels and out of range accesses are ignored.
	b.SetUint32(metadata.OffsetNoReader, 1)
	assert.Equal(t, uint32(0), b.Uint32(metadata.OffsetNoWriter))
	assert.Equal(t, uint64(0), b.Uint64(12))
	assert.Nil(t, b.Bytes(metadata.OffsetNoSpace, 1))

	b.Set(0, 4, []byte{0xff})
	assert.Equal(t, []byte{0xff, 0, 0, 0}, b.Bytes(0, 4))

	b.Reset()
	assert.Equal(t, make([]byte, 16), []byte(b))
}
