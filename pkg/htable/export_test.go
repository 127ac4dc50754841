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

package htable

var (
	MakeNonzero = makeNonzero
	Secondary   = secondary
)

func (t *Table) CheckInvariants() error { return t.checkInvariants() }

// EntryIndex returns the arena index holding key.
func (t *Table) EntryIndex(key []byte) (KeyIndex, bool) {
	b, s, ok := t.find(t.Hash(key), key)
	if !ok {
		return InvalidKeyIndex, false
	}
	return t.slotIndex(b, s), true
}
