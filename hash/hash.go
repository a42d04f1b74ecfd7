// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package hash defines the fixed-width content hash and the key type used to
// address values in the pack store.
package hash

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Size is the width, in bytes, of a Hash.
const Size = 32

// Hash is a fixed-width content hash with a total lexicographic order.
type Hash [Size]byte

// Zero is the hash with all bytes set to zero. It never occurs as the result
// of Sum and is used as a sentinel for "not yet computed".
var Zero Hash

// Sum computes the content hash of the given bytes.
func Sum(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// Compare returns -1, 0 or 1 depending on whether h sorts before, equal to,
// or after other, lexicographically over the raw bytes.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// String renders the hash as a lowercase hex string.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler for JSON/text dumping tools.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("could not decode hash hex: %w", err)
	}
	if len(decoded) != Size {
		return fmt.Errorf("invalid hash length (have: %d, want: %d)", len(decoded), Size)
	}
	copy(h[:], decoded)
	return nil
}

// FromBytes converts a byte slice into a Hash. It fails if the slice does not
// have exactly Size bytes.
func FromBytes(data []byte) (Hash, error) {
	var h Hash
	if len(data) != Size {
		return h, fmt.Errorf("invalid hash length (have: %d, want: %d)", len(data), Size)
	}
	copy(h[:], data)
	return h, nil
}
