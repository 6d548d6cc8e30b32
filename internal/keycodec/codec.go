// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package keycodec serializes a flow's key fields into the flat byte
// string the flow cache hashes and compares, and implements biflow
// canonicalization: deciding which of two directions of a conversation is
// "forward" so both land in the same cache slot.
package keycodec

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"biflowagg/pkg/aggregator/avalue"
)

// EncodeKey appends the canonical byte encoding of each key field (in key
// order) to buf and returns the result. Numeric and time kinds are written
// as 8 big-endian bytes; byte kinds (IP, MAC, string, raw bytes) as a
// 2-byte big-endian length followed by the bytes. Two keys with equal
// field values always produce byte-identical output.
func EncodeKey(buf []byte, fields []avalue.Scalar) []byte {
	for _, f := range fields {
		buf = appendScalar(buf, f)
	}
	return buf
}

func appendScalar(buf []byte, s avalue.Scalar) []byte {
	switch {
	case s.Kind.IsSignedInt() || s.Kind == avalue.KindTime:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(s.Int))
		return append(buf, tmp[:]...)
	case s.Kind.IsUnsignedInt():
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], s.UInt)
		return append(buf, tmp[:]...)
	case s.Kind.IsFloat():
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(int64(s.Float*1e9)))
		return append(buf, tmp[:]...)
	default: // KindIP, KindMAC, KindString, KindBytes
		var lenPrefix [2]byte
		binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(s.Bytes)))
		buf = append(buf, lenPrefix[:]...)
		return append(buf, s.Bytes...)
	}
}

// Hash computes the 64-bit hash the flow cache uses for open addressing.
// xxhash is the pack's established choice for non-cryptographic hashing
// (see github.com/cespare/xxhash/v2, already pulled in transitively via
// prometheus/common) and is considerably faster than FNV at the key
// lengths a five-to-eight-field tuple produces.
func Hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}
