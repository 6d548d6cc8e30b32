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

package keycodec

import (
	"bytes"
	"encoding/binary"

	"biflowagg/pkg/aggregator/avalue"
)

// Tuple5 is the 5-tuple a biflow aggregation canonicalizes on: source and
// destination address, source and destination port, and the transport
// protocol number. Canonicalize compares only the addresses and ports;
// Proto is carried along but never consulted.
type Tuple5 struct {
	SrcIP, DstIP     avalue.Scalar
	SrcPort, DstPort avalue.Scalar
	Proto            avalue.Scalar
}

// Canonicalize decides whether t represents the "reverse" direction of a
// conversation and should be swapped to match the forward direction
// already stored (or about to be stored) in the cache.
//
// Addresses are compared as unsigned big-endian byte sequences — this is
// deliberate: an IPv4 address stored as a native 32-bit integer compares
// correctly as a signed or unsigned machine word, but an IPv6 address
// does not fit any platform integer type, so the comparison has to work
// byte-by-byte regardless of address family. Ports break a tie between
// equal addresses (rare: loopback, NAT-hairpin traffic); protocol is not
// compared.
//
// Reports reversed=true when t.SrcIP is numerically greater than t.DstIP
// (or, on a tie, when the higher-order tiebreaks favor treating dst as
// forward-source) — the original canonicalizes with a symmetric
// comparator, so orientation itself is arbitrary; picking "smaller
// address is forward source" only needs to be internally consistent.
func Canonicalize(t Tuple5) bool {
	switch bytes.Compare(t.SrcIP.Bytes, t.DstIP.Bytes) {
	case -1:
		return false
	case 1:
		return true
	}

	sp, dp := portOf(t.SrcPort), portOf(t.DstPort)
	switch {
	case sp < dp:
		return false
	case sp > dp:
		return true
	}

	// Addresses and ports both tied: nothing left to break the tie on, so
	// treat t as already forward. Protocol alone never reorders two
	// otherwise-identical endpoints.
	return false
}

func portOf(s avalue.Scalar) uint64 {
	if s.Kind.IsUnsignedInt() {
		return s.UInt
	}
	return uint64(s.Int)
}

// EncodeIPv4 packs a 4-byte IPv4 address into the big-endian byte form
// EncodeKey and Canonicalize both expect.
func EncodeIPv4(addr uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], addr)
	return b[:]
}
