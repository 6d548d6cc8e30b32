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

// Package avalue defines the value model shared by the public aggregator
// package and its per-op state implementations (pkg/aggregator/ops). It
// is split out from pkg/aggregator so that package can depend on ops
// without creating an import cycle.
package avalue

import "bytes"

// Kind is a field's value type, as declared by the input schema and
// matched against the op/type compatibility matrix at bind time.
type Kind uint8

const (
	KindInt8 Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindTime
	KindIP
	KindMAC
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindTime:
		return "time"
	case KindIP:
		return "ip"
	case KindMAC:
		return "mac"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// IsSignedInt reports whether k is a signed integer width.
func (k Kind) IsSignedInt() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	default:
		return false
	}
}

// IsUnsignedInt reports whether k is an unsigned integer width.
func (k Kind) IsUnsignedInt() bool {
	switch k {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether k is float or double.
func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// IsNumeric reports whether k supports arithmetic (SUM/AVG/BIT_*).
func (k Kind) IsNumeric() bool {
	return k.IsSignedInt() || k.IsUnsignedInt() || k.IsFloat()
}

// IsOrdered reports whether k has a well-defined total order usable by
// MIN/MAX and by SORTED_MERGE(_DIR) sort keys: numeric, plus time/ip/mac.
func (k Kind) IsOrdered() bool {
	return k.IsNumeric() || k == KindTime || k == KindIP || k == KindMAC
}

// Scalar is a single field value. Only the member matching Kind is
// meaningful; Bytes additionally backs IP/MAC/string/raw-byte payloads,
// compared as unsigned big-endian byte strings (the spec is explicit
// that IPv6-as-128-bit comparisons must not rely on a platform wide-int
// type; treating every ordered byte kind the same way generalises that
// rule instead of special-casing IPv6).
type Scalar struct {
	Kind  Kind
	Int   int64
	UInt  uint64
	Float float64
	Bytes []byte
}

// IsEmpty reports whether a scalar counts as the NON_EMPTY sentinel
// "absent" value: a zero number, or a zero-length byte/string payload.
func (s Scalar) IsEmpty() bool {
	switch {
	case s.Kind.IsSignedInt() || s.Kind == KindTime:
		return s.Int == 0
	case s.Kind.IsUnsignedInt():
		return s.UInt == 0
	case s.Kind.IsFloat():
		return s.Float == 0
	default:
		return len(s.Bytes) == 0
	}
}

// Less implements the total order used by MIN/MAX and by sort keys.
func (s Scalar) Less(o Scalar) bool {
	switch {
	case s.Kind.IsSignedInt() || s.Kind == KindTime:
		return s.Int < o.Int
	case s.Kind.IsUnsignedInt():
		return s.UInt < o.UInt
	case s.Kind.IsFloat():
		return s.Float < o.Float
	default: // KindIP, KindMAC, KindBytes, KindString
		return bytes.Compare(s.Bytes, o.Bytes) < 0
	}
}

// Negate returns -s for signed numeric scalars, used by SORTED_MERGE_DIR
// when a record was canonicalised-reverse. Only defined for signed
// integer and float kinds; binding rejects the op on any other kind.
func (s Scalar) Negate() Scalar {
	switch {
	case s.Kind.IsSignedInt():
		s.Int = -s.Int
	case s.Kind.IsFloat():
		s.Float = -s.Float
	}
	return s
}

// ArrayValue is a single record's contribution to an array-typed field:
// either the elements of a native array field (APPEND on numeric/time/
// ip/mac types, or the value/sort-key arrays of SORTED_MERGE(_DIR)), or
// the bytes of a string (APPEND on string, element kind KindBytes with
// one element per contributed string).
type ArrayValue struct {
	ElemKind Kind
	Elems    []Scalar
}
