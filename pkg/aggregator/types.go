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

package aggregator

import (
	"fmt"

	"biflowagg/pkg/aggregator/avalue"
)

// Op and SortOrder are aliased from avalue for the same reason Kind is
// (see value.go): pkg/aggregator/ops needs them without importing this
// package.
type (
	Op        = avalue.Op
	SortOrder = avalue.SortOrder
)

const (
	OpKey            = avalue.OpKey
	OpSum            = avalue.OpSum
	OpAvg            = avalue.OpAvg
	OpMin            = avalue.OpMin
	OpMax            = avalue.OpMax
	OpBitAnd         = avalue.OpBitAnd
	OpBitOr          = avalue.OpBitOr
	OpFirst          = avalue.OpFirst
	OpFirstNonEmpty  = avalue.OpFirstNonEmpty
	OpLast           = avalue.OpLast
	OpLastNonEmpty   = avalue.OpLastNonEmpty
	OpAppend         = avalue.OpAppend
	OpSortedMerge    = avalue.OpSortedMerge
	OpSortedMergeDir = avalue.OpSortedMergeDir

	Ascending  = avalue.Ascending
	Descending = avalue.Descending
)

// FieldConfig is one parsed rule-file field entry, before binding against
// an input schema. It mirrors the original Field_config 1:1 (see
// original_source/biflow_aggregator/aggregator.h).
type FieldConfig struct {
	Name         string
	ReverseName  string // empty when the field has no reverse partner
	Op           Op
	Kind         Kind
	SortKeyName  string // required for SORTED_MERGE(_DIR)
	SortOrder    SortOrder
	HasDelimiter bool
	Delimiter    byte
	Limit        int // APPEND/SORTED_MERGE(_DIR) element cap; 0 = unset
	ToOutput     bool
}

// compatOp2Kind enforces the op/type compatibility matrix from spec.md §3.
func compatOp2Kind(op Op, kind Kind) bool {
	switch op {
	case OpKey:
		return true
	case OpSum, OpAvg:
		return kind.IsNumeric()
	case OpMin, OpMax:
		return kind.IsNumeric() || kind == KindTime || kind == KindIP || kind == KindMAC
	case OpFirst, OpLast, OpFirstNonEmpty, OpLastNonEmpty:
		return kind.IsNumeric() || kind == KindTime || kind == KindIP || kind == KindMAC || kind == KindString
	case OpBitAnd, OpBitOr:
		return kind.IsSignedInt() || kind.IsUnsignedInt()
	case OpAppend:
		switch kind {
		case KindInt8, KindInt16, KindInt32, KindInt64,
			KindUint8, KindUint16, KindUint32, KindUint64,
			KindFloat32, KindFloat64, KindMAC, KindTime, KindIP, KindString:
			return true
		default:
			return false
		}
	case OpSortedMerge:
		return kind.IsOrdered()
	case OpSortedMergeDir:
		// Negation on reverse ingestion is only meaningful for signed
		// numeric element types (design note, §9 Open Question).
		return kind.IsSignedInt() || kind.IsFloat()
	default:
		return false
	}
}

// ConfigError is a bind/parse-time configuration error naming the
// offending field, as required by spec.md §4.1 and §7.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Msg)
}
