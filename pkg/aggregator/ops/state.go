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

// Package ops implements per-field aggregation state: one small State
// value per (op, kind) combination, each of which knows how to fold a
// record's contribution in and how to produce a finalized Result. This
// replaces the original implementation's untyped-blob-plus-function-
// pointer dispatch table with a plain Go interface and a constructor
// switch — the sum-type-over-op-state-variants design called for by the
// field-operation table.
package ops

import "biflowagg/pkg/aggregator/avalue"

// Contribution is one record's input to a field's aggregation state. Only
// Scalar or Array is meaningful, chosen by the field's Op/Kind (see
// avalue.Op.IsArrayOp). SortKey is only read by SORTED_MERGE(_DIR), which
// needs a value and its ordering key from the same record.
type Contribution struct {
	Scalar   avalue.Scalar
	Array    avalue.ArrayValue
	SortKey  avalue.Scalar
	Reversed bool
}

// Result is a field's finalized value at emit time.
type Result struct {
	IsArray bool
	Scalar  avalue.Scalar
	Array   avalue.ArrayValue
}

// State is the per-field aggregation accumulator. Implementations are not
// safe for concurrent use; the engine that owns them is single-threaded.
type State interface {
	// Update folds c into the accumulator.
	Update(c Contribution)
	// Result produces the finalized value. Calling Result does not reset
	// the accumulator; the engine builds fresh states for every new flow
	// rather than calling Reset.
	Result() Result
	// Reset returns the accumulator to its construction-time zero state,
	// so an arena-recycled state block can be reused for a new key
	// without reallocating.
	Reset()
}

// SortKeyConfig carries the extra per-field configuration a state may
// need beyond kind/op: sort order and element cap for SORTED_MERGE(_DIR)
// and APPEND-on-array, and the join delimiter for APPEND-on-string.
type SortKeyConfig struct {
	Order        SortOrder
	Limit        int // 0 means unbounded
	HasDelimiter bool
	Delimiter    byte
}

type SortOrder = avalue.SortOrder

const (
	Ascending  = avalue.Ascending
	Descending = avalue.Descending
)

// New constructs the State implementation for (op, kind). Callers are
// expected to have already validated (op, kind) via the bind-time
// compatibility matrix; New does not check kind against it and panics
// only on OpKey or an unknown op, since reaching either means a binding
// bug rather than bad input data.
func New(op avalue.Op, kind avalue.Kind, sortCfg SortKeyConfig) State {
	switch op {
	case avalue.OpSum:
		return &sumState{kind: kind}
	case avalue.OpAvg:
		return &avgState{kind: kind}
	case avalue.OpMin:
		return &minMaxState{kind: kind, wantMin: true}
	case avalue.OpMax:
		return &minMaxState{kind: kind, wantMin: false}
	case avalue.OpBitAnd:
		return &bitState{kind: kind, isAnd: true}
	case avalue.OpBitOr:
		return &bitState{kind: kind, isAnd: false}
	case avalue.OpFirst:
		return &firstLastState{kind: kind, wantFirst: true, requireNonEmpty: false}
	case avalue.OpFirstNonEmpty:
		return &firstLastState{kind: kind, wantFirst: true, requireNonEmpty: true}
	case avalue.OpLast:
		return &firstLastState{kind: kind, wantFirst: false, requireNonEmpty: false}
	case avalue.OpLastNonEmpty:
		return &firstLastState{kind: kind, wantFirst: false, requireNonEmpty: true}
	case avalue.OpAppend:
		if kind == avalue.KindString {
			return &appendStringState{hasDelimiter: sortCfg.HasDelimiter, delimiter: sortCfg.Delimiter, limit: sortCfg.Limit}
		}
		return &appendArrayState{kind: kind, limit: sortCfg.Limit}
	case avalue.OpSortedMerge:
		return &sortedMergeState{kind: kind, order: sortCfg.Order, limit: sortCfg.Limit, directional: false}
	case avalue.OpSortedMergeDir:
		return &sortedMergeState{kind: kind, order: sortCfg.Order, limit: sortCfg.Limit, directional: true}
	default:
		panic("ops: New called with KEY or unknown op; caller must filter key fields out before constructing state")
	}
}
