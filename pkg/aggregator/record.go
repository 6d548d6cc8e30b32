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

// Record is one unidirectional flow record as handed to the engine by a
// source, already decoded into Scalars/Arrays keyed by schema index. The
// engine never interprets raw wire bytes itself; that is the transport
// layer's job (see internal/transport).
type Record struct {
	// Scalars holds one value per non-array schema field, indexed the
	// same way InputSchema.Fields is indexed.
	Scalars []Scalar
	// Arrays holds contributed array values for fields whose op treats
	// them as array-shaped (APPEND on a non-string kind, or either
	// SORTED_MERGE variant's value/sort-key pair). Indexed the same way.
	Arrays []ArrayValue

	// TimeFirst/TimeLast are this record's own flow-start/flow-end
	// timestamps (unix nanoseconds), used to extend an aggregate's active
	// window and to seed it on first sight of a key.
	TimeFirst int64
	TimeLast  int64

	// Reversed is set by the key codec's canonicalization step when this
	// record's 5-tuple needed to be swapped to match the canonical
	// (smaller-address-first) direction. The engine uses it to decide
	// whether reverse-direction fields need sign-flipping (SORTED_MERGE_DIR)
	// or which of a field/reverse_name pair absorbs this record's value.
	Reversed bool
}

// OutputRecord is what the engine hands to a sink on emit: the finalized
// value per field the binding marked ToOutput, plus the aggregate's own
// TimeFirst/TimeLast/Count bookkeeping.
type OutputRecord struct {
	Fields    map[string]FieldResult
	TimeFirst int64
	TimeLast  int64
	Count     uint64
}

// FieldResult is one output field's finalized value: exactly one of
// Scalar/Array is meaningful, per the field's Op (see Op.IsArrayOp).
type FieldResult struct {
	IsArray bool
	Scalar  Scalar
	Array   ArrayValue
}
