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

import "biflowagg/pkg/aggregator/ops"

// fieldTable is a bound rule-set's ordered list of non-key field slots,
// each paired with the ops.State implementation its (Op, Kind) resolved
// to at bind time. This is the field-operation table: an ordered slice
// of interface values in place of the original's array of untyped state
// blobs plus a parallel function-pointer table.
type fieldTable struct {
	binding *Binding
	slots   []fieldSlot
}

type fieldSlot struct {
	field boundField
}

// newFieldTable builds the op descriptors for every non-key field in b.
// It does not itself allocate ops.State — those live per flow, inside the
// arena-backed flow state block (see engine.go), since the table
// describes what to build, not a single shared instance.
func newFieldTable(b *Binding) *fieldTable {
	t := &fieldTable{binding: b}
	for _, bf := range b.Fields {
		if bf.cfg.Op == OpKey {
			continue
		}
		t.slots = append(t.slots, fieldSlot{field: bf})
	}
	return t
}

// newStates allocates one fresh ops.State per non-key field, in table
// order, for a newly-inserted flow.
func (t *fieldTable) newStates() []ops.State {
	states := make([]ops.State, len(t.slots))
	for i, slot := range t.slots {
		cfg := ops.SortKeyConfig{
			Order:        slot.field.cfg.SortOrder,
			Limit:        slot.field.cfg.Limit,
			HasDelimiter: slot.field.cfg.HasDelimiter,
			Delimiter:    slot.field.cfg.Delimiter,
		}
		states[i] = ops.New(slot.field.cfg.Op, slot.field.cfg.Kind, cfg)
	}
	return states
}

// update folds rec into states, one ops.Contribution per table slot.
//
// SORTED_MERGE(_DIR) is the one shape that does not reduce to a single
// Contribution per record: a record contributes a value array and a
// parallel sort-key array (spec scenario S3's per-record [+1,+2,+3]
// with sort-keys [100,200,300]), so each element pair becomes its own
// Update call, in array order, so ingestion-sequence tie-breaking stays
// meaningful at the element granularity SORTED_MERGE's output needs.
// A value/sort-key length mismatch is the "invalid per-record field"
// error case (spec.md §7): this record's contribution to this field is
// skipped entirely rather than partially applied.
func (t *fieldTable) update(states []ops.State, rec *Record) bool {
	ok := true
	for i, slot := range t.slots {
		bf := slot.field
		idx := bf.schemaIdx
		if rec.Reversed && bf.reverseIdx >= 0 {
			idx = bf.reverseIdx
		}

		if bf.cfg.Op == OpSortedMerge || bf.cfg.Op == OpSortedMergeDir {
			values := rec.Arrays[idx].Elems
			keys := rec.Arrays[bf.sortKeyIdx].Elems
			if len(values) != len(keys) {
				ok = false
				continue
			}
			for j, v := range values {
				states[i].Update(ops.Contribution{Scalar: v, SortKey: keys[j], Reversed: rec.Reversed})
			}
			continue
		}

		c := ops.Contribution{Reversed: rec.Reversed}
		if bf.cfg.Op.IsArrayOp(bf.cfg.Kind) {
			c.Array = rec.Arrays[idx]
		} else {
			c.Scalar = rec.Scalars[idx]
		}
		states[i].Update(c)
	}
	return ok
}

// results finalizes every table slot into the output field map, keyed by
// field name, skipping fields the binding did not mark ToOutput.
func (t *fieldTable) results(states []ops.State) map[string]FieldResult {
	out := make(map[string]FieldResult, len(t.slots))
	for i, slot := range t.slots {
		if !slot.field.cfg.ToOutput {
			continue
		}
		r := states[i].Result()
		out[slot.field.cfg.Name] = FieldResult{IsArray: r.IsArray, Scalar: r.Scalar, Array: r.Array}
	}
	return out
}

// reset returns every state to its construction-time zero value, for
// arena slot reuse without reallocating the states slice itself.
func (t *fieldTable) reset(states []ops.State) {
	for _, s := range states {
		s.Reset()
	}
}
