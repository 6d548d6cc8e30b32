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

package ops

import (
	"sort"

	"biflowagg/pkg/aggregator/avalue"
)

type mergeElem struct {
	value avalue.Scalar
	key   avalue.Scalar
	seq   int
}

// sortedMergeState implements SORTED_MERGE and SORTED_MERGE_DIR: values
// are collected in arrival order alongside their sort key, then sorted at
// Result time by (key, then ingestion order) to break ties deterministically.
// The tie-break direction itself flips with SortOrder: Ascending keeps
// equal-keyed elements in arrival order, Descending reverses it, so the
// earliest-ingested element of a tied group is always the one nearest the
// ascending end of the result.
//
// The _DIR variant additionally negates the value (not the sort key) of
// any contribution whose record was canonicalised-reverse, so a signed
// directional quantity (e.g. a per-interval delta) merges as if it had
// been observed on a single unified timeline instead of two independent
// unidirectional ones.
type sortedMergeState struct {
	kind        avalue.Kind
	order       SortOrder
	limit       int
	directional bool
	elems       []mergeElem
	seq         int
}

func (s *sortedMergeState) Update(c Contribution) {
	val := c.Scalar
	if s.directional && c.Reversed {
		val = val.Negate()
	}
	s.elems = append(s.elems, mergeElem{value: val, key: c.SortKey, seq: s.seq})
	s.seq++
}

func (s *sortedMergeState) Result() Result {
	elems := make([]mergeElem, len(s.elems))
	copy(elems, s.elems)

	// A plain key-reversal under SliceStable would leave ties in arrival
	// order for both SortOrders; the explicit seq tie-break below is what
	// reverses tie order along with the primary comparison.
	sort.Slice(elems, func(i, j int) bool {
		ki, kj := elems[i].key, elems[j].key
		if s.order == Descending {
			switch {
			case kj.Less(ki):
				return true
			case ki.Less(kj):
				return false
			default:
				return elems[i].seq > elems[j].seq
			}
		}
		switch {
		case ki.Less(kj):
			return true
		case kj.Less(ki):
			return false
		default:
			return elems[i].seq < elems[j].seq
		}
	})

	if s.limit > 0 && len(elems) > s.limit {
		elems = elems[:s.limit]
	}

	values := make([]avalue.Scalar, len(elems))
	for i, e := range elems {
		values[i] = e.value
	}
	return Result{IsArray: true, Array: avalue.ArrayValue{ElemKind: s.kind, Elems: values}}
}

func (s *sortedMergeState) Reset() {
	s.elems = s.elems[:0]
	s.seq = 0
}
