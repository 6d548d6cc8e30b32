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

import "biflowagg/pkg/aggregator/avalue"

// appendArrayState grows an element list for numeric/time/ip/mac APPEND
// fields, in arrival order, stopping at limit once one is configured.
type appendArrayState struct {
	kind  avalue.Kind
	limit int
	elems []avalue.Scalar
}

func (s *appendArrayState) Update(c Contribution) {
	if s.limit > 0 && len(s.elems) >= s.limit {
		return
	}
	s.elems = append(s.elems, c.Array.Elems...)
	if s.limit > 0 && len(s.elems) > s.limit {
		s.elems = s.elems[:s.limit]
	}
}

func (s *appendArrayState) Result() Result {
	return Result{IsArray: true, Array: avalue.ArrayValue{ElemKind: s.kind, Elems: s.elems}}
}

func (s *appendArrayState) Reset() {
	s.elems = nil
}

// appendStringState joins contributed strings in arrival order, inserting
// the configured delimiter between contributions (never a trailing one).
// With a limit set, a contribution (with its delimiter) that would push
// the buffer past limit bytes is refused whole; a later, shorter one that
// fits is still appended.
type appendStringState struct {
	hasDelimiter bool
	delimiter    byte
	limit        int
	buf          []byte
	any          bool
}

func (s *appendStringState) Update(c Contribution) {
	if s.limit > 0 {
		added := len(c.Scalar.Bytes)
		if s.any && s.hasDelimiter {
			added++
		}
		if len(s.buf)+added > s.limit {
			return
		}
	}
	if s.any && s.hasDelimiter {
		s.buf = append(s.buf, s.delimiter)
	}
	s.any = true
	s.buf = append(s.buf, c.Scalar.Bytes...)
}

func (s *appendStringState) Result() Result {
	return Result{Scalar: avalue.Scalar{Kind: avalue.KindString, Bytes: s.buf}}
}

func (s *appendStringState) Reset() {
	s.buf = nil
	s.any = false
}
