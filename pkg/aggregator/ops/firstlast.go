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

// firstLastState implements FIRST, LAST and their _NON_EMPTY variants.
// Ingestion order is the only thing that matters — Update is called in
// strict arrival order by the engine, so "first"/"last" reduce to
// "keep the earliest write"/"always overwrite".
type firstLastState struct {
	kind            avalue.Kind
	wantFirst       bool
	requireNonEmpty bool
	cur             avalue.Scalar
	set             bool
}

func (s *firstLastState) Update(c Contribution) {
	if s.requireNonEmpty && c.Scalar.IsEmpty() {
		return
	}
	if s.wantFirst && s.set {
		return
	}
	s.cur = c.Scalar
	s.set = true
}

func (s *firstLastState) Result() Result {
	if !s.set {
		return Result{Scalar: avalue.Scalar{Kind: s.kind}}
	}
	return Result{Scalar: s.cur}
}

func (s *firstLastState) Reset() {
	s.cur = avalue.Scalar{}
	s.set = false
}
