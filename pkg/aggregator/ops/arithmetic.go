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

// sumState accumulates SUM over int/uint/float kinds in the matching
// lane, so that unsigned overflow semantics and float rounding both
// behave the way the respective Go numeric type behaves rather than
// being routed through a single widened type.
type sumState struct {
	kind   avalue.Kind
	sInt   int64
	sUInt  uint64
	sFloat float64
	any    bool
}

func (s *sumState) Update(c Contribution) {
	s.any = true
	switch {
	case s.kind.IsSignedInt():
		s.sInt += c.Scalar.Int
	case s.kind.IsUnsignedInt():
		s.sUInt += c.Scalar.UInt
	case s.kind.IsFloat():
		s.sFloat += c.Scalar.Float
	}
}

func (s *sumState) Result() Result {
	out := avalue.Scalar{Kind: s.kind}
	switch {
	case s.kind.IsSignedInt():
		out.Int = s.sInt
	case s.kind.IsUnsignedInt():
		out.UInt = s.sUInt
	case s.kind.IsFloat():
		out.Float = s.sFloat
	}
	return Result{Scalar: out}
}

func (s *sumState) Reset() {
	s.sInt, s.sUInt, s.sFloat, s.any = 0, 0, 0, false
}

// avgState accumulates a running sum and count, dividing in the field's
// own numeric lane at Result time: integer/unsigned kinds truncate like
// the original's same-typed division, float kinds divide as float64.
type avgState struct {
	kind   avalue.Kind
	sInt   int64
	sUInt  uint64
	sFloat float64
	count  uint64
}

func (s *avgState) Update(c Contribution) {
	s.count++
	switch {
	case s.kind.IsSignedInt():
		s.sInt += c.Scalar.Int
	case s.kind.IsUnsignedInt():
		s.sUInt += c.Scalar.UInt
	case s.kind.IsFloat():
		s.sFloat += c.Scalar.Float
	}
}

func (s *avgState) Result() Result {
	out := avalue.Scalar{Kind: s.kind}
	if s.count == 0 {
		return Result{Scalar: out}
	}
	switch {
	case s.kind.IsSignedInt():
		out.Int = s.sInt / int64(s.count)
	case s.kind.IsUnsignedInt():
		out.UInt = s.sUInt / s.count
	case s.kind.IsFloat():
		out.Float = s.sFloat / float64(s.count)
	}
	return Result{Scalar: out}
}

func (s *avgState) Reset() {
	s.sInt, s.sUInt, s.sFloat, s.count = 0, 0, 0, 0
}

// minMaxState tracks the running MIN or MAX using avalue.Scalar.Less, so
// it works uniformly across numeric, time, ip and mac kinds (the latter
// two compared as unsigned big-endian byte strings) without a sentinel
// numeric_limits<T>::max()-style trick.
type minMaxState struct {
	kind    avalue.Kind
	wantMin bool
	cur     avalue.Scalar
	hasAny  bool
}

func (s *minMaxState) Update(c Contribution) {
	if !s.hasAny {
		s.cur = c.Scalar
		s.hasAny = true
		return
	}
	if s.wantMin {
		if c.Scalar.Less(s.cur) {
			s.cur = c.Scalar
		}
	} else {
		if s.cur.Less(c.Scalar) {
			s.cur = c.Scalar
		}
	}
}

func (s *minMaxState) Result() Result {
	if !s.hasAny {
		return Result{Scalar: avalue.Scalar{Kind: s.kind}}
	}
	return Result{Scalar: s.cur}
}

func (s *minMaxState) Reset() {
	s.cur = avalue.Scalar{}
	s.hasAny = false
}

// bitState accumulates BIT_AND/BIT_OR over signed or unsigned integer
// kinds. Signed values are folded through their two's-complement bit
// pattern (via uint64(int64)) so AND/OR never change sign
// unintentionally across widths.
type bitState struct {
	kind  avalue.Kind
	isAnd bool
	acc   uint64
	any   bool
}

func (s *bitState) Update(c Contribution) {
	var bits uint64
	if s.kind.IsSignedInt() {
		bits = uint64(c.Scalar.Int)
	} else {
		bits = c.Scalar.UInt
	}
	if !s.any {
		s.acc = bits
		s.any = true
		return
	}
	if s.isAnd {
		s.acc &= bits
	} else {
		s.acc |= bits
	}
}

func (s *bitState) Result() Result {
	out := avalue.Scalar{Kind: s.kind}
	if s.kind.IsSignedInt() {
		out.Int = int64(s.acc)
	} else {
		out.UInt = s.acc
	}
	return Result{Scalar: out}
}

func (s *bitState) Reset() {
	s.acc, s.any = 0, false
}
