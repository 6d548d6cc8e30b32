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

// Package aggregator is the public surface of the biflow flow aggregator:
// schema binding, the per-field aggregation dispatch table, record types
// and the top-level engine.
package aggregator

import "biflowagg/pkg/aggregator/avalue"

// Kind, Scalar and ArrayValue are aliased from avalue rather than
// redefined here, so that pkg/aggregator/ops can share the exact same
// types without importing this package (which imports ops).
type (
	Kind       = avalue.Kind
	Scalar     = avalue.Scalar
	ArrayValue = avalue.ArrayValue
)

const (
	KindInt8    = avalue.KindInt8
	KindInt16   = avalue.KindInt16
	KindInt32   = avalue.KindInt32
	KindInt64   = avalue.KindInt64
	KindUint8   = avalue.KindUint8
	KindUint16  = avalue.KindUint16
	KindUint32  = avalue.KindUint32
	KindUint64  = avalue.KindUint64
	KindFloat32 = avalue.KindFloat32
	KindFloat64 = avalue.KindFloat64
	KindTime    = avalue.KindTime
	KindIP      = avalue.KindIP
	KindMAC     = avalue.KindMAC
	KindString  = avalue.KindString
	KindBytes   = avalue.KindBytes
)
