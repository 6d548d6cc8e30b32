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
	"net"
	"testing"
)

func ipv4(s string) Scalar {
	return Scalar{Kind: KindIP, Bytes: net.ParseIP(s).To4()}
}

func uintScalar(kind Kind, v uint64) Scalar {
	return Scalar{Kind: kind, UInt: v}
}

func intScalar(v int64) Scalar {
	return Scalar{Kind: KindInt64, Int: v}
}

// newCapturingEngine builds an engine over binding that records every
// emitted OutputRecord and every eviction cause, in order.
func newCapturingEngine(binding *Binding, cfg Config) (*Engine, *[]OutputRecord, *[]string) {
	var emitted []OutputRecord
	var evictCauses []string
	e := NewEngine(binding, cfg, func(out OutputRecord) {
		emitted = append(emitted, out)
	})
	e.WithEvictFunc(func(cause string) {
		evictCauses = append(evictCauses, cause)
	})
	return e, &emitted, &evictCauses
}

// TestEngineSimpleSumAcrossPassiveExpiry exercises S1: three records under
// one key, aggregated with SUM, expire on passive timeout once a later
// record for a different key advances the watermark far enough.
func TestEngineSimpleSumAcrossPassiveExpiry(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "SRC_IP", Kind: KindIP},
		{Name: "BYTES", Kind: KindInt64},
	}}
	binding, err := Bind([]FieldConfig{
		{Name: "SRC_IP", Op: OpKey},
		{Name: "BYTES", Op: OpSum, ToOutput: true},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cfg := Config{CacheCapacity: 4, ActiveTimeoutNanos: 10, PassiveTimeoutNanos: 2}
	e, emitted, _ := newCapturingEngine(binding, cfg)

	for _, bytes := range []int64{100, 250, 50} {
		e.Ingest(&Record{
			Scalars:   []Scalar{ipv4("10.0.0.1"), intScalar(bytes)},
			TimeFirst: 0,
			TimeLast:  1,
		})
	}
	// A record under a different key at T+5 must push the watermark far
	// enough to drain the first key (effective deadline 1+2=3).
	e.Ingest(&Record{
		Scalars:   []Scalar{ipv4("10.0.0.2"), intScalar(1)},
		TimeFirst: 5,
		TimeLast:  5,
	})

	if len(*emitted) != 1 {
		t.Fatalf("emitted %d records, want 1 (only 10.0.0.1 should have expired): %+v", len(*emitted), *emitted)
	}
	out := (*emitted)[0]
	if out.Count != 3 {
		t.Fatalf("Count = %d, want 3", out.Count)
	}
	if got := out.Fields["BYTES"].Scalar.Int; got != 400 {
		t.Fatalf("BYTES = %d, want 400", got)
	}
}

func biflowSchema() InputSchema {
	return InputSchema{Fields: []FieldDescriptor{
		{Name: "SRC_IP", Kind: KindIP},
		{Name: "DST_IP", Kind: KindIP},
		{Name: "SRC_PORT", Kind: KindUint16},
		{Name: "DST_PORT", Kind: KindUint16},
		{Name: "PROTOCOL", Kind: KindUint8},
		{Name: "PACKETS", Kind: KindInt64},
		{Name: "REV_PACKETS", Kind: KindInt64},
		{Name: "BYTES", Kind: KindInt64},
		{Name: "REV_BYTES", Kind: KindInt64},
	}}
}

func bindBiflow(t *testing.T) *Binding {
	t.Helper()
	binding, err := Bind([]FieldConfig{
		{Name: "SRC_IP", ReverseName: "DST_IP", Op: OpKey},
		{Name: "DST_IP", ReverseName: "SRC_IP", Op: OpKey},
		{Name: "SRC_PORT", ReverseName: "DST_PORT", Op: OpKey},
		{Name: "DST_PORT", ReverseName: "SRC_PORT", Op: OpKey},
		{Name: "PROTOCOL", Op: OpKey},
		{Name: "PACKETS", ReverseName: "REV_PACKETS", Op: OpSum, ToOutput: true},
		{Name: "REV_PACKETS", ReverseName: "PACKETS", Op: OpSum, ToOutput: true},
		{Name: "BYTES", ReverseName: "REV_BYTES", Op: OpSum, ToOutput: true},
		{Name: "REV_BYTES", ReverseName: "BYTES", Op: OpSum, ToOutput: true},
	}, biflowSchema())
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return binding
}

// TestEngineBiflowCanonicalizationMergesBothDirections exercises S2: two
// unidirectional records whose 5-tuples are mirror images of each other
// canonicalize onto the same key, and the physically-reversed record's
// own traffic counts land in the *_REV output fields rather than the
// forward ones.
func TestEngineBiflowCanonicalizationMergesBothDirections(t *testing.T) {
	binding := bindBiflow(t)
	cfg := Config{CacheCapacity: 4, ActiveTimeoutNanos: 100, PassiveTimeoutNanos: 100}
	e, emitted, _ := newCapturingEngine(binding, cfg)

	e.Ingest(&Record{
		Scalars: []Scalar{
			ipv4("1.1.1.1"), ipv4("2.2.2.2"),
			uintScalar(KindUint16, 10), uintScalar(KindUint16, 20),
			uintScalar(KindUint8, 6),
			intScalar(3), intScalar(0),
			intScalar(300), intScalar(0),
		},
		TimeFirst: 0, TimeLast: 0,
	})
	e.Ingest(&Record{
		Scalars: []Scalar{
			ipv4("2.2.2.2"), ipv4("1.1.1.1"),
			uintScalar(KindUint16, 20), uintScalar(KindUint16, 10),
			uintScalar(KindUint8, 6),
			intScalar(5), intScalar(0),
			intScalar(500), intScalar(0),
		},
		TimeFirst: 1, TimeLast: 1,
	})
	e.FlushAll()

	if len(*emitted) != 1 {
		t.Fatalf("emitted %d records, want 1 (both records must canonicalize onto one key): %+v", len(*emitted), *emitted)
	}
	out := (*emitted)[0]
	if out.Count != 2 {
		t.Fatalf("Count = %d, want 2", out.Count)
	}
	if got := out.Fields["PACKETS"].Scalar.Int; got != 3 {
		t.Fatalf("PACKETS = %d, want 3", got)
	}
	if got := out.Fields["REV_PACKETS"].Scalar.Int; got != 5 {
		t.Fatalf("REV_PACKETS = %d, want 5", got)
	}
	if got := out.Fields["BYTES"].Scalar.Int; got != 300 {
		t.Fatalf("BYTES = %d, want 300", got)
	}
	if got := out.Fields["REV_BYTES"].Scalar.Int; got != 500 {
		t.Fatalf("REV_BYTES = %d, want 500", got)
	}
}

// TestEngineActiveTimeoutCapsPassiveExtension exercises S4: continuous
// updates keep resetting the passive deadline, but the fixed active
// deadline still fires once the watermark reaches it.
func TestEngineActiveTimeoutCapsPassiveExtension(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "SRC_IP", Kind: KindIP},
	}}
	binding, err := Bind([]FieldConfig{
		{Name: "SRC_IP", Op: OpKey},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cfg := Config{CacheCapacity: 4, ActiveTimeoutNanos: 5, PassiveTimeoutNanos: 2}
	e, emitted, _ := newCapturingEngine(binding, cfg)

	for ts := int64(0); ts <= 4; ts++ {
		e.Ingest(&Record{Scalars: []Scalar{ipv4("10.0.0.1")}, TimeFirst: ts, TimeLast: ts})
	}
	if len(*emitted) != 0 {
		t.Fatalf("flow expired early: emitted %d records before the active deadline", len(*emitted))
	}

	// A different key's record at t=5 advances the watermark to the fixed
	// active deadline (TimeFirst=0 + ActiveTimeoutNanos=5).
	e.Ingest(&Record{Scalars: []Scalar{ipv4("10.0.0.2")}, TimeFirst: 5, TimeLast: 5})

	if len(*emitted) != 1 {
		t.Fatalf("emitted %d records, want 1 (active timeout must fire at t=5)", len(*emitted))
	}
	if got := (*emitted)[0].Count; got != 5 {
		t.Fatalf("Count = %d, want 5", got)
	}
	if got := (*emitted)[0].TimeLast; got != 4 {
		t.Fatalf("TimeLast = %d, want 4", got)
	}
}

// TestEngineActiveDeadlineTightensOnOutOfOrderTimeFirst verifies the
// active deadline is recomputed (not just set once at flow creation) as
// min(existing active deadline, running-minimum time_first +
// ActiveTimeoutNanos): an out-of-order record carrying an earlier
// time_first than previously seen must tighten, never loosen, the
// active deadline.
func TestEngineActiveDeadlineTightensOnOutOfOrderTimeFirst(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "SRC_IP", Kind: KindIP},
	}}
	binding, err := Bind([]FieldConfig{
		{Name: "SRC_IP", Op: OpKey},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cfg := Config{CacheCapacity: 4, ActiveTimeoutNanos: 10, PassiveTimeoutNanos: 1000}
	e, emitted, _ := newCapturingEngine(binding, cfg)

	// First sighting at t=5 sets active deadline to 5+10=15.
	e.Ingest(&Record{Scalars: []Scalar{ipv4("10.0.0.1")}, TimeFirst: 5, TimeLast: 5})
	// An out-of-order record with an earlier time_first (t=0) must
	// tighten the active deadline to 0+10=10, not leave it at 15.
	e.Ingest(&Record{Scalars: []Scalar{ipv4("10.0.0.1")}, TimeFirst: 0, TimeLast: 0})

	// A different key's record at t=10 advances the watermark to exactly
	// the tightened deadline; if the deadline had stayed at 15 this would
	// not yet evict the first key.
	e.Ingest(&Record{Scalars: []Scalar{ipv4("10.0.0.2")}, TimeFirst: 10, TimeLast: 10})

	if len(*emitted) != 1 {
		t.Fatalf("emitted %d records, want 1 (tightened active deadline of 10 must fire at watermark=10)", len(*emitted))
	}
	out := (*emitted)[0]
	if out.Count != 2 {
		t.Fatalf("Count = %d, want 2", out.Count)
	}
	if out.TimeFirst != 0 {
		t.Fatalf("TimeFirst = %d, want 0 (running minimum)", out.TimeFirst)
	}
	if out.TimeLast != 5 {
		t.Fatalf("TimeLast = %d, want 5 (running maximum)", out.TimeLast)
	}
}

// TestEngineCacheEvictsExpiryHeadWhenFull exercises S5: capacity 4, a
// fifth distinct key forces the table-full path, which must evict the
// expiry list's head (the oldest key) and retry rather than refusing the
// new key.
func TestEngineCacheEvictsExpiryHeadWhenFull(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "ID", Kind: KindUint32},
	}}
	binding, err := Bind([]FieldConfig{
		{Name: "ID", Op: OpKey},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cfg := Config{CacheCapacity: 4, ActiveTimeoutNanos: 1000, PassiveTimeoutNanos: 1000}
	e, emitted, evictCauses := newCapturingEngine(binding, cfg)

	for i, id := range []uint64{1, 2, 3, 4} {
		e.Ingest(&Record{
			Scalars:   []Scalar{uintScalar(KindUint32, id)},
			TimeFirst: int64(i), TimeLast: int64(i),
		})
	}
	if e.Len() != 4 {
		t.Fatalf("Len() = %d, want 4 after filling capacity", e.Len())
	}

	e.Ingest(&Record{Scalars: []Scalar{uintScalar(KindUint32, 5)}, TimeFirst: 4, TimeLast: 4})

	if e.Len() != 4 {
		t.Fatalf("Len() = %d, want 4 (K5 must displace K1, not grow the table)", e.Len())
	}
	if len(*emitted) != 1 {
		t.Fatalf("emitted %d records, want 1 (only the evicted K1)", len(*emitted))
	}
	if got := (*emitted)[0].Count; got != 1 {
		t.Fatalf("evicted record Count = %d, want 1", got)
	}
	if len(*evictCauses) != 1 || (*evictCauses)[0] != CauseTableFull {
		t.Fatalf("evictCauses = %v, want [%q]", *evictCauses, CauseTableFull)
	}
}

// TestEngineAbsoluteGlobalFlushAlignsToFixedGrid exercises S6: in
// absolute mode, a flush fires whenever the watermark crosses a new
// interval/edge boundary, independent of how long it has been since the
// last flush in wall terms.
func TestEngineAbsoluteGlobalFlushAlignsToFixedGrid(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "ID", Kind: KindUint32},
	}}
	binding, err := Bind([]FieldConfig{
		{Name: "ID", Op: OpKey},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cfg := Config{
		CacheCapacity: 4, ActiveTimeoutNanos: 1_000_000, PassiveTimeoutNanos: 1_000_000,
		GlobalFlushInterval: 60, GlobalFlushMode: FlushAbsolute,
	}
	e, emitted, evictCauses := newCapturingEngine(binding, cfg)

	for _, ts := range []int64{500, 1000, 1075, 1180} {
		e.Ingest(&Record{Scalars: []Scalar{uintScalar(KindUint32, 1)}, TimeFirst: ts, TimeLast: ts})
	}

	flushes := 0
	for _, c := range *evictCauses {
		if c == CauseGlobalFlush {
			flushes++
		}
	}
	if flushes != 3 {
		t.Fatalf("global flush fired %d times, want 3 (edges at 1000, 1075, 1180 each cross a new 60-wide bucket): %v", flushes, *evictCauses)
	}
	if len(*emitted) != 3 {
		t.Fatalf("emitted %d records across the three flush edges, want 3", len(*emitted))
	}
}

// TestEngineRebindFlushesPendingFlows verifies that a schema rebind never
// silently drops in-flight aggregation state: every live flow must be
// finalized and emitted first.
func TestEngineRebindFlushesPendingFlows(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "SRC_IP", Kind: KindIP},
	}}
	binding, err := Bind([]FieldConfig{
		{Name: "SRC_IP", Op: OpKey},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cfg := Config{CacheCapacity: 4, ActiveTimeoutNanos: 1000, PassiveTimeoutNanos: 1000}
	e, emitted, evictCauses := newCapturingEngine(binding, cfg)

	e.Ingest(&Record{Scalars: []Scalar{ipv4("10.0.0.1")}, TimeFirst: 0, TimeLast: 0})
	e.Rebind(binding)

	if len(*emitted) != 1 {
		t.Fatalf("emitted %d records on rebind, want 1", len(*emitted))
	}
	if len(*evictCauses) != 1 || (*evictCauses)[0] != CauseGlobalFlush {
		t.Fatalf("evictCauses = %v, want a single global_flush", *evictCauses)
	}
	if e.Len() != 0 {
		t.Fatalf("Len() after rebind = %d, want 0", e.Len())
	}
}

// TestEngineReportsSortedMergeLengthMismatchThroughErrorFunc confirms the
// engine surfaces a SORTED_MERGE value/sort-key array length mismatch as a
// local per-record error rather than panicking or silently corrupting the
// accumulator's state.
func TestEngineReportsSortedMergeLengthMismatchThroughErrorFunc(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "ID", Kind: KindUint32},
		{Name: "DELTAS", Kind: KindInt64},
		{Name: "TIMESTAMPS", Kind: KindInt64},
	}}
	binding, err := Bind([]FieldConfig{
		{Name: "ID", Op: OpKey},
		{Name: "DELTAS", Op: OpSortedMerge, SortKeyName: "TIMESTAMPS", SortOrder: Ascending, ToOutput: true},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cfg := Config{CacheCapacity: 4, ActiveTimeoutNanos: 1000, PassiveTimeoutNanos: 1000}
	e, _, _ := newCapturingEngine(binding, cfg)

	var reasons []string
	e.WithErrorFunc(func(reason string) { reasons = append(reasons, reason) })

	e.Ingest(&Record{
		Scalars: []Scalar{uintScalar(KindUint32, 1)},
		Arrays: []ArrayValue{
			{}, // ID has no array contribution
			{ElemKind: KindInt64, Elems: []Scalar{{Kind: KindInt64, Int: 1}, {Kind: KindInt64, Int: 2}}},
			{ElemKind: KindInt64, Elems: []Scalar{{Kind: KindInt64, Int: 100}}},
		},
		TimeFirst: 0, TimeLast: 0,
	})

	if len(reasons) != 1 || reasons[0] != ReasonSortedMergeLengthMismatch {
		t.Fatalf("reasons = %v, want [%q]", reasons, ReasonSortedMergeLengthMismatch)
	}
}
