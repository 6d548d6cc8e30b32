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

import "testing"

func biflowFullSchema() InputSchema {
	return InputSchema{Fields: []FieldDescriptor{
		{Name: "SRC_IP", Kind: KindIP},
		{Name: "DST_IP", Kind: KindIP},
		{Name: "SRC_PORT", Kind: KindUint16},
		{Name: "DST_PORT", Kind: KindUint16},
		{Name: "PROTOCOL", Kind: KindUint8},
		{Name: "PACKETS", Kind: KindUint64},
		{Name: "REV_PACKETS", Kind: KindUint64},
	}}
}

func TestBindResolvesSchemaIndicesAndInheritsKind(t *testing.T) {
	schema := sumSchema()
	binding, err := Bind([]FieldConfig{
		{Name: "BYTES", Op: OpSum, ToOutput: true},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if len(binding.Fields) != 1 {
		t.Fatalf("len(Fields) = %d, want 1", len(binding.Fields))
	}
	bf := binding.Fields[0]
	if bf.schemaIdx != 0 {
		t.Fatalf("schemaIdx = %d, want 0", bf.schemaIdx)
	}
	if bf.cfg.Kind != KindInt64 {
		t.Fatalf("Kind = %v, want inherited KindInt64 from schema, not left zero-value", bf.cfg.Kind)
	}
}

func TestBindRejectsFieldNotInSchema(t *testing.T) {
	_, err := Bind([]FieldConfig{
		{Name: "NOT_A_FIELD", Op: OpSum, ToOutput: true},
	}, sumSchema())
	if err == nil {
		t.Fatal("Bind accepted a field absent from the input schema")
	}
}

func TestBindRejectsDuplicateFieldName(t *testing.T) {
	_, err := Bind([]FieldConfig{
		{Name: "BYTES", Op: OpSum, ToOutput: true},
		{Name: "BYTES", Op: OpMax, ToOutput: true},
	}, sumSchema())
	if err == nil {
		t.Fatal("Bind accepted a duplicate field name")
	}
}

func TestBindRejectsIncompatibleOpForKind(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "NAME", Kind: KindString},
	}}
	_, err := Bind([]FieldConfig{
		{Name: "NAME", Op: OpSum, ToOutput: true},
	}, schema)
	if err == nil {
		t.Fatal("Bind accepted SUM over a string field")
	}
}

func TestBindRejectsSortedMergeWithoutSortKey(t *testing.T) {
	_, err := Bind([]FieldConfig{
		{Name: "DELTAS", Op: OpSortedMerge, ToOutput: true},
	}, mergeSchema())
	if err == nil {
		t.Fatal("Bind accepted SORTED_MERGE with no sort_key configured")
	}
}

func TestBindRejectsSortedMergeWithUnorderedSortKey(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "DELTAS", Kind: KindInt64},
		{Name: "LABEL", Kind: KindString},
	}}
	_, err := Bind([]FieldConfig{
		{Name: "DELTAS", Op: OpSortedMerge, SortKeyName: "LABEL", SortOrder: Ascending, ToOutput: true},
	}, schema)
	if err == nil {
		t.Fatal("Bind accepted a string field as a SORTED_MERGE sort_key")
	}
}

func TestBindRejectsSortedMergeSortKeyNotInSchema(t *testing.T) {
	_, err := Bind([]FieldConfig{
		{Name: "DELTAS", Op: OpSortedMerge, SortKeyName: "MISSING", SortOrder: Ascending, ToOutput: true},
	}, mergeSchema())
	if err == nil {
		t.Fatal("Bind accepted a sort_key absent from the input schema")
	}
}

func TestBindRejectsReverseNameNotInSchema(t *testing.T) {
	_, err := Bind([]FieldConfig{
		{Name: "BYTES", Op: OpSum, ReverseName: "MISSING", ToOutput: true},
	}, sumSchema())
	if err == nil {
		t.Fatal("Bind accepted a reverse_name absent from the input schema")
	}
}

func TestBindRejectsReverseNameWithMismatchedKind(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "BYTES", Kind: KindInt64},
		{Name: "REV_BYTES", Kind: KindFloat64},
	}}
	_, err := Bind([]FieldConfig{
		{Name: "BYTES", Op: OpSum, ReverseName: "REV_BYTES", ToOutput: true},
	}, schema)
	if err == nil {
		t.Fatal("Bind accepted mismatched-kind reverse_name")
	}
}

func TestBindResolvesReverseIdxWhenKindsMatch(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "BYTES", Kind: KindInt64},
		{Name: "REV_BYTES", Kind: KindInt64},
	}}
	binding, err := Bind([]FieldConfig{
		{Name: "BYTES", Op: OpSum, ReverseName: "REV_BYTES", ToOutput: true},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if binding.Fields[0].reverseIdx != 1 {
		t.Fatalf("reverseIdx = %d, want 1", binding.Fields[0].reverseIdx)
	}
}

func TestBindRejectsDelimiterOnNonStringField(t *testing.T) {
	_, err := Bind([]FieldConfig{
		{Name: "BYTES", Op: OpSum, HasDelimiter: true, ToOutput: true},
	}, sumSchema())
	if err == nil {
		t.Fatal("Bind accepted a delimiter on a non-string field")
	}
}

func TestBindTracksKeyOrderAcrossNonKeyFields(t *testing.T) {
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "SRC_IP", Kind: KindIP},
		{Name: "BYTES", Kind: KindInt64},
		{Name: "DST_IP", Kind: KindIP},
	}}
	binding, err := Bind([]FieldConfig{
		{Name: "SRC_IP", Op: OpKey},
		{Name: "BYTES", Op: OpSum, ToOutput: true},
		{Name: "DST_IP", Op: OpKey},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if len(binding.KeyOrder) != 2 {
		t.Fatalf("len(KeyOrder) = %d, want 2", len(binding.KeyOrder))
	}
	if binding.Fields[binding.KeyOrder[0]].cfg.Name != "SRC_IP" {
		t.Fatalf("KeyOrder[0] = %q, want SRC_IP", binding.Fields[binding.KeyOrder[0]].cfg.Name)
	}
	if binding.Fields[binding.KeyOrder[1]].cfg.Name != "DST_IP" {
		t.Fatalf("KeyOrder[1] = %q, want DST_IP", binding.Fields[binding.KeyOrder[1]].cfg.Name)
	}
	if binding.Fields[0].keyPosition != 0 || binding.Fields[2].keyPosition != 1 {
		t.Fatalf("keyPosition assignment wrong: %d, %d", binding.Fields[0].keyPosition, binding.Fields[2].keyPosition)
	}
	if binding.Fields[1].keyPosition != -1 {
		t.Fatalf("non-key field keyPosition = %d, want -1", binding.Fields[1].keyPosition)
	}
}

func TestDetectBiflowRequiresAllFiveConventionalNames(t *testing.T) {
	full := detectBiflow(biflowFullSchema())
	if !full.present() {
		t.Fatal("detectBiflow did not detect a complete 5-tuple")
	}

	partial := detectBiflow(sumSchema())
	if partial.present() {
		t.Fatal("detectBiflow reported present() on a schema missing the 5-tuple fields")
	}
}

func TestBindAttachesDetectedBiflowTuple(t *testing.T) {
	binding, err := Bind([]FieldConfig{
		{Name: "SRC_IP", ReverseName: "DST_IP", Op: OpKey},
		{Name: "DST_IP", ReverseName: "SRC_IP", Op: OpKey},
		{Name: "SRC_PORT", ReverseName: "DST_PORT", Op: OpKey},
		{Name: "DST_PORT", ReverseName: "SRC_PORT", Op: OpKey},
		{Name: "PROTOCOL", Op: OpKey},
		{Name: "PACKETS", Op: OpSum, ReverseName: "REV_PACKETS", ToOutput: true},
		{Name: "REV_PACKETS", Op: OpSum, ReverseName: "PACKETS", ToOutput: true},
	}, biflowFullSchema())
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if !binding.Biflow.present() {
		t.Fatal("Binding.Biflow was not populated for a schema with the full 5-tuple")
	}
	if binding.Biflow.SrcIP != 0 || binding.Biflow.DstIP != 1 {
		t.Fatalf("Biflow indices = %+v, want SrcIP=0 DstIP=1", binding.Biflow)
	}
}

func TestBindRejectsBiflowPairingMismatchFromMissingReverseName(t *testing.T) {
	_, err := Bind([]FieldConfig{
		{Name: "SRC_IP", Op: OpKey}, // no reverse_name, though DST_IP is also bound below
		{Name: "DST_IP", ReverseName: "SRC_IP", Op: OpKey},
		{Name: "SRC_PORT", ReverseName: "DST_PORT", Op: OpKey},
		{Name: "DST_PORT", ReverseName: "SRC_PORT", Op: OpKey},
		{Name: "PROTOCOL", Op: OpKey},
	}, biflowFullSchema())
	if err == nil {
		t.Fatal("Bind accepted a 5-tuple field (SRC_IP) with no reverse_name while the schema exposes the full biflow tuple")
	}
}

func TestBindRejectsBiflowPairingMismatchFromWrongPartner(t *testing.T) {
	_, err := Bind([]FieldConfig{
		{Name: "SRC_IP", ReverseName: "SRC_PORT", Op: OpKey}, // wrong partner: should be DST_IP
		{Name: "DST_IP", ReverseName: "SRC_IP", Op: OpKey},
		{Name: "SRC_PORT", ReverseName: "DST_PORT", Op: OpKey},
		{Name: "DST_PORT", ReverseName: "SRC_PORT", Op: OpKey},
		{Name: "PROTOCOL", Op: OpKey},
	}, biflowFullSchema())
	if err == nil {
		t.Fatal("Bind accepted SRC_IP's reverse_name pointing at SRC_PORT instead of its canonical partner DST_IP")
	}
}

func TestBindAllowsAsymmetricReverseNamesWhenSchemaLacksFullTuple(t *testing.T) {
	// Only SRC_IP/DST_IP are present (no ports, no protocol), so the
	// biflow pairing check does not apply: SRC_IP declaring no
	// reverse_name while DST_IP names SRC_IP is accepted here, although
	// the same one-sided pairing is rejected under the full 5-tuple.
	schema := InputSchema{Fields: []FieldDescriptor{
		{Name: "SRC_IP", Kind: KindIP},
		{Name: "DST_IP", Kind: KindIP},
	}}
	_, err := Bind([]FieldConfig{
		{Name: "SRC_IP", Op: OpKey},
		{Name: "DST_IP", ReverseName: "SRC_IP", Op: OpKey},
	}, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
}
