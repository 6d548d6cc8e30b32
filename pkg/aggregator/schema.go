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

// FieldDescriptor is one field of an input schema, as announced by a
// source at connect time or on a schema-change notification.
type FieldDescriptor struct {
	Name string
	Kind Kind
}

// InputSchema is the ordered set of fields a source presents. Field order
// is not meaningful to binding (lookup is by name), but is preserved for
// diagnostics.
type InputSchema struct {
	Fields []FieldDescriptor
}

func (s InputSchema) indexOf(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// boundField is a FieldConfig resolved against an InputSchema: the
// schema index (and its reverse partner's index, when one exists) are
// cached so the hot path never does name lookups.
type boundField struct {
	cfg         FieldConfig
	schemaIdx   int
	reverseIdx  int // -1 when no reverse partner
	sortKeyIdx  int // -1 unless Op is SORTED_MERGE(_DIR)
	keyPosition int // index into the key tuple, -1 for non-key fields
}

// Binding is the result of matching a parsed rule-set against a concrete
// InputSchema: every FieldConfig resolved to schema positions, key fields
// identified and ordered, and (when present) the biflow 5-tuple detected
// so the engine knows which fields participate in reverse-direction
// canonicalization.
type Binding struct {
	Schema   InputSchema
	Fields   []boundField
	KeyOrder []int // indices into Fields, in key-tuple order

	// Biflow holds the schema indices of the 5-tuple fields when the
	// schema exposes all five under their conventional names (see
	// detectBiflow). detectBiflow leaves an absent field's index at -1;
	// with any of the five at -1 this schema is treated as
	// unidirectional: no reverse canonicalization is attempted.
	Biflow BiflowTuple
}

// BiflowTuple names the five fields the biflow canonicalization step
// compares/swaps: source/destination address, source/destination port,
// and protocol. Ports break ties when addresses alone do not order the
// two directions; protocol is not compared (spec.md §5,
// canonicalization step).
type BiflowTuple struct {
	SrcIP, DstIP     int
	SrcPort, DstPort int
	Proto            int
}

func (b BiflowTuple) present() bool {
	return b.SrcIP >= 0 && b.DstIP >= 0 && b.SrcPort >= 0 && b.DstPort >= 0 && b.Proto >= 0
}

// Conventional biflow field names, matched case-sensitively against the
// schema the same way the original template binds IPV4_SRC_ADDR etc.
const (
	fieldSrcIP   = "SRC_IP"
	fieldDstIP   = "DST_IP"
	fieldSrcPort = "SRC_PORT"
	fieldDstPort = "DST_PORT"
	fieldProto   = "PROTOCOL"
)

func detectBiflow(schema InputSchema) BiflowTuple {
	return BiflowTuple{
		SrcIP:   schema.indexOf(fieldSrcIP),
		DstIP:   schema.indexOf(fieldDstIP),
		SrcPort: schema.indexOf(fieldSrcPort),
		DstPort: schema.indexOf(fieldDstPort),
		Proto:   schema.indexOf(fieldProto),
	}
}

// Bind resolves fields against schema, enforcing the op/type compatibility
// matrix, reverse-name consistency, sort-key presence for SORTED_MERGE(_DIR),
// and duplicate-name rejection. It is called once at startup and again
// whenever a source announces a schema change; the engine treats a
// rebind as a full flush (spec.md §5, "Schema rebind").
func Bind(fields []FieldConfig, schema InputSchema) (*Binding, error) {
	seen := make(map[string]bool, len(fields))
	bound := make([]boundField, 0, len(fields))
	keyOrder := make([]int, 0, len(fields))

	for _, fc := range fields {
		if seen[fc.Name] {
			return nil, &ConfigError{Field: fc.Name, Msg: "duplicate field name"}
		}
		seen[fc.Name] = true

		// The rule file names a field and an op, not a value type: kind is
		// always inherited from the input schema's own declaration, the
		// same way the original configuration reader leans on the record
		// template rather than asking the rule file to repeat a type the
		// schema already states.
		idx := schema.indexOf(fc.Name)
		if idx < 0 {
			return nil, &ConfigError{Field: fc.Name, Msg: "not present in input schema"}
		}
		fc.Kind = schema.Fields[idx].Kind

		if !compatOp2Kind(fc.Op, fc.Kind) {
			return nil, &ConfigError{Field: fc.Name, Msg: fmtIncompatible(fc.Op, fc.Kind)}
		}

		reverseIdx := -1
		if fc.ReverseName != "" {
			reverseIdx = schema.indexOf(fc.ReverseName)
			if reverseIdx < 0 {
				return nil, &ConfigError{Field: fc.Name, Msg: "reverse_name not present in input schema"}
			}
			if schema.Fields[reverseIdx].Kind != fc.Kind {
				return nil, &ConfigError{Field: fc.Name, Msg: "reverse_name type does not match field type"}
			}
		}

		sortKeyIdx := -1
		if fc.Op == OpSortedMerge || fc.Op == OpSortedMergeDir {
			if fc.SortKeyName == "" {
				return nil, &ConfigError{Field: fc.Name, Msg: "SORTED_MERGE requires a sort_key"}
			}
			sortKeyIdx = schema.indexOf(fc.SortKeyName)
			if sortKeyIdx < 0 {
				return nil, &ConfigError{Field: fc.Name, Msg: "sort_key not present in input schema"}
			}
			if !schema.Fields[sortKeyIdx].Kind.IsOrdered() {
				return nil, &ConfigError{Field: fc.Name, Msg: "sort_key type is not ordered"}
			}
		}

		if fc.HasDelimiter && fc.Kind != KindString {
			return nil, &ConfigError{Field: fc.Name, Msg: "delimiter is only valid for string APPEND"}
		}

		bf := boundField{
			cfg:         fc,
			schemaIdx:   idx,
			reverseIdx:  reverseIdx,
			sortKeyIdx:  sortKeyIdx,
			keyPosition: -1,
		}
		if fc.Op == OpKey {
			bf.keyPosition = len(keyOrder)
			keyOrder = append(keyOrder, len(bound))
		}
		bound = append(bound, bf)
	}

	tuple := detectBiflow(schema)
	if tuple.present() {
		if err := checkBiflowPairing(bound, tuple); err != nil {
			return nil, err
		}
	}

	return &Binding{
		Schema:   schema,
		Fields:   bound,
		KeyOrder: keyOrder,
		Biflow:   tuple,
	}, nil
}

// checkBiflowPairing enforces that, whenever the schema exposes the full
// canonical 5-tuple (SRC_IP/DST_IP/SRC_PORT/DST_PORT/PROTOCOL), any bound
// field that names one of the four directional members points its
// reverse_name at exactly its canonical partner. Mirrors
// check_biflow_key_presence from the original configuration reader: a
// reversed record's buildKey swaps a field to bf.reverseIdx only when one
// is declared, so a missing or mismatched reverse_name on just one side of
// a pair would swap that field but not its partner, producing a cache key
// that mixes fields from both directions.
func checkBiflowPairing(bound []boundField, tuple BiflowTuple) error {
	partner := map[string]int{
		fieldSrcIP:   tuple.DstIP,
		fieldDstIP:   tuple.SrcIP,
		fieldSrcPort: tuple.DstPort,
		fieldDstPort: tuple.SrcPort,
	}
	for _, bf := range bound {
		want, isTupleField := partner[bf.cfg.Name]
		if !isTupleField {
			continue
		}
		if bf.reverseIdx != want {
			return &ConfigError{Field: bf.cfg.Name, Msg: "biflow pairing mismatch: reverse_name must name its canonical 5-tuple partner"}
		}
	}
	return nil
}

func fmtIncompatible(op Op, kind Kind) string {
	return op.String() + " is not defined for type " + kind.String()
}
