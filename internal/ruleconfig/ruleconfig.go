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

// Package ruleconfig parses the aggregator's rule file: an XML document
// naming one or more rule-sets, each a list of field entries describing
// which op to run over which input field. No third-party XML library
// appears anywhere in the retrieved reference pack, so this is the one
// place the ambient-stack rule ("reach for the pack's library, not
// stdlib") does not apply — encoding/xml is the only available option.
package ruleconfig

import (
	"encoding/xml"
	"fmt"
	"io"

	"biflowagg/pkg/aggregator"
)

type xmlDoc struct {
	XMLName xml.Name     `xml:"aggregator"`
	IDs     []xmlRuleSet `xml:"id"`
}

type xmlRuleSet struct {
	Name   string     `xml:"name,attr"`
	Fields []xmlField `xml:"field"`
}

type xmlField struct {
	Name        string `xml:"name"`
	ReverseName string `xml:"reverse_name"`
	Type        string `xml:"type"`
	SortKey     string `xml:"sort_key"`
	SortType    string `xml:"sort_type"`
	Delimiter   string `xml:"delimiter"`
	Size        string `xml:"size"`
}

// ParseError names the rule-set/field an XML parse problem came from.
type ParseError struct {
	RuleSet string
	Field   string
	Msg     string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("ruleconfig: rule-set %q: %s", e.RuleSet, e.Msg)
	}
	return fmt.Sprintf("ruleconfig: rule-set %q, field %q: %s", e.RuleSet, e.Field, e.Msg)
}

// Parse reads a rule file from r and returns the field configuration for
// the named rule-set (an <id name="..."> element). Reverse fields that a
// field names via reverse_name but that are not themselves declared are
// synthesized automatically, marked not-for-output, mirroring the
// original configuration reader's "implicit reverse field" behavior —
// a rule file only has to name each direction of a pair once.
func Parse(r io.Reader, ruleSetName string) ([]aggregator.FieldConfig, error) {
	var doc xmlDoc
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{RuleSet: ruleSetName, Msg: "malformed XML: " + err.Error()}
	}

	var ruleSet *xmlRuleSet
	for i := range doc.IDs {
		if doc.IDs[i].Name == ruleSetName {
			ruleSet = &doc.IDs[i]
			break
		}
	}
	if ruleSet == nil {
		return nil, &ParseError{RuleSet: ruleSetName, Msg: "rule-set not found in file"}
	}

	seen := make(map[string]bool, len(ruleSet.Fields))
	out := make([]aggregator.FieldConfig, 0, len(ruleSet.Fields))

	for _, xf := range ruleSet.Fields {
		fc, err := parseField(ruleSetName, xf)
		if err != nil {
			return nil, err
		}
		if seen[fc.Name] {
			return nil, &ParseError{RuleSet: ruleSetName, Field: fc.Name, Msg: "duplicate field name"}
		}
		seen[fc.Name] = true
		out = append(out, fc)
	}

	for _, fc := range out {
		if fc.ReverseName == "" || seen[fc.ReverseName] {
			continue
		}
		seen[fc.ReverseName] = true
		out = append(out, aggregator.FieldConfig{
			Name:         fc.ReverseName,
			ReverseName:  fc.Name,
			Op:           fc.Op,
			SortKeyName:  fc.SortKeyName,
			SortOrder:    fc.SortOrder,
			HasDelimiter: fc.HasDelimiter,
			Delimiter:    fc.Delimiter,
			Limit:        fc.Limit,
			ToOutput:     false,
		})
	}

	return out, nil
}

func parseField(ruleSet string, xf xmlField) (aggregator.FieldConfig, error) {
	fc := aggregator.FieldConfig{
		Name:        xf.Name,
		ReverseName: xf.ReverseName,
		SortKeyName: xf.SortKey,
		ToOutput:    true,
	}
	if fc.Name == "" {
		return fc, &ParseError{RuleSet: ruleSet, Msg: "field missing <name>"}
	}

	op, err := parseOp(xf.Type)
	if err != nil {
		return fc, &ParseError{RuleSet: ruleSet, Field: fc.Name, Msg: err.Error()}
	}
	fc.Op = op

	if xf.SortType != "" {
		order, err := parseSortOrder(xf.SortType)
		if err != nil {
			return fc, &ParseError{RuleSet: ruleSet, Field: fc.Name, Msg: err.Error()}
		}
		fc.SortOrder = order
	}
	if (op == aggregator.OpSortedMerge || op == aggregator.OpSortedMergeDir) && (xf.SortKey == "" || xf.SortType == "") {
		return fc, &ParseError{RuleSet: ruleSet, Field: fc.Name, Msg: "SORTED_MERGE(_DIR) requires both sort_key and sort_type"}
	}

	if xf.Delimiter != "" {
		if len(xf.Delimiter) != 1 {
			return fc, &ParseError{RuleSet: ruleSet, Field: fc.Name, Msg: fmt.Sprintf("invalid delimiter length %d, expected 1", len(xf.Delimiter))}
		}
		fc.HasDelimiter = true
		fc.Delimiter = xf.Delimiter[0]
	}

	if xf.Size != "" {
		n, err := parseUint(xf.Size)
		if err != nil || n == 0 {
			return fc, &ParseError{RuleSet: ruleSet, Field: fc.Name, Msg: fmt.Sprintf("invalid size %q, expected a positive integer", xf.Size)}
		}
		fc.Limit = n
	}

	return fc, nil
}

func parseOp(s string) (aggregator.Op, error) {
	switch s {
	case "KEY":
		return aggregator.OpKey, nil
	case "SUM":
		return aggregator.OpSum, nil
	case "AVG":
		return aggregator.OpAvg, nil
	case "MIN":
		return aggregator.OpMin, nil
	case "MAX":
		return aggregator.OpMax, nil
	case "BITAND", "BIT_AND":
		return aggregator.OpBitAnd, nil
	case "BITOR", "BIT_OR":
		return aggregator.OpBitOr, nil
	case "FIRST":
		return aggregator.OpFirst, nil
	case "FIRST_NON_EMPTY":
		return aggregator.OpFirstNonEmpty, nil
	case "LAST":
		return aggregator.OpLast, nil
	case "LAST_NON_EMPTY":
		return aggregator.OpLastNonEmpty, nil
	case "APPEND":
		return aggregator.OpAppend, nil
	case "SORTED_MERGE":
		return aggregator.OpSortedMerge, nil
	case "SORTED_MERGE_DIR":
		return aggregator.OpSortedMergeDir, nil
	default:
		return 0, fmt.Errorf("invalid type %q, expected KEY|SUM|AVG|MIN|MAX|BITAND|BITOR|FIRST|FIRST_NON_EMPTY|LAST|LAST_NON_EMPTY|APPEND|SORTED_MERGE|SORTED_MERGE_DIR", s)
	}
}

func parseSortOrder(s string) (aggregator.SortOrder, error) {
	switch s {
	case "ASCENDING":
		return aggregator.Ascending, nil
	case "DESCENDING":
		return aggregator.Descending, nil
	default:
		return 0, fmt.Errorf("invalid sort_type %q, expected ASCENDING|DESCENDING", s)
	}
}

func parseUint(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number")
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
