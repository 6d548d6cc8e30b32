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

package transport

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"biflowagg/pkg/aggregator"
)

func TestNewCSVSourceParsesHeaderKinds(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader("SRC_IP:IP,BYTES:UINT64,LABEL:STRING\n"), false)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	schema, err := src.Schema(context.Background())
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if len(schema.Fields) != 3 {
		t.Fatalf("len(Fields) = %d, want 3", len(schema.Fields))
	}
	if schema.Fields[0].Kind != aggregator.KindIP {
		t.Fatalf("Fields[0].Kind = %v, want KindIP", schema.Fields[0].Kind)
	}
	if schema.Fields[1].Kind != aggregator.KindUint64 {
		t.Fatalf("Fields[1].Kind = %v, want KindUint64", schema.Fields[1].Kind)
	}
	if schema.Fields[2].Kind != aggregator.KindString {
		t.Fatalf("Fields[2].Kind = %v, want KindString", schema.Fields[2].Kind)
	}
}

func TestNewCSVSourceRejectsMalformedHeaderColumn(t *testing.T) {
	_, err := NewCSVSource(strings.NewReader("SRC_IP\n"), false)
	if err == nil {
		t.Fatal("NewCSVSource accepted a header column with no :TYPE suffix")
	}
}

func TestNewCSVSourceRejectsUnknownKindName(t *testing.T) {
	_, err := NewCSVSource(strings.NewReader("FIELD:NOT_A_TYPE\n"), false)
	if err == nil {
		t.Fatal("NewCSVSource accepted an unrecognized column type")
	}
}

func TestCSVSourceRecvParsesRowIntoScalars(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader("BYTES:UINT64,RATIO:FLOAT64,SRC_IP:IP\n100,1.5,10.0.0.1\n"), false)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	rec, changed, err := src.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if changed {
		t.Fatal("CSVSource.Recv reported changed=true; CSV schema never changes mid-stream")
	}
	if rec.Scalars[0].UInt != 100 {
		t.Fatalf("BYTES = %d, want 100", rec.Scalars[0].UInt)
	}
	if rec.Scalars[1].Float != 1.5 {
		t.Fatalf("RATIO = %v, want 1.5", rec.Scalars[1].Float)
	}
	if len(rec.Scalars[2].Bytes) != 4 {
		t.Fatalf("SRC_IP bytes len = %d, want 4 (IPv4)", len(rec.Scalars[2].Bytes))
	}
}

func TestCSVSourceRecvPopulatesTimeFirstTimeLastFromNamedColumns(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader("TIME_FIRST:TIME,TIME_LAST:TIME\n1000,2000\n"), false)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	rec, _, err := src.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if rec.TimeFirst != 1000 || rec.TimeLast != 2000 {
		t.Fatalf("TimeFirst=%d TimeLast=%d, want 1000, 2000", rec.TimeFirst, rec.TimeLast)
	}
}

func TestCSVSourceRecvRejectsColumnCountMismatch(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader("A:UINT64,B:UINT64\n1\n"), false)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	_, _, err = src.Recv(context.Background())
	if err == nil {
		t.Fatal("Recv accepted a row with fewer columns than the header")
	}
}

func TestCSVSourceRecvReturnsSourceClosedAtEOF(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader("A:UINT64\n1\n"), false)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	if _, _, err := src.Recv(context.Background()); err != nil {
		t.Fatalf("first Recv: %v", err)
	}
	_, _, err = src.Recv(context.Background())
	if err != ErrSourceClosed {
		t.Fatalf("second Recv error = %v, want ErrSourceClosed", err)
	}
}

func TestCSVSourceRecvRejectsInvalidMACValue(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader("M:MAC\nnot-a-mac\n"), false)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	_, _, err = src.Recv(context.Background())
	if err == nil {
		t.Fatal("Recv accepted an invalid MAC value")
	}
}

func TestNewCSVSourceRejectsEmptyInput(t *testing.T) {
	_, err := NewCSVSource(bytes.NewReader(nil), false)
	if err == nil {
		t.Fatal("NewCSVSource accepted an empty reader with no header line at all")
	}
}
