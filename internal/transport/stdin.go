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
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"biflowagg/pkg/aggregator"
)

// CSVSource is a Source reading a header line of "name:TYPE" columns
// followed by one comma-separated record per line. It exists as the
// stand-in wire format for cmd/biflow-aggregator — the real message-bus
// framing this engine sits behind is an external collaborator the
// engine never has to know about (see transport.Source).
type CSVSource struct {
	r            *bufio.Reader
	schema       aggregator.InputSchema
	eofTerminate bool
}

// NewCSVSource reads and parses the header line from r immediately so
// Schema can return without blocking on the first Recv.
func NewCSVSource(r io.Reader, eofTerminate bool) (*CSVSource, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("transport: reading csv header: %w", err)
	}
	schema, err := parseCSVHeader(line)
	if err != nil {
		return nil, err
	}
	return &CSVSource{r: br, schema: schema, eofTerminate: eofTerminate}, nil
}

func parseCSVHeader(line string) (aggregator.InputSchema, error) {
	cols := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	fields := make([]aggregator.FieldDescriptor, 0, len(cols))
	for _, col := range cols {
		name, kindStr, ok := strings.Cut(col, ":")
		if !ok {
			return aggregator.InputSchema{}, fmt.Errorf("transport: malformed header column %q, expected name:TYPE", col)
		}
		kind, err := parseKindName(kindStr)
		if err != nil {
			return aggregator.InputSchema{}, err
		}
		fields = append(fields, aggregator.FieldDescriptor{Name: name, Kind: kind})
	}
	return aggregator.InputSchema{Fields: fields}, nil
}

func parseKindName(s string) (aggregator.Kind, error) {
	switch strings.ToUpper(s) {
	case "INT8":
		return aggregator.KindInt8, nil
	case "INT16":
		return aggregator.KindInt16, nil
	case "INT32":
		return aggregator.KindInt32, nil
	case "INT64":
		return aggregator.KindInt64, nil
	case "UINT8":
		return aggregator.KindUint8, nil
	case "UINT16":
		return aggregator.KindUint16, nil
	case "UINT32":
		return aggregator.KindUint32, nil
	case "UINT64":
		return aggregator.KindUint64, nil
	case "FLOAT32":
		return aggregator.KindFloat32, nil
	case "FLOAT64":
		return aggregator.KindFloat64, nil
	case "TIME":
		return aggregator.KindTime, nil
	case "IP":
		return aggregator.KindIP, nil
	case "MAC":
		return aggregator.KindMAC, nil
	case "STRING":
		return aggregator.KindString, nil
	case "BYTES":
		return aggregator.KindBytes, nil
	default:
		return 0, fmt.Errorf("transport: unknown column type %q", s)
	}
}

func (s *CSVSource) Schema(ctx context.Context) (aggregator.InputSchema, error) {
	return s.schema, nil
}

// Recv reads and parses one line into a Record. changed is always false:
// CSVSource's header is fixed for the lifetime of the stream.
func (s *CSVSource) Recv(ctx context.Context) (aggregator.Record, bool, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			if line == "" {
				return aggregator.Record{}, false, ErrSourceClosed
			}
		} else {
			return aggregator.Record{}, false, err
		}
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return aggregator.Record{}, false, ErrSourceClosed
	}

	cols := strings.Split(line, ",")
	if len(cols) != len(s.schema.Fields) {
		return aggregator.Record{}, false, fmt.Errorf("transport: record has %d columns, schema has %d", len(cols), len(s.schema.Fields))
	}

	rec := aggregator.Record{Scalars: make([]aggregator.Scalar, len(cols))}
	for i, raw := range cols {
		sc, err := parseScalar(s.schema.Fields[i].Kind, raw)
		if err != nil {
			return aggregator.Record{}, false, err
		}
		rec.Scalars[i] = sc
		switch s.schema.Fields[i].Name {
		case "TIME_FIRST":
			rec.TimeFirst = sc.Int
		case "TIME_LAST":
			rec.TimeLast = sc.Int
		}
	}
	return rec, false, nil
}

func parseScalar(kind aggregator.Kind, raw string) (aggregator.Scalar, error) {
	switch {
	case kind.IsSignedInt():
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return aggregator.Scalar{}, fmt.Errorf("transport: invalid %s value %q: %w", kind, raw, err)
		}
		return aggregator.Scalar{Kind: kind, Int: n}, nil
	case kind.IsUnsignedInt():
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return aggregator.Scalar{}, fmt.Errorf("transport: invalid %s value %q: %w", kind, raw, err)
		}
		return aggregator.Scalar{Kind: kind, UInt: n}, nil
	case kind.IsFloat():
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return aggregator.Scalar{}, fmt.Errorf("transport: invalid %s value %q: %w", kind, raw, err)
		}
		return aggregator.Scalar{Kind: kind, Float: f}, nil
	case kind == aggregator.KindIP:
		ip := net.ParseIP(raw)
		if ip == nil {
			return aggregator.Scalar{}, fmt.Errorf("transport: invalid ip value %q", raw)
		}
		if v4 := ip.To4(); v4 != nil {
			return aggregator.Scalar{Kind: kind, Bytes: []byte(v4)}, nil
		}
		return aggregator.Scalar{Kind: kind, Bytes: []byte(ip.To16())}, nil
	case kind == aggregator.KindMAC:
		mac, err := net.ParseMAC(raw)
		if err != nil {
			return aggregator.Scalar{}, fmt.Errorf("transport: invalid mac value %q: %w", raw, err)
		}
		return aggregator.Scalar{Kind: kind, Bytes: []byte(mac)}, nil
	case kind == aggregator.KindTime:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return aggregator.Scalar{}, fmt.Errorf("transport: invalid time value %q: %w", raw, err)
		}
		return aggregator.Scalar{Kind: kind, Int: n}, nil
	default:
		return aggregator.Scalar{Kind: kind, Bytes: []byte(raw)}, nil
	}
}
