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

// Package transport defines the aggregator's boundary with the outside
// world: a Source that negotiates an input schema and hands over
// unidirectional records, and a Sink that accepts finalized aggregates.
// The engine itself depends on neither interface directly (see
// aggregator.EmitFunc) — wiring a concrete Source/Sink pair into an
// engine is the command surface's job (see cmd/biflow-aggregator).
package transport

import (
	"context"
	"errors"

	"biflowagg/pkg/aggregator"
)

// ErrSourceClosed is returned by Recv once a source has no more records
// and will never produce any (the EOF-terminate case).
var ErrSourceClosed = errors.New("transport: source closed")

// Source is anything that can announce an input schema and then stream
// unidirectional flow records.
type Source interface {
	// Schema returns the field layout records from this source will use.
	// Called once at startup, and again whenever the source reports a
	// schema change mid-stream (see Recv's changed return).
	Schema(ctx context.Context) (aggregator.InputSchema, error)
	// Recv blocks for the next record. changed is true when rec's schema
	// differs from the last one returned by Schema/Recv, signalling the
	// caller must re-bind before folding rec in. err is ErrSourceClosed
	// at normal end of stream.
	Recv(ctx context.Context) (rec aggregator.Record, changed bool, err error)
}

// Sink accepts finalized output records. Send reports a failed delivery
// by returning an error; the sinks in this package do not retry, and
// cmd/biflow-aggregator retries a failed Send before counting the record
// as dropped.
type Sink interface {
	Send(ctx context.Context, rec aggregator.OutputRecord) error
}
