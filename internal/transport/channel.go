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
	"context"

	"biflowagg/pkg/aggregator"
)

// ChannelSource is a Source backed by a Go channel, used by tests and by
// the demo command to drive the engine from an in-process record
// generator without needing a real wire protocol.
type ChannelSource struct {
	schema aggregator.InputSchema
	recs   <-chan aggregator.Record
}

// NewChannelSource builds a source that announces schema once and then
// yields every record sent on recs, until recs is closed.
func NewChannelSource(schema aggregator.InputSchema, recs <-chan aggregator.Record) *ChannelSource {
	return &ChannelSource{schema: schema, recs: recs}
}

func (s *ChannelSource) Schema(ctx context.Context) (aggregator.InputSchema, error) {
	return s.schema, nil
}

func (s *ChannelSource) Recv(ctx context.Context) (aggregator.Record, bool, error) {
	select {
	case rec, ok := <-s.recs:
		if !ok {
			return aggregator.Record{}, false, ErrSourceClosed
		}
		return rec, false, nil
	case <-ctx.Done():
		return aggregator.Record{}, false, ctx.Err()
	}
}

// ChannelSink is a Sink that forwards every emitted record onto a Go
// channel, used the same way ChannelSource is: wiring tests and the demo
// command without a real downstream protocol.
type ChannelSink struct {
	out chan<- aggregator.OutputRecord
}

// NewChannelSink builds a sink that writes to out. The caller owns out's
// lifecycle (closing it once no more Sends will happen).
func NewChannelSink(out chan<- aggregator.OutputRecord) *ChannelSink {
	return &ChannelSink{out: out}
}

func (s *ChannelSink) Send(ctx context.Context, rec aggregator.OutputRecord) error {
	select {
	case s.out <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
