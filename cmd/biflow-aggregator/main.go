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

// Package main provides the entry point for the biflow flow aggregator.
//
// It reads CSV-framed unidirectional flow records from stdin (a stand-in
// for the message-bus transport the engine is deliberately decoupled
// from), folds them into per-key aggregates according to a rule file,
// and prints one line per emitted aggregate to stdout. Point it at a
// Redis instance with -redis_addr to deliver emits there instead, keyed
// idempotently so a restart never double-counts an aggregate already
// committed.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"biflowagg/internal/ruleconfig"
	"biflowagg/internal/telemetry"
	"biflowagg/internal/transport"
	"biflowagg/pkg/aggregator"
)

func main() {
	ruleFile := flag.String("rules", "", "Path to the XML rule file (required)")
	ruleSet := flag.String("id", "", "Rule-set identifier to select within the rule file (required)")
	eofTerminate := flag.Bool("eof_terminate", false, "Exit cleanly on input EOF instead of waiting for a termination signal")
	capacityBits := flag.Uint("cache_bits", 16, "Flow cache capacity as a bit-width; actual capacity = 2^bits, minimum 4")
	activeTimeout := flag.Duration("active_timeout", 300*time.Second, "Active timeout: a flow is force-finalized this long after its first record")
	passiveTimeout := flag.Duration("passive_timeout", 30*time.Second, "Passive timeout: a flow is finalized this long after its last record if quieter than active_timeout allows")
	flushInterval := flag.Duration("flush_interval", 0, "Global flush interval; 0 disables global flush entirely")
	flushMode := flag.String("flush_mode", "relative", "Global flush mode: 'a'/'absolute' (real-time grid) or 'r'/'relative' (time since last flush)")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g. :9090)")
	redisAddr := flag.String("redis_addr", "", "If non-empty, deliver emits to this Redis address instead of stdout")
	flag.Parse()

	if *ruleFile == "" || *ruleSet == "" {
		fmt.Fprintln(os.Stderr, "biflow-aggregator: -rules and -id are required")
		os.Exit(1)
	}
	if *passiveTimeout > *activeTimeout {
		fmt.Fprintln(os.Stderr, "biflow-aggregator: passive_timeout must be <= active_timeout")
		os.Exit(1)
	}

	mode, err := parseFlushMode(*flushMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "biflow-aggregator: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*ruleFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "biflow-aggregator: opening rule file: %v\n", err)
		os.Exit(1)
	}
	fields, err := ruleconfig.Parse(f, *ruleSet)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "biflow-aggregator: %v\n", err)
		os.Exit(1)
	}

	src, err := transport.NewCSVSource(os.Stdin, *eofTerminate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "biflow-aggregator: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schema, err := src.Schema(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "biflow-aggregator: %v\n", err)
		os.Exit(1)
	}
	binding, err := aggregator.Bind(fields, schema)
	if err != nil {
		fmt.Fprintf(os.Stderr, "biflow-aggregator: %v\n", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	if *metricsAddr != "" {
		stop := telemetry.ServeMetrics(*metricsAddr, reg)
		defer func() {
			shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shCancel()
			_ = stop(shCtx)
		}()
	}

	sink, closeSink := buildSink(*redisAddr)
	defer closeSink()

	cfg := aggregator.Config{
		CacheCapacity:       1 << *capacityBits,
		ActiveTimeoutNanos:  activeTimeout.Nanoseconds(),
		PassiveTimeoutNanos: passiveTimeout.Nanoseconds(),
		GlobalFlushInterval: flushInterval.Nanoseconds(),
		GlobalFlushMode:     mode,
	}

	engine := aggregator.NewEngine(binding, cfg, func(out aggregator.OutputRecord) {
		metrics.RecordsEmitted.Inc()
		if err := deliver(ctx, sink, out); err != nil {
			log.Printf("biflow-aggregator: emit dropped after retry: %v", err)
			metrics.RecordsDropped.Inc()
		}
	})
	engine.WithEvictFunc(func(cause string) {
		metrics.ObserveEviction(telemetry.EvictionCause(cause))
	})
	engine.WithOccupancyFunc(metrics.ObserveOccupancy)
	engine.WithErrorFunc(metrics.ObserveLocalError)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			rec, changed, err := src.Recv(ctx)
			if err != nil {
				if err == transport.ErrSourceClosed {
					if !*eofTerminate {
						<-ctx.Done()
					}
					return
				}
				if ctx.Err() != nil {
					return
				}
				log.Printf("biflow-aggregator: recv error: %v", err)
				continue
			}
			if changed {
				newSchema, serr := src.Schema(ctx)
				if serr != nil {
					log.Printf("biflow-aggregator: schema refresh failed: %v", serr)
					continue
				}
				newBinding, berr := aggregator.Bind(fields, newSchema)
				if berr != nil {
					log.Printf("biflow-aggregator: rebind failed: %v", berr)
					continue
				}
				engine.Rebind(newBinding)
			}
			metrics.RecordsIngested.Inc()
			engine.Ingest(&rec)
		}
	}()

	select {
	case <-done:
	case <-sigCh:
		cancel()
		<-done
	}

	engine.Shutdown()
}

func parseFlushMode(s string) (aggregator.FlushMode, error) {
	switch strings.ToLower(s) {
	case "a", "absolute":
		return aggregator.FlushAbsolute, nil
	case "r", "relative", "":
		return aggregator.FlushRelative, nil
	default:
		return 0, fmt.Errorf("invalid flush_mode %q, expected a/absolute or r/relative", s)
	}
}

// buildSink wires the output side: a plain stdout writer by default, or
// a Redis-backed idempotent sink when redisAddr is set. The returned
// close func releases whatever resource was opened.
func buildSink(redisAddr string) (transport.Sink, func()) {
	if redisAddr == "" {
		w := bufio.NewWriter(os.Stdout)
		return stdoutSink{w: w}, func() { w.Flush() }
	}
	evaler := transport.NewGoRedisEvaler(redisAddr)
	sink := transport.NewRedisSink(evaler, 24*time.Hour)
	return sink, func() { evaler.Close() }
}

type stdoutSink struct {
	w *bufio.Writer
}

func (s stdoutSink) Send(ctx context.Context, rec aggregator.OutputRecord) error {
	enc := json.NewEncoder(s.w)
	return enc.Encode(rec)
}

// deliver retries a transient send failure up to three times before
// giving up, matching the bounded-retry-then-drop policy the source
// implementation uses for a backpressured sink.
func deliver(ctx context.Context, sink transport.Sink, rec aggregator.OutputRecord) error {
	var err error
	for attempt := 0; attempt <= 3; attempt++ {
		if err = sink.Send(ctx, rec); err == nil {
			return nil
		}
	}
	return err
}
