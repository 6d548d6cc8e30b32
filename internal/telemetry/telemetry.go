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

// Package telemetry exposes the engine's own health metrics via
// Prometheus: how full the flow cache is, how the expiry list is moving,
// and why flows left the cache. The collectors are always built and
// updated once New has run; serving them over HTTP (ServeMetrics) is the
// optional part.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EvictionCause labels why a flow left the cache, for the evictions
// counter's "cause" label.
type EvictionCause string

const (
	CausePassiveTimeout EvictionCause = "passive_timeout"
	CauseActiveTimeout  EvictionCause = "active_timeout"
	CauseForcedSwap     EvictionCause = "forced_swap"
	CauseTableFull      EvictionCause = "table_full"
	CauseGlobalFlush    EvictionCause = "global_flush"
	CauseShutdown       EvictionCause = "shutdown"
)

// Metrics bundles every Prometheus collector the engine reports against.
// Build one with New, which creates and registers every collector; the
// zero value holds nil collectors and its methods panic.
type Metrics struct {
	RecordsIngested  prometheus.Counter
	RecordsDropped   prometheus.Counter
	RecordsEmitted   prometheus.Counter
	RecordsLocalErr  *prometheus.CounterVec
	Evictions        *prometheus.CounterVec
	CacheLoad        prometheus.Gauge
	ExpiryListLength prometheus.Gauge
	ArenaInUse       prometheus.Gauge
}

// New constructs and registers the engine's metrics against reg. Passing
// prometheus.NewRegistry() keeps them isolated for tests; passing
// prometheus.DefaultRegisterer wires them into the process-wide
// /metrics endpoint.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biflowagg_records_ingested_total",
			Help: "Total unidirectional flow records accepted from a source.",
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biflowagg_records_dropped_total",
			Help: "Total records dropped because a sink rejected an emit after retry.",
		}),
		RecordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biflowagg_records_emitted_total",
			Help: "Total finalized aggregate records handed to a sink.",
		}),
		RecordsLocalErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biflowagg_records_local_errors_total",
			Help: "Total records skipped for one field due to a local per-record error, labeled by reason.",
		}, []string{"reason"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biflowagg_evictions_total",
			Help: "Total flows evicted from the cache, labeled by cause.",
		}, []string{"cause"}),
		CacheLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "biflowagg_cache_load_factor",
			Help: "Fraction of flow cache capacity currently occupied.",
		}),
		ExpiryListLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "biflowagg_expiry_list_length",
			Help: "Number of flows currently linked in the expiry list.",
		}),
		ArenaInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "biflowagg_arena_in_use",
			Help: "Number of flow-state arena slots currently checked out.",
		}),
	}
	reg.MustRegister(m.RecordsIngested, m.RecordsDropped, m.RecordsEmitted, m.RecordsLocalErr, m.Evictions, m.CacheLoad, m.ExpiryListLength, m.ArenaInUse)
	return m
}

// ObserveEviction increments the evictions counter for cause.
func (m *Metrics) ObserveEviction(cause EvictionCause) {
	m.Evictions.WithLabelValues(string(cause)).Inc()
}

// ObserveLocalError increments the local-error counter for reason.
func (m *Metrics) ObserveLocalError(reason string) {
	m.RecordsLocalErr.WithLabelValues(reason).Inc()
}

// ObserveOccupancy updates the cache-load and expiry/arena gauges. The
// engine calls this after every record it folds into the cache and after
// every full flush.
func (m *Metrics) ObserveOccupancy(cacheLen, cacheCap, expiryLen, arenaInUse int) {
	if cacheCap > 0 {
		m.CacheLoad.Set(float64(cacheLen) / float64(cacheCap))
	}
	m.ExpiryListLength.Set(float64(expiryLen))
	m.ArenaInUse.Set(float64(arenaInUse))
}

// ServeMetrics starts a dedicated HTTP server exposing /metrics on addr
// for the given registry's gatherer, returning a shutdown function. This
// mirrors the teacher's standalone-metrics-endpoint option for deployments
// that do not already run a shared Prometheus-instrumented HTTP server.
func ServeMetrics(addr string, gatherer prometheus.Gatherer) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
	return server.Shutdown
}
