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
	"biflowagg/internal/arena"
	"biflowagg/internal/expiry"
	"biflowagg/internal/flowcache"
	"biflowagg/internal/keycodec"
	"biflowagg/pkg/aggregator/ops"
)

// FlushMode selects how the global flush interval is interpreted.
type FlushMode uint8

const (
	// FlushRelative fires once the watermark (the newest record TimeLast
	// seen) has advanced Config.GlobalFlushInterval past the watermark at
	// the last flush. This is the default.
	FlushRelative FlushMode = iota
	// FlushAbsolute fires when the watermark crosses a fixed-interval
	// boundary (watermark / interval changes), so flush edges line up
	// across independent runs processing the same time range.
	FlushAbsolute
)

// Config is the engine's runtime configuration, bound at construction.
type Config struct {
	CacheCapacity       int // rounded up to the flow cache's power-of-two floor
	ActiveTimeoutNanos  int64
	PassiveTimeoutNanos int64
	GlobalFlushInterval int64 // 0 disables global flush entirely
	GlobalFlushMode     FlushMode
}

// EmitFunc receives one finalized output record. The engine never talks
// to a sink directly — that indirection is what lets internal/transport
// depend on this package instead of the other way around.
type EmitFunc func(OutputRecord)

// Eviction cause labels passed to an EvictFunc. Kept as plain strings
// (rather than importing internal/telemetry's EvictionCause type here)
// so this package never has to depend on the telemetry/metrics stack —
// callers that care wrap the callback and translate.
const (
	CausePassiveTimeout = "passive_timeout"
	CauseForcedSwap     = "forced_swap"
	CauseTableFull      = "table_full"
	CauseGlobalFlush    = "global_flush"
	CauseShutdown       = "shutdown"
)

// EvictFunc, if set, is called once per flow leaving the cache, before
// EmitFunc, so a caller can maintain eviction-cause telemetry.
type EvictFunc func(cause string)

// OccupancyFunc, if set, is polled once per Ingest call so a caller can
// sample cache/expiry-list/arena occupancy without the engine depending
// on any particular metrics backend.
type OccupancyFunc func(cacheLen, cacheCap, expiryLen, arenaInUse int)

// Local per-record error reasons passed to an ErrorFunc. The record that
// triggered one is skipped for the field(s) it affects; it never aborts
// ingestion of the record as a whole or of later records.
const (
	ReasonSortedMergeLengthMismatch = "sorted_merge_length_mismatch"
)

// ErrorFunc, if set, is called once per local per-record error so a
// caller can maintain a dropped/skipped-record counter.
type ErrorFunc func(reason string)

type flowState struct {
	node        expiry.Node
	keyHandle   arena.Handle
	states      []ops.State
	timeFirst   int64
	timeLast    int64
	count       uint64
	activeUntil int64 // min(existing, timeFirst + ActiveTimeoutNanos), recomputed every update
	internKeys  []internedKeyField
}

// internedKeyField records a key field's intern-table hash and original
// string so the refcount can be released when the flow is evicted.
type internedKeyField struct {
	hash  uint64
	value string
}

// Engine is the aggregator's top-level state machine: one flow cache, one
// expiry list ordered by effective deadline, and one arena each for key
// bytes and flow state. It is single-threaded by design — every method
// must be called from one goroutine, matching the lock-free hot path the
// flow cache and arenas are built around.
type Engine struct {
	cfg      Config
	binding  *Binding
	table    *fieldTable
	emit     EmitFunc
	onEvict  EvictFunc
	onOccupy OccupancyFunc
	onError  ErrorFunc

	cache     *flowcache.Cache
	keyPool   *arena.Pool[[]byte]
	statePool *arena.Pool[flowState]
	expiryL   *expiry.List
	intern    *keycodec.InternTable

	watermark     int64
	lastFlushTime int64
	lastFlushEdge int64
}

// NewEngine builds an engine bound to binding, ready to accept records.
func NewEngine(binding *Binding, cfg Config, emit EmitFunc) *Engine {
	e := &Engine{
		cfg:     cfg,
		binding: binding,
		table:   newFieldTable(binding),
		emit:    emit,
		intern:  keycodec.NewInternTable(),
	}
	e.cache = flowcache.New(cfg.CacheCapacity, func(h arena.Handle) []byte { return *e.keyPool.Get(h) })
	e.statePool = arena.NewPool[flowState](e.cache.Cap())
	e.keyPool = arena.NewPool[[]byte](e.cache.Cap())
	e.expiryL = expiry.New(func(h arena.Handle) *expiry.Node { return &e.statePool.Get(h).node })
	return e
}

// WithEvictFunc registers a callback invoked once per evicted flow.
func (e *Engine) WithEvictFunc(f EvictFunc) *Engine { e.onEvict = f; return e }

// WithOccupancyFunc registers a callback polled once per Ingest call.
func (e *Engine) WithOccupancyFunc(f OccupancyFunc) *Engine { e.onOccupy = f; return e }

// WithErrorFunc registers a callback invoked once per local per-record error.
func (e *Engine) WithErrorFunc(f ErrorFunc) *Engine { e.onError = f; return e }

// Ingest folds one unidirectional record into the aggregate it belongs
// to, performing biflow canonicalization first when the bound schema
// exposes a 5-tuple. It drives the expiry/flush machinery off of the
// record's own timestamp, so replaying a capture produces the same
// output regardless of wall-clock speed.
func (e *Engine) Ingest(rec *Record) {
	if rec.TimeLast > e.watermark {
		e.watermark = rec.TimeLast
	}
	e.drainExpired()
	e.maybeGlobalFlush()

	if e.binding.Biflow.present() {
		rec.Reversed = keycodec.Canonicalize(keycodec.Tuple5{
			SrcIP:   rec.Scalars[e.binding.Biflow.SrcIP],
			DstIP:   rec.Scalars[e.binding.Biflow.DstIP],
			SrcPort: rec.Scalars[e.binding.Biflow.SrcPort],
			DstPort: rec.Scalars[e.binding.Biflow.DstPort],
			Proto:   rec.Scalars[e.binding.Biflow.Proto],
		})
	}

	key := e.buildKey(rec)
	hash := keycodec.Hash(key)

	for {
		outcome, evicted, idx := e.cache.Insert(hash, key)
		switch outcome {
		case flowcache.Inserted:
			e.createFlow(idx, hash, key, rec)
			e.reportOccupancy()
			return
		case flowcache.Duplicated:
			e.updateFlow(evicted.StateHandle, rec)
			e.reportOccupancy()
			return
		case flowcache.Swapped:
			e.finalizeAndFree(evicted, CauseForcedSwap)
			e.createFlow(idx, hash, key, rec)
			e.reportOccupancy()
			return
		case flowcache.Full:
			head := e.expiryL.Head()
			if head == arena.Invalid {
				// Capacity floor means this cannot happen in practice,
				// but never spin forever if it somehow did.
				return
			}
			headEntry := flowcache.Entry{StateHandle: head}
			headIdx := e.cache.IndexOfState(head)
			if headIdx < 0 {
				return
			}
			e.cache.Delete(headIdx)
			e.finalizeAndFree(headEntry, CauseTableFull)
			// retry: the just-freed slot makes room for this key
		}
	}
}

func (e *Engine) reportOccupancy() {
	if e.onOccupy == nil {
		return
	}
	e.onOccupy(e.cache.Len(), e.cache.Cap(), e.expiryL.Len(), e.statePool.InUse())
}

// buildKey encodes rec's key fields, honoring reverse-direction field
// swap the same way fieldTable.update does for aggregation fields.
func (e *Engine) buildKey(rec *Record) []byte {
	var buf []byte
	for _, i := range e.binding.KeyOrder {
		bf := e.binding.Fields[i]
		idx := bf.schemaIdx
		if rec.Reversed && bf.reverseIdx >= 0 {
			idx = bf.reverseIdx
		}
		buf = keycodec.EncodeKey(buf, []Scalar{rec.Scalars[idx]})
	}
	return buf
}

func (e *Engine) effectiveDeadline(fs *flowState) int64 {
	passive := fs.timeLast + e.cfg.PassiveTimeoutNanos
	if fs.activeUntil < passive {
		return fs.activeUntil
	}
	return passive
}

func (e *Engine) createFlow(idx int, hash uint64, key []byte, rec *Record) {
	keyHandle, keySlot, ok := e.keyPool.Acquire()
	if !ok {
		return
	}
	owned := make([]byte, len(key))
	copy(owned, key)
	*keySlot = owned

	stateHandle, fs, ok := e.statePool.Acquire()
	if !ok {
		e.keyPool.Release(keyHandle)
		return
	}
	fs.keyHandle = keyHandle
	fs.states = e.table.newStates()
	fs.timeFirst = rec.TimeFirst
	fs.timeLast = rec.TimeLast
	fs.count = 1
	fs.activeUntil = rec.TimeFirst + e.cfg.ActiveTimeoutNanos
	fs.node = expiry.Node{PassiveDeadline: e.effectiveDeadline(fs)}
	fs.internKeys = e.internKeyFields(rec)

	if !e.table.update(fs.states, rec) && e.onError != nil {
		e.onError(ReasonSortedMergeLengthMismatch)
	}
	e.cache.Confirm(idx, flowcache.Entry{Hash: hash, KeyHandle: keyHandle, StateHandle: stateHandle})
	e.expiryL.Insert(stateHandle)
}

func (e *Engine) updateFlow(stateHandle arena.Handle, rec *Record) {
	fs := e.statePool.Get(stateHandle)
	if rec.TimeFirst < fs.timeFirst {
		fs.timeFirst = rec.TimeFirst
	}
	if rec.TimeLast > fs.timeLast {
		fs.timeLast = rec.TimeLast
	}
	if want := fs.timeFirst + e.cfg.ActiveTimeoutNanos; want < fs.activeUntil {
		fs.activeUntil = want
	}
	fs.count++
	if !e.table.update(fs.states, rec) && e.onError != nil {
		e.onError(ReasonSortedMergeLengthMismatch)
	}

	newDeadline := e.effectiveDeadline(fs)
	if newDeadline != fs.node.PassiveDeadline {
		fs.node.PassiveDeadline = newDeadline
		e.expiryL.Reposition(stateHandle)
	}
}

// internKeyFields interns every string-typed key field's value so the
// intern table's refcount stays in sync with the flows actually holding
// a reference, releasing them again on eviction (see finalizeAndFree).
func (e *Engine) internKeyFields(rec *Record) []internedKeyField {
	var out []internedKeyField
	for _, i := range e.binding.KeyOrder {
		bf := e.binding.Fields[i]
		if bf.cfg.Kind != KindString {
			continue
		}
		idx := bf.schemaIdx
		if rec.Reversed && bf.reverseIdx >= 0 {
			idx = bf.reverseIdx
		}
		s := string(rec.Scalars[idx].Bytes)
		h := e.intern.Intern(s)
		out = append(out, internedKeyField{hash: h, value: s})
	}
	return out
}

// drainExpired evicts and emits every flow whose effective deadline has
// passed as of the current watermark.
func (e *Engine) drainExpired() {
	for {
		head := e.expiryL.Head()
		if head == arena.Invalid {
			return
		}
		fs := e.statePool.Get(head)
		if fs.node.PassiveDeadline > e.watermark {
			return
		}
		idx := e.cache.IndexOfState(head)
		if idx < 0 {
			e.expiryL.Delete(head)
			continue
		}
		entry := flowcache.Entry{StateHandle: head}
		e.cache.Delete(idx)
		e.finalizeAndFree(entry, CausePassiveTimeout)
	}
}

func (e *Engine) maybeGlobalFlush() {
	if e.cfg.GlobalFlushInterval <= 0 {
		return
	}
	switch e.cfg.GlobalFlushMode {
	case FlushAbsolute:
		edge := e.watermark / e.cfg.GlobalFlushInterval
		if edge == e.lastFlushEdge {
			return
		}
		e.lastFlushEdge = edge
	default: // FlushRelative
		if e.watermark-e.lastFlushTime < e.cfg.GlobalFlushInterval {
			return
		}
	}
	e.lastFlushTime = e.watermark
	e.FlushAll()
}

// FlushAll finalizes and emits every live flow, then empties the cache,
// expiry list and both arenas. Called on an explicit global flush, a
// schema rebind, and shutdown. Emission order across flows is
// unspecified, matching the external interface's flush semantics.
func (e *Engine) FlushAll() {
	e.flushAll(CauseGlobalFlush)
}

func (e *Engine) flushAll(cause string) {
	var handles []arena.Handle
	e.cache.Each(func(_ int, entry flowcache.Entry) {
		handles = append(handles, entry.StateHandle)
	})
	for _, h := range handles {
		if e.onEvict != nil {
			e.onEvict(cause)
		}
		e.emitFlow(h)
	}
	e.cache.Reset()
	e.expiryL.Reset()
	e.statePool.Reset()
	e.keyPool.Reset()
	e.intern.Reset()
	e.reportOccupancy()
}

// Shutdown flushes every remaining flow. Call it once, after the last
// Ingest, before discarding the engine.
func (e *Engine) Shutdown() {
	e.flushAll(CauseShutdown)
}

func (e *Engine) finalizeAndFree(entry flowcache.Entry, cause string) {
	if e.onEvict != nil {
		e.onEvict(cause)
	}
	e.emitFlow(entry.StateHandle)
	fs := e.statePool.Get(entry.StateHandle)
	for _, ik := range fs.internKeys {
		e.intern.Release(ik.hash, ik.value)
	}
	e.expiryL.Delete(entry.StateHandle)
	e.keyPool.Release(fs.keyHandle)
	e.statePool.Release(entry.StateHandle)
}

func (e *Engine) emitFlow(stateHandle arena.Handle) {
	fs := e.statePool.Get(stateHandle)
	out := OutputRecord{
		Fields:    e.table.results(fs.states),
		TimeFirst: fs.timeFirst,
		TimeLast:  fs.timeLast,
		Count:     fs.count,
	}
	e.emit(out)
}

// Rebind replaces the engine's binding with a new one built against a
// changed input schema, flushing every in-flight flow first — a schema
// rebind is always a hard boundary, never an incremental merge.
func (e *Engine) Rebind(binding *Binding) {
	e.FlushAll()
	e.binding = binding
	e.table = newFieldTable(binding)
}

// Len reports the number of live flows currently tracked.
func (e *Engine) Len() int { return e.cache.Len() }
