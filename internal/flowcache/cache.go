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

// Package flowcache implements the aggregator's bounded open-addressed
// hash table. Capacity is fixed at construction to the next power of two
// and the table never grows or rehashes: once full, the caller is handed
// back either a forced eviction (Swapped) or told to evict something of
// its own choosing (Full) and retry.
package flowcache

import (
	"biflowagg/internal/arena"
)

// Outcome describes what Insert did.
type Outcome int

const (
	// Inserted reports a brand-new slot was claimed for a previously
	// unseen key; the caller must initialise flow state for it.
	Inserted Outcome = iota
	// Duplicated reports the key was already present; the caller should
	// fold the new record into the existing flow state.
	Duplicated
	// Swapped reports the key was not present and the bounded probe
	// sequence forced the table to displace an existing occupant. The
	// displaced (key, state) handles are returned so the caller can
	// finalize and emit it before using the now-free slot.
	Swapped
	// Full reports the table is at capacity with no room for a new key;
	// the caller must evict something on its own (typically the head of
	// the expiry list) and retry.
	Full
)

// Entry is what the cache stores per occupied slot. KeyHandle/StateHandle
// are opaque to the cache — they are handles into arenas the caller owns;
// the cache's only job is mapping a key's bytes to them.
type Entry struct {
	Hash        uint64
	KeyHandle   arena.Handle
	StateHandle arena.Handle
}

type slot struct {
	occupied bool
	entry    Entry
}

// KeyBytes resolves a KeyHandle back to the raw bytes that were inserted
// under it, so the cache can compare candidate keys against occupants
// without owning any key storage itself.
type KeyBytes func(h arena.Handle) []byte

// Cache is a fixed-capacity open-addressed hash table keyed by opaque byte
// strings. It is not safe for concurrent use.
type Cache struct {
	slots    []slot
	mask     uint64
	count    int
	maxProbe int
	keyBytes KeyBytes
}

// New builds a cache whose capacity is the next power of two >= requested
// (minimum 4, matching the command-surface floor in the external
// interface spec). keyBytes resolves a stored KeyHandle to its bytes for
// equality comparison.
func New(requested int, keyBytes KeyBytes) *Cache {
	capacity := nextPow2(requested)
	if capacity < 4 {
		capacity = 4
	}
	maxProbe := 8
	if maxProbe > capacity {
		maxProbe = capacity
	}
	return &Cache{
		slots:    make([]slot, capacity),
		mask:     uint64(capacity - 1),
		maxProbe: maxProbe,
		keyBytes: keyBytes,
	}
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the table's fixed capacity.
func (c *Cache) Cap() int { return len(c.slots) }

// Len returns the number of live entries.
func (c *Cache) Len() int { return c.count }

// Insert looks up or reserves a slot for (hash, key). On Inserted or
// Swapped, the caller builds the new Entry (KeyHandle/StateHandle) and
// records it at the returned index via Confirm — Insert only tells the
// caller which case applies and, for Swapped, returns the evicted entry.
// Every slot of the probe window is checked for a match before a free
// slot is claimed, so a key whose window contains a deleted slot is still
// found rather than inserted a second time.
func (c *Cache) Insert(hash uint64, key []byte) (Outcome, Entry, int) {
	if c.count >= len(c.slots) {
		return Full, Entry{}, -1
	}

	home := hash & c.mask
	probe := c.maxProbe
	if probe > len(c.slots) {
		probe = len(c.slots)
	}

	free := -1
	for i := 0; i < probe; i++ {
		idx := (home + uint64(i)) & c.mask
		s := &c.slots[idx]
		if !s.occupied {
			if free < 0 {
				free = int(idx)
			}
			continue
		}
		if s.entry.Hash == hash && bytesEqual(c.keyBytes(s.entry.KeyHandle), key) {
			return Duplicated, s.entry, int(idx)
		}
	}
	if free >= 0 {
		return Inserted, Entry{}, free
	}

	// Bounded probe sequence exhausted without a free slot or a match,
	// but the table is not globally full: force a displacement at the
	// last probed slot so insertion never degrades into an unbounded scan.
	idx := (home + uint64(probe-1)) & c.mask
	evicted := c.slots[idx].entry
	return Swapped, evicted, int(idx)
}

// Confirm records a newly-claimed or newly-replaced entry at idx (as
// returned by Insert for Inserted/Swapped) and updates the live count.
func (c *Cache) Confirm(idx int, e Entry) {
	s := &c.slots[idx]
	if !s.occupied {
		c.count++
	}
	s.occupied = true
	s.entry = e
}

// Delete removes the entry at idx (used after evicting via the expiry
// list head on a Full outcome, or on flush/shutdown).
func (c *Cache) Delete(idx int) {
	s := &c.slots[idx]
	if s.occupied {
		c.count--
	}
	*s = slot{}
}

// IndexOfState locates the slot index holding stateHandle, or -1 if
// absent. Exposed for the eviction path, which needs to remove a victim
// chosen by the expiry list (identified by its StateHandle) rather than
// by key.
func (c *Cache) IndexOfState(stateHandle arena.Handle) int {
	for i := range c.slots {
		if c.slots[i].occupied && c.slots[i].entry.StateHandle == stateHandle {
			return i
		}
	}
	return -1
}

// Reset empties the table without shrinking its backing storage, used on
// schema rebind and global flush.
func (c *Cache) Reset() {
	for i := range c.slots {
		c.slots[i] = slot{}
	}
	c.count = 0
}

// Each calls f for every live entry, in table order (undefined relative to
// insertion order — used by global flush, where order is explicitly
// unspecified).
func (c *Cache) Each(f func(idx int, e Entry)) {
	for i := range c.slots {
		if c.slots[i].occupied {
			f(i, c.slots[i].entry)
		}
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
