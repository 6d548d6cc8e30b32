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

package keycodec

// InternTable deduplicates repeated string key-field values (e.g.
// interface names, VRF identifiers) by 64-bit hash, refcounted so a
// string's storage is freed only once the last flow referencing it is
// evicted. It is not safe for concurrent use.
type InternTable struct {
	buckets map[uint64][]*internEntry
	live    int
}

type internEntry struct {
	hash     uint64
	value    string
	refcount int
}

// NewInternTable builds an empty table.
func NewInternTable() *InternTable {
	return &InternTable{buckets: make(map[uint64][]*internEntry)}
}

// Live returns the number of distinct interned strings currently held.
func (t *InternTable) Live() int { return t.live }

// Intern returns the hash identifying s, incrementing its refcount (or
// creating it with refcount 1 if this is the first reference). A hash
// collision between two distinct strings is resolved by chaining within
// the bucket; Lookup/Release always compare the full string, not just
// the hash, so a collision never corrupts an unrelated entry.
func (t *InternTable) Intern(s string) uint64 {
	h := Hash([]byte(s))
	for _, e := range t.buckets[h] {
		if e.value == s {
			e.refcount++
			return h
		}
	}
	t.buckets[h] = append(t.buckets[h], &internEntry{hash: h, value: s, refcount: 1})
	t.live++
	return h
}

// Lookup resolves h back to its string given the original value for
// disambiguation (needed only in the rare collision case); ok is false if
// no live entry matches.
func (t *InternTable) Lookup(h uint64, original string) (string, bool) {
	for _, e := range t.buckets[h] {
		if e.value == original {
			return e.value, true
		}
	}
	return "", false
}

// Release decrements the refcount for (h, original) and drops the entry
// once it reaches zero. Releasing an unknown entry is a silent no-op:
// callers may race a full-flush Reset against per-flow Release calls
// made stale by the reset, and this is always safe to ignore.
func (t *InternTable) Release(h uint64, original string) {
	bucket := t.buckets[h]
	for i, e := range bucket {
		if e.value != original {
			continue
		}
		e.refcount--
		if e.refcount <= 0 {
			t.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			t.live--
		}
		return
	}
}

// Reset drops every interned entry unconditionally, used on a schema
// rebind where every flow (and hence every string reference) is flushed
// at once.
func (t *InternTable) Reset() {
	t.buckets = make(map[uint64][]*internEntry)
	t.live = 0
}
