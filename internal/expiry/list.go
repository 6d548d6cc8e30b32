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

// Package expiry implements the flow cache's timeout ordering: a doubly
// linked list of live flows, kept sorted by ascending passive-expiry
// deadline. Nodes are identified by arena.Handle rather than pointers, so
// the list can live directly inside the same state-block arena the engine
// already allocates per flow — no separate node allocation, and no
// aliasing between a Go pointer and a slice that might be reallocated.
package expiry

import "biflowagg/internal/arena"

// Node is the minimum a list element must expose to List. Callers embed
// this alongside their own flow state and pass a Accessor to read/write it
// without the list needing to know the surrounding type.
type Node struct {
	Prev, Next      arena.Handle
	PassiveDeadline int64 // unix nanoseconds; ascending sort key
	Linked          bool
}

// Accessor lets List operate on nodes stored inside an arbitrary arena
// without List itself being generic over the flow-state type. The engine
// supplies a closure that indexes into its own arena.Pool.
type Accessor func(h arena.Handle) *Node

// List is a doubly linked list ordered by ascending PassiveDeadline.
// It is not safe for concurrent use.
type List struct {
	head, tail arena.Handle
	size       int
	node       Accessor
}

// New builds an empty list that resolves handles via access.
func New(access Accessor) *List {
	return &List{head: arena.Invalid, tail: arena.Invalid, node: access}
}

// Len returns the number of linked nodes.
func (l *List) Len() int { return l.size }

// Head returns the handle with the smallest PassiveDeadline, or
// arena.Invalid if the list is empty.
func (l *List) Head() arena.Handle { return l.head }

// Reset clears the list's own bookkeeping. It does not touch the
// underlying arena; callers reset that separately on a full rebind.
func (l *List) Reset() {
	l.head, l.tail = arena.Invalid, arena.Invalid
	l.size = 0
}

// Insert places h in deadline order. The search walks from the tail
// backwards, so it is O(1) in the common case — incoming deadlines almost
// always dominate the current tail, since timeouts are assigned from a
// monotonically advancing watermark — and O(n) only when an update
// reduces a deadline below many existing entries.
func (l *List) Insert(h arena.Handle) {
	n := l.node(h)
	n.Linked = true

	if l.head == arena.Invalid {
		n.Prev, n.Next = arena.Invalid, arena.Invalid
		l.head, l.tail = h, h
		l.size++
		return
	}

	cur := l.tail
	for cur != arena.Invalid {
		curNode := l.node(cur)
		if n.PassiveDeadline < curNode.PassiveDeadline {
			cur = curNode.Prev
			continue
		}
		if cur == l.tail {
			curNode.Next = h
			n.Prev = cur
			n.Next = arena.Invalid
			l.tail = h
		} else {
			next := curNode.Next
			n.Next = next
			n.Prev = cur
			l.node(next).Prev = h
			curNode.Next = h
		}
		l.size++
		return
	}

	// Deadline is smaller than every entry currently linked: becomes head.
	n.Prev = arena.Invalid
	n.Next = l.head
	l.node(l.head).Prev = h
	l.head = h
	l.size++
}

// Delete unlinks h in O(1) using its stored prev/next.
func (l *List) Delete(h arena.Handle) {
	n := l.node(h)
	if !n.Linked {
		return
	}
	switch {
	case l.head == l.tail:
		l.head, l.tail = arena.Invalid, arena.Invalid
	case l.head == h:
		l.head = n.Next
		l.node(l.head).Prev = arena.Invalid
	case l.tail == h:
		l.tail = n.Prev
		l.node(l.tail).Next = arena.Invalid
	default:
		l.node(n.Prev).Next = n.Next
		l.node(n.Next).Prev = n.Prev
	}
	n.Prev, n.Next = arena.Invalid, arena.Invalid
	n.Linked = false
	l.size--
}

// Reposition moves h to reflect a possibly-changed PassiveDeadline.
// Equivalent to Delete followed by Insert; callers should skip calling
// this when the deadline did not actually change (the common case on a
// duplicate-key update), since it costs an unlink/relink for nothing.
func (l *List) Reposition(h arena.Handle) {
	l.Delete(h)
	l.Insert(h)
}
