// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

// lruNode is an element of lruList. It keeps its key so eviction can
// delete the map entry.
type lruNode[K comparable] struct {
	key        K
	prev, next *lruNode[K]
}

// lruList orders keys from most (head) to least (tail) recently used.
// It is not safe for concurrent use.
type lruList[K comparable] struct {
	head, tail *lruNode[K]
	len        int
}

func newLRUList[K comparable]() *lruList[K] { return &lruList[K]{} }

// Len returns the number of nodes.
func (l *lruList[K]) Len() int { return l.len }

// PushFront inserts key as most recently used.
func (l *lruList[K]) PushFront(key K) *lruNode[K] {
	n := &lruNode[K]{key: key}
	l.linkFront(n)
	return n
}

// MoveToFront marks n most recently used.
func (l *lruList[K]) MoveToFront(n *lruNode[K]) {
	if n == nil || n == l.head {
		return
	}
	l.unlink(n)
	l.linkFront(n)
}

// Remove unlinks n.
func (l *lruList[K]) Remove(n *lruNode[K]) {
	if n != nil {
		l.unlink(n)
	}
}

// RemoveOldest unlinks the tail and returns its key.
func (l *lruList[K]) RemoveOldest() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}
	n := l.tail
	l.unlink(n)
	return n.key, true
}

// Clear drops every node.
func (l *lruList[K]) Clear() { l.head, l.tail, l.len = nil, nil, 0 }

func (l *lruList[K]) linkFront(n *lruNode[K]) {
	n.prev, n.next = nil, l.head
	if l.head != nil {
		l.head.prev = n
	} else {
		l.tail = n
	}
	l.head = n
	l.len++
}

func (l *lruList[K]) unlink(n *lruNode[K]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.len--
}
