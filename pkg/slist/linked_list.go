// Package slist implements a generic singly linked list. It is a lighter sibling of dlist.List that only links
// forward, so removals have to walk from the head to find the predecessor.

package slist

import (
	"fmt"
	"iter"

	"github.com/nobletooth/twine/pkg/dlist"
)

// Both lists fail with the same sentinels so callers can switch between them freely.
var (
	ErrIndexOutOfRange = dlist.ErrIndexOutOfRange
	ErrItemNotFound    = dlist.ErrItemNotFound
)

type node[T any] struct {
	next  *node[T]
	value T
}

// List is a singly linked list with head and tail pointers. The zero value is an empty list ready to use.
type List[T comparable] struct {
	head *node[T]
	tail *node[T] // Allows O(1) Append.
	size int
}

// New returns a list holding the given items in order.
func New[T comparable](items ...T) *List[T] {
	l := new(List[T])
	for _, item := range items {
		l.Append(item)
	}
	return l
}

// Len returns the number of items in the list.
func (l *List[T]) Len() int {
	return l.size
}

// IsEmpty reports whether the list has no items.
func (l *List[T]) IsEmpty() bool {
	return l.head == nil
}

// Items returns all values from head to tail.
func (l *List[T]) Items() []T {
	items := make([]T, 0, l.size)
	for n := l.head; n != nil; n = n.next {
		items = append(items, n.value)
	}
	return items
}

// All returns a sequence over the values from head to tail.
func (l *List[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for n := l.head; n != nil; n = n.next {
			if !yield(n.value) {
				return
			}
		}
	}
}

// GetAtIndex returns the value at the 0-based `index`.
func (l *List[T]) GetAtIndex(index int) (T, error) {
	if index < 0 || index >= l.size {
		return *new(T), fmt.Errorf("%w: index %d, size %d", ErrIndexOutOfRange, index, l.size)
	}
	n := l.head
	for range index {
		n = n.next
	}
	return n.value, nil
}

// Prepend adds `item` before the head; O(1).
func (l *List[T]) Prepend(item T) {
	l.head = &node[T]{value: item, next: l.head}
	if l.tail == nil { // List was empty.
		l.tail = l.head
	}
	l.size++
}

// Append adds `item` after the tail; O(1).
func (l *List[T]) Append(item T) {
	n := &node[T]{value: item}
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.size++
}

// Delete removes the first node whose value equals `item`. Deleting the head is O(1).
func (l *List[T]) Delete(item T) error {
	var prev *node[T]
	for n := l.head; n != nil; prev, n = n, n.next {
		if n.value != item {
			continue
		}
		if prev == nil {
			l.head = n.next
		} else {
			prev.next = n.next
		}
		if n == l.tail {
			l.tail = prev
		}
		n.next = nil
		l.size--
		return nil
	}
	return fmt.Errorf("%w: %v", ErrItemNotFound, item)
}
