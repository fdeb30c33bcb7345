// Package dlist implements a generic doubly linked list. Nodes are linked in both directions, so the list can be
// walked from either end and any node can be unlinked in constant time once it has been found.
//
// A List is not safe for concurrent use; callers sharing a list across goroutines must guard it with their own lock.

package dlist

import (
	"errors"
	"fmt"
	"iter"
)

var (
	// ErrIndexOutOfRange is returned by index based accessors when the index is outside the valid range.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrItemNotFound is returned by equality based mutators when no stored value equals the target.
	ErrItemNotFound = errors.New("item not found")
)

// Node represents a node in the doubly linked list.
type Node[T any] struct {
	next  *Node[T]
	prev  *Node[T]
	Value T
}

// Next returns the next node in the list.
func (n *Node[T]) Next() *Node[T] {
	return n.next
}

// Prev returns the previous node in the list.
func (n *Node[T]) Prev() *Node[T] {
	return n.prev
}

// List represents a doubly linked list. The zero value is an empty list ready to use.
type List[T comparable] struct {
	head *Node[T]
	tail *Node[T]
	size int // Kept in sync on every insertion / removal; never recomputed by walking.
}

// New returns a list holding the given items in order.
func New[T comparable](items ...T) *List[T] {
	l := new(List[T])
	for _, item := range items {
		l.Append(item)
	}
	return l
}

// Len returns the number of elements in the list.
func (l *List[T]) Len() int {
	return l.size
}

// IsEmpty reports whether the list has no elements.
func (l *List[T]) IsEmpty() bool {
	return l.size == 0
}

// Front returns the first node of the list or nil if the list is empty.
func (l *List[T]) Front() *Node[T] {
	return l.head
}

// Back returns the last node of the list or nil if the list is empty.
func (l *List[T]) Back() *Node[T] {
	return l.tail
}

// Items returns all values from head to tail. An empty list yields an empty, non-nil slice.
func (l *List[T]) Items() []T {
	items := make([]T, 0, l.size)
	for node := l.head; node != nil; node = node.next {
		items = append(items, node.Value)
	}
	return items
}

// nodeAt returns the node at position `index`, walking from whichever end is nearer.
// Assumes 0 <= index < size.
func (l *List[T]) nodeAt(index int) *Node[T] {
	if index < l.size/2 {
		node := l.head
		for range index {
			node = node.next
		}
		return node
	}
	node := l.tail
	for range l.size - 1 - index {
		node = node.prev
	}
	return node
}

// GetAtIndex returns the value at the 0-based `index` counted from the head.
func (l *List[T]) GetAtIndex(index int) (T, error) {
	if index < 0 || index >= l.size {
		return *new(T), fmt.Errorf("%w: index %d, size %d", ErrIndexOutOfRange, index, l.size)
	}
	return l.nodeAt(index).Value, nil
}

// InsertAtIndex inserts `item` so that it becomes the element at `index`, shifting the following elements.
// Inserting at index == Len() appends the item.
func (l *List[T]) InsertAtIndex(index int, item T) error {
	if index < 0 || index > l.size {
		return fmt.Errorf("%w: index %d, size %d", ErrIndexOutOfRange, index, l.size)
	}
	switch index {
	case 0:
		l.Prepend(item)
	case l.size:
		l.Append(item)
	default:
		// Splice the new node right before the node currently at `index`; both neighbors exist here.
		next := l.nodeAt(index)
		n := &Node[T]{Value: item, prev: next.prev, next: next}
		next.prev.next = n
		next.prev = n
		l.size++
	}
	return nil
}

// Prepend adds a new value to the front of the list.
func (l *List[T]) Prepend(item T) {
	n := &Node[T]{Value: item, next: l.head}
	if l.head != nil {
		l.head.prev = n
	} else { // List was empty.
		l.tail = n
	}
	l.head = n
	l.size++
}

// Append adds a new value to the back of the list.
func (l *List[T]) Append(item T) {
	n := &Node[T]{Value: item, prev: l.tail}
	if l.tail != nil {
		l.tail.next = n
	} else {
		// List was empty.
		l.head = n
	}
	l.tail = n
	l.size++
}

// Find returns the first value, from head to tail, for which `match` holds. The predicate is not called
// for any value after the first match.
func (l *List[T]) Find(match func(T) bool) (T, bool /*found*/) {
	for node := l.head; node != nil; node = node.next {
		if match(node.Value) {
			return node.Value, true
		}
	}
	return *new(T), false
}

// findNode returns the first node holding a value equal to `item`, or nil.
func (l *List[T]) findNode(item T) *Node[T] {
	for node := l.head; node != nil; node = node.next {
		if node.Value == item {
			return node
		}
	}
	return nil
}

// Replace swaps the value of the first node equal to `old` with `replacement`. The node keeps its position and links.
func (l *List[T]) Replace(old, replacement T) error {
	node := l.findNode(old)
	if node == nil {
		return fmt.Errorf("%w: %v", ErrItemNotFound, old)
	}
	node.Value = replacement
	return nil
}

// Delete removes the first node whose value equals `item`. Later duplicates are left untouched.
func (l *List[T]) Delete(item T) error {
	node := l.findNode(item)
	if node == nil {
		return fmt.Errorf("%w: %v", ErrItemNotFound, item)
	}
	l.remove(node)
	return nil
}

// DeleteN removes up to `limit` nodes equal to `item` in one walk from the head; a non-positive `limit` removes all
// of them. Returns the number of removed nodes.
func (l *List[T]) DeleteN(item T, limit int) int {
	deleted := 0
	for node := l.head; node != nil && (limit <= 0 || deleted < limit); {
		next := node.next // remove clears the links.
		if node.Value == item {
			l.remove(node)
			deleted++
		}
		node = next
	}
	return deleted
}

// remove unlinks `n` from the list.
func (l *List[T]) remove(n *Node[T]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		// Node is the head.
		l.head = n.next
	}

	if n.next != nil {
		n.next.prev = n.prev
	} else {
		// Node is the tail.
		l.tail = n.prev
	}

	// Clean up the removed node's pointers.
	n.next = nil
	n.prev = nil

	l.size--
}

// All returns a sequence over the values from head to tail. Each call starts a fresh traversal of the current
// list. Mutating the list while the sequence is being consumed is undefined behavior.
func (l *List[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for node := l.head; node != nil; node = node.next {
			if !yield(node.Value) {
				return
			}
		}
	}
}

// Backward returns a sequence over the values from tail to head. Same restrictions as All apply.
func (l *List[T]) Backward() iter.Seq[T] {
	return func(yield func(T) bool) {
		for node := l.tail; node != nil; node = node.prev {
			if !yield(node.Value) {
				return
			}
		}
	}
}

// Validate walks the list in both directions and returns an error describing the first broken link or size
// mismatch. A nil error means head, tail, size and every prev / next pair agree with each other.
func (l *List[T]) Validate() error {
	if (l.size == 0) != (l.head == nil) || (l.size == 0) != (l.tail == nil) {
		return fmt.Errorf("size %d disagrees with head (nil=%t) / tail (nil=%t)", l.size, l.head == nil,
			l.tail == nil)
	}
	if l.size == 0 {
		return nil
	}
	if l.head.prev != nil {
		return errors.New("head has a previous node")
	}
	if l.tail.next != nil {
		return errors.New("tail has a next node")
	}

	// Forward walk.
	steps := 0
	var last *Node[T]
	for node := l.head; node != nil; node = node.next {
		if node.next != nil && node.next.prev != node {
			return fmt.Errorf("node at index %d is not the previous node of its successor", steps)
		}
		if steps++; steps > l.size {
			return fmt.Errorf("forward walk exceeded size %d", l.size)
		}
		last = node
	}
	if steps != l.size || last != l.tail {
		return fmt.Errorf("forward walk took %d steps and ended away from tail; size %d", steps, l.size)
	}

	// Backward walk.
	steps = 0
	for node := l.tail; node != nil; node = node.prev {
		if steps++; steps > l.size {
			return fmt.Errorf("backward walk exceeded size %d", l.size)
		}
		last = node
	}
	if steps != l.size || last != l.head {
		return fmt.Errorf("backward walk took %d steps and ended away from head; size %d", steps, l.size)
	}
	return nil
}
