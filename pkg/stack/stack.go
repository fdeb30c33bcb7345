// Package stack provides last-in-first-out stacks with two kinds of backing: a linked list whose head is the top
// of the stack, and a dynamic array whose last slot is the top of the stack. Both give O(1) push / peek / pop
// (amortised for the array).

package stack

import (
	"errors"
	"fmt"

	"github.com/nobletooth/twine/pkg/dlist"
	"github.com/nobletooth/twine/pkg/slist"
	"github.com/nobletooth/twine/pkg/utils"
)

// ErrEmptyStack is returned when popping from a stack without items.
var ErrEmptyStack = errors.New("stack is empty")

// Stack is the LIFO interface shared by every backing.
type Stack[T any] interface {
	Push(item T)
	Peek() (T, bool /*found*/) // Returns the top item without removing it.
	Pop() (T, error)           // Removes and returns the top item; fails with ErrEmptyStack.
	IsEmpty() bool
	Len() int
	String() string
}

// Backing selects the storage a stack is built on.
type Backing string

const (
	BackingDoubly Backing = "doubly" // dlist.List
	BackingSingly Backing = "singly" // slist.List
	BackingArray  Backing = "array"  // Go slice
)

// New builds a stack with the given backing and pushes `items` in order, so the last item ends on top.
func New[T comparable](backing Backing, items ...T) (Stack[T], error) {
	switch backing {
	case BackingDoubly:
		return NewLinked[T](dlist.New[T](), items...), nil
	case BackingSingly:
		return NewLinked[T](slist.New[T](), items...), nil
	case BackingArray:
		return NewArray(items...), nil
	default:
		return nil, fmt.Errorf("unknown stack backing '%s'", backing)
	}
}

// backingList is the part of a list API a linked stack relies on.
type backingList[T any] interface {
	Prepend(item T)
	GetAtIndex(index int) (T, error)
	Delete(item T) error
	IsEmpty() bool
	Len() int
}

var (
	_ backingList[int] = (*dlist.List[int])(nil)
	_ backingList[int] = (*slist.List[int])(nil)
)

// Linked is a stack whose top is the head of a linked list.
type Linked[T any] struct { // Implements Stack.
	list backingList[T]
}

var _ Stack[int] = (*Linked[int])(nil)

// NewLinked wraps the given list as a stack and pushes `items` on it.
func NewLinked[T any](list backingList[T], items ...T) *Linked[T] {
	s := &Linked[T]{list: list}
	for _, item := range items {
		s.Push(item)
	}
	return s
}

// IsEmpty reports whether the stack has no items.
func (s *Linked[T]) IsEmpty() bool {
	return s.list.IsEmpty()
}

// Len returns the number of items on the stack.
func (s *Linked[T]) Len() int {
	return s.list.Len()
}

// Push prepends the item; the list head is the top of the stack.
func (s *Linked[T]) Push(item T) {
	s.list.Prepend(item)
}

// Peek returns the list head without removing it.
func (s *Linked[T]) Peek() (T, bool /*found*/) {
	if s.IsEmpty() {
		return *new(T), false
	}
	item, err := s.list.GetAtIndex(0)
	if err != nil {
		utils.RaiseInvariant("stack", "non_empty_stack_without_head",
			"A non-empty linked stack has no head item.", "size", s.Len(), "error", err)
		return *new(T), false
	}
	return item, true
}

// Pop reads the head and deletes it. The head is the first occurrence of its own value, so the deletion never
// walks further than the head.
func (s *Linked[T]) Pop() (T, error) {
	item, found := s.Peek()
	if !found {
		return *new(T), ErrEmptyStack
	}
	if err := s.list.Delete(item); err != nil {
		utils.RaiseInvariant("stack", "head_item_not_deletable",
			"The head item of a linked stack could not be deleted.", "error", err)
		return *new(T), fmt.Errorf("failed to pop: %w", err)
	}
	return item, nil
}

// String renders the stack as "Stack(N items, top=X)".
func (s *Linked[T]) String() string {
	return format[T](s)
}

// Array is a stack whose top is the last slot of a dynamic array.
type Array[T any] struct { // Implements Stack.
	items []T
}

var _ Stack[int] = (*Array[int])(nil)

// NewArray returns an array backed stack holding `items`, the last one on top.
func NewArray[T any](items ...T) *Array[T] {
	s := &Array[T]{items: make([]T, 0, len(items))}
	for _, item := range items {
		s.Push(item)
	}
	return s
}

// IsEmpty reports whether the stack has no items.
func (s *Array[T]) IsEmpty() bool {
	return len(s.items) == 0
}

// Len returns the number of items on the stack.
func (s *Array[T]) Len() int {
	return len(s.items)
}

// Push appends to the array; amortised O(1) since growth doubles the capacity.
func (s *Array[T]) Push(item T) {
	s.items = append(s.items, item)
}

// Peek returns the last array slot without removing it.
func (s *Array[T]) Peek() (T, bool /*found*/) {
	if s.IsEmpty() {
		return *new(T), false
	}
	return s.items[len(s.items)-1], true
}

// Pop truncates the array by one slot; O(1).
func (s *Array[T]) Pop() (T, error) {
	if s.IsEmpty() {
		return *new(T), ErrEmptyStack
	}
	last := len(s.items) - 1
	item := s.items[last]
	s.items[last] = *new(T) // Drop the reference so the popped item can be collected.
	s.items = s.items[:last]
	return item, nil
}

// String renders the stack as "Stack(N items, top=X)".
func (s *Array[T]) String() string {
	return format[T](s)
}

// format renders a stack as "Stack(N items, top=X)".
func format[T any](s Stack[T]) string {
	top, found := s.Peek()
	if !found {
		return fmt.Sprintf("Stack(%d items, top=<nil>)", s.Len())
	}
	return fmt.Sprintf("Stack(%d items, top=%v)", s.Len(), top)
}
