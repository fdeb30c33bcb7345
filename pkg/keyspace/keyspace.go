// This module holds twine's named values (lists and stacks) and implements the external locking the data
// structures themselves don't have. Keys are distributed uniformly across shards; each shard has its own mutex, so
// goroutines working on keys of different shards don't block each other.

package keyspace

import (
	"errors"
	"flag"
	"fmt"
	"iter"
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/nobletooth/twine/pkg/dlist"
	"github.com/nobletooth/twine/pkg/stack"
	"github.com/nobletooth/twine/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	shardCountFlag = flag.Int("keyspace_shard_count", runtime.NumCPU(),
		"The number of independently locked shards the keyspace is split into.")
	stackBackingFlag = flag.String("stack_backing", string(stack.BackingDoubly),
		"The storage new stacks are built on: doubly/singly/array.")
	verifyListsFlag = flag.Bool("verify_list_invariants", false,
		"Walk every list after each mutation and raise an invariant if its links are broken; O(n) per command.")

	keysMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "twine",
		Name:      "keys",
		Help:      "The number of keys currently held, per value kind.",
	}, []string{"kind" /* list | stack */})
)

var (
	ErrWrongType   = errors.New("WRONGTYPE operation against a key holding the wrong kind of value")
	ErrKeyNotFound = errors.New("key not found")
)

// Kind is the kind of value a key holds.
type Kind string

const (
	KindNone  Kind = "none"
	KindList  Kind = "list"
	KindStack Kind = "stack"
)

// entry is a keyspace value; exactly one of its fields is set.
type entry struct {
	list  *dlist.List[string]
	stack stack.Stack[string]
}

func (e *entry) kind() Kind {
	switch {
	case e.list != nil:
		return KindList
	case e.stack != nil:
		return KindStack
	default:
		return KindNone
	}
}

func (e *entry) isEmpty() bool {
	switch e.kind() {
	case KindList:
		return e.list.IsEmpty()
	case KindStack:
		return e.stack.IsEmpty()
	default:
		return true
	}
}

// shard is one independently locked part of the keyspace.
type shard struct {
	mux     sync.RWMutex
	entries map[string]*entry
}

// Keyspace maps names to lists and stacks. It is safe for concurrent use.
type Keyspace struct {
	shards       []*shard
	stackBacking stack.Backing
	verifyLists  bool
}

// New builds a keyspace configured by flags.
func New() (*Keyspace, error) {
	return NewWith(*shardCountFlag, stack.Backing(*stackBackingFlag), *verifyListsFlag)
}

// NewWith builds a keyspace with `shardCount` shards whose stacks use `stackBacking`.
func NewWith(shardCount int, stackBacking stack.Backing, verifyLists bool) (*Keyspace, error) {
	// Validate the backing once, up front, instead of on the first stack creation.
	if _, err := stack.New[string](stackBacking); err != nil {
		return nil, fmt.Errorf("invalid --stack_backing: %w", err)
	}
	// Ensure there is at least one shard.
	if shardCount <= 0 {
		utils.RaiseInvariant("keyspace", "non_positive_shard_count",
			"Invalid shard count has been given to the keyspace.", "shardCount", shardCount)
		shardCount = 1
	}
	ks := &Keyspace{shards: make([]*shard, shardCount), stackBacking: stackBacking, verifyLists: verifyLists}
	for i := range shardCount {
		ks.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return ks, nil
}

// getShard hashes the key name to pick its shard.
func (ks *Keyspace) getShard(name string) *shard {
	return ks.shards[xxhash.Sum64String(name)%uint64(len(ks.shards))]
}

// ViewList runs `fn` on the list stored at `name` under a read lock. A missing key is seen as an empty list.
// `fn` must not mutate the list.
func (ks *Keyspace) ViewList(name string, fn func(list *dlist.List[string]) error) error {
	s := ks.getShard(name)
	s.mux.RLock()
	defer s.mux.RUnlock()

	e, exists := s.entries[name]
	if !exists {
		return fn(dlist.New[string]())
	}
	if e.kind() != KindList {
		return ErrWrongType
	}
	return fn(e.list)
}

// UpdateList runs `fn` on the list stored at `name` under a write lock. If `create` is set a missing key gets a new
// empty list, otherwise ErrKeyNotFound is returned. Lists left empty by `fn` are removed from the keyspace.
func (ks *Keyspace) UpdateList(name string, create bool, fn func(list *dlist.List[string]) error) error {
	s := ks.getShard(name)
	s.mux.Lock()
	defer s.mux.Unlock()

	e, exists := s.entries[name]
	if exists && e.kind() != KindList {
		return ErrWrongType
	}
	if !exists {
		if !create {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
		}
		e = &entry{list: dlist.New[string]()}
	}
	err := fn(e.list)
	if ks.verifyLists {
		if validationErr := e.list.Validate(); validationErr != nil {
			utils.RaiseInvariant("keyspace", "broken_list_links",
				"A list command left the list with broken links.", "key", name, "error", validationErr)
		}
	}
	ks.store(s, name, e, exists)
	return err
}

// ViewStack runs `fn` on the stack stored at `name` under a read lock. A missing key is seen as an empty stack.
func (ks *Keyspace) ViewStack(name string, fn func(s stack.Stack[string]) error) error {
	s := ks.getShard(name)
	s.mux.RLock()
	defer s.mux.RUnlock()

	e, exists := s.entries[name]
	if !exists {
		return fn(stack.NewArray[string]())
	}
	if e.kind() != KindStack {
		return ErrWrongType
	}
	return fn(e.stack)
}

// UpdateStack is the stack counterpart of UpdateList.
func (ks *Keyspace) UpdateStack(name string, create bool, fn func(s stack.Stack[string]) error) error {
	s := ks.getShard(name)
	s.mux.Lock()
	defer s.mux.Unlock()

	e, exists := s.entries[name]
	if exists && e.kind() != KindStack {
		return ErrWrongType
	}
	if !exists {
		if !create {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
		}
		newStack, err := stack.New[string](ks.stackBacking)
		if err != nil { // The backing has been validated in NewWith.
			utils.RaiseInvariant("keyspace", "invalid_stack_backing",
				"Failed to build a stack with a validated backing.", "backing", ks.stackBacking, "error", err)
			return err
		}
		e = &entry{stack: newStack}
	}
	err := fn(e.stack)
	ks.store(s, name, e, exists)
	return err
}

// store keeps non-empty entries and drops empty ones, keeping the keys metric in sync. Must hold the shard lock.
func (ks *Keyspace) store(s *shard, name string, e *entry, existed bool) {
	switch {
	case e.isEmpty() && existed:
		delete(s.entries, name)
		keysMetric.WithLabelValues(string(e.kind())).Dec()
	case !e.isEmpty() && !existed:
		s.entries[name] = e
		keysMetric.WithLabelValues(string(e.kind())).Inc()
	}
}

// Type returns the kind of value held at `name`.
func (ks *Keyspace) Type(name string) Kind {
	s := ks.getShard(name)
	s.mux.RLock()
	defer s.mux.RUnlock()
	if e, exists := s.entries[name]; exists {
		return e.kind()
	}
	return KindNone
}

// Exists reports whether `name` holds any value.
func (ks *Keyspace) Exists(name string) bool {
	return ks.Type(name) != KindNone
}

// Delete removes the given keys and returns how many of them existed.
func (ks *Keyspace) Delete(names ...string) int {
	deleted := 0
	for _, name := range names {
		s := ks.getShard(name)
		s.mux.Lock()
		if e, exists := s.entries[name]; exists {
			delete(s.entries, name)
			keysMetric.WithLabelValues(string(e.kind())).Dec()
			deleted++
		}
		s.mux.Unlock()
	}
	return deleted
}

// Names returns a sequence over all key names. Each shard is snapshotted when the sequence reaches it, so keys
// added or removed concurrently may or may not show up.
func (ks *Keyspace) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, s := range ks.shards {
			s.mux.RLock()
			names := make([]string, 0, len(s.entries))
			for name := range s.entries {
				names = append(names, name)
			}
			s.mux.RUnlock()

			for _, name := range names {
				if !yield(name) {
					return
				}
			}
		}
	}
}

// Len returns the total number of keys.
func (ks *Keyspace) Len() int {
	total := 0
	for _, s := range ks.shards {
		s.mux.RLock()
		total += len(s.entries)
		s.mux.RUnlock()
	}
	return total
}

// Flush removes every key.
func (ks *Keyspace) Flush() {
	for _, s := range ks.shards {
		s.mux.Lock()
		for _, e := range s.entries {
			keysMetric.WithLabelValues(string(e.kind())).Dec()
		}
		s.entries = make(map[string]*entry)
		s.mux.Unlock()
	}
}
