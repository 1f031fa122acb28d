// Package selectors exposes memoized reads over view state collections.
//
// A Selector remembers the last collection it saw and the value it produced.
// Selecting against the same collection returns the cached value; selecting
// against a different collection recomputes, but hands back the cached value
// again when the new result is equal under the selector's comparator. Status
// selectors therefore keep returning the same *status.Value until the status
// of their id really changes.
package selectors

import (
	"sync"

	"github.com/timzifer/viewstate/status"
	"github.com/timzifer/viewstate/store"
)

// Selector is a memoized projection of a collection.
type Selector[T any] struct {
	mu      sync.Mutex
	project func(*store.Collection) T
	equal   func(a, b T) bool

	primed    bool
	lastInput *store.Collection
	last      T
}

// New builds a selector. A nil equal function never treats results as equal,
// so only identical input collections hit the cache.
func New[T any](project func(*store.Collection) T, equal func(a, b T) bool) *Selector[T] {
	if equal == nil {
		equal = func(T, T) bool { return false }
	}
	return &Selector[T]{project: project, equal: equal}
}

// Select returns the projection of c.
func (s *Selector[T]) Select(c *store.Collection) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primed && s.lastInput == c {
		return s.last
	}
	next := s.project(c)
	s.lastInput = c
	if s.primed && s.equal(s.last, next) {
		return s.last
	}
	s.last = next
	s.primed = true
	return next
}

// Equal reports whether two results are equal under the selector's
// comparator.
func (s *Selector[T]) Equal(a, b T) bool {
	return s.equal(a, b)
}

// StatusOf selects the status of id, defaulting to idle.
func StatusOf(id string) *Selector[*status.Value] {
	return New(func(c *store.Collection) *status.Value {
		if entry, ok := c.Get(id); ok && entry.Status != nil {
			return entry.Status
		}
		return status.Idle()
	}, status.Equal)
}

// EntryFor selects the entry of id, defaulting to an idle entry.
func EntryFor(id string) *Selector[*store.Entry] {
	return New(func(c *store.Collection) *store.Entry {
		if entry, ok := c.Get(id); ok {
			return entry
		}
		return &store.Entry{ID: id, Status: status.Idle()}
	}, func(a, b *store.Entry) bool {
		return a.ID == b.ID && status.Equal(a.Status, b.Status)
	})
}

func anyWithKind(kind status.Kind, ids []string) *Selector[bool] {
	ids = append([]string(nil), ids...)
	return New(func(c *store.Collection) bool {
		return hasKind(c, kind, ids)
	}, func(a, b bool) bool { return a == b })
}

func hasKind(c *store.Collection, kind status.Kind, ids []string) bool {
	for _, id := range ids {
		current := status.KindIdle
		if entry, ok := c.Get(id); ok {
			current = entry.Status.Kind()
		}
		if current == kind {
			return true
		}
	}
	return false
}

// IsAnyLoading selects whether any of ids is loading. No ids means false.
func IsAnyLoading(ids ...string) *Selector[bool] { return anyWithKind(status.KindLoading, ids) }

// IsAnyError selects whether any of ids failed. No ids means false.
func IsAnyError(ids ...string) *Selector[bool] { return anyWithKind(status.KindError, ids) }

// IsAnyLoaded selects whether any of ids is loaded. No ids means false.
func IsAnyLoaded(ids ...string) *Selector[bool] { return anyWithKind(status.KindLoaded, ids) }

// IsAnyIdle selects whether any of ids is idle. Untracked ids are idle. No
// ids means false.
func IsAnyIdle(ids ...string) *Selector[bool] { return anyWithKind(status.KindIdle, ids) }

// All selects every tracked entry in collection order.
func All() *Selector[[]*store.Entry] {
	return New(func(c *store.Collection) []*store.Entry {
		return c.All()
	}, equalEntries)
}

// AllIDs selects every tracked id in collection order.
func AllIDs() *Selector[[]string] {
	return New(func(c *store.Collection) []string {
		return c.IDs()
	}, func(a, b []string) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	})
}

func equalEntries(a, b []*store.Entry) bool {
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

// Distinct returns a store listener that calls fn with the selected value
// whenever it changed under the selector's comparator. The value for the
// collection current at subscription time should be primed with Select.
func Distinct[T any](sel *Selector[T], fn func(T)) store.Listener {
	return func(_, next *store.Collection) {
		sel.mu.Lock()
		primed, before := sel.primed, sel.last
		sel.mu.Unlock()

		after := sel.Select(next)
		if primed && sel.Equal(before, after) {
			return
		}
		fn(after)
	}
}
