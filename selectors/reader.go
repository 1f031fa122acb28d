package selectors

import (
	"sync"

	"github.com/timzifer/viewstate/status"
	"github.com/timzifer/viewstate/store"
)

// Source provides the current collection snapshot.
type Source interface {
	Snapshot() *store.Collection
}

// Reader answers status queries against a source. Per-id selectors are
// created lazily and reused, so repeated reads of an unchanged status return
// the same *status.Value.
type Reader struct {
	source Source

	mu       sync.Mutex
	statuses map[string]*Selector[*status.Value]
	entries  map[string]*Selector[*store.Entry]
	all      *Selector[[]*store.Entry]
	allIDs   *Selector[[]string]
}

// NewReader binds a reader to source.
func NewReader(source Source) *Reader {
	return &Reader{
		source:   source,
		statuses: make(map[string]*Selector[*status.Value]),
		entries:  make(map[string]*Selector[*store.Entry]),
		all:      All(),
		allIDs:   AllIDs(),
	}
}

// StatusOf returns the status of id, idle when untracked.
func (r *Reader) StatusOf(id string) *status.Value {
	r.mu.Lock()
	sel, ok := r.statuses[id]
	if !ok {
		sel = StatusOf(id)
		r.statuses[id] = sel
	}
	r.mu.Unlock()
	return sel.Select(r.source.Snapshot())
}

// EntryFor returns the entry of id, an idle entry when untracked.
func (r *Reader) EntryFor(id string) *store.Entry {
	r.mu.Lock()
	sel, ok := r.entries[id]
	if !ok {
		sel = EntryFor(id)
		r.entries[id] = sel
	}
	r.mu.Unlock()
	return sel.Select(r.source.Snapshot())
}

// IsAnyLoading reports whether any of ids is loading.
func (r *Reader) IsAnyLoading(ids ...string) bool {
	return r.anyWithKind(status.KindLoading, ids)
}

// IsAnyError reports whether any of ids failed.
func (r *Reader) IsAnyError(ids ...string) bool {
	return r.anyWithKind(status.KindError, ids)
}

// IsAnyLoaded reports whether any of ids is loaded.
func (r *Reader) IsAnyLoaded(ids ...string) bool {
	return r.anyWithKind(status.KindLoaded, ids)
}

// IsAnyIdle reports whether any of ids is idle.
func (r *Reader) IsAnyIdle(ids ...string) bool {
	return r.anyWithKind(status.KindIdle, ids)
}

func (r *Reader) anyWithKind(kind status.Kind, ids []string) bool {
	return hasKind(r.source.Snapshot(), kind, ids)
}

// All returns the tracked entries.
func (r *Reader) All() []*store.Entry {
	return r.all.Select(r.source.Snapshot())
}

// AllIDs returns the tracked ids.
func (r *Reader) AllIDs() []string {
	return r.allIDs.Select(r.source.Snapshot())
}

// Forget drops the cached selectors of ids.
func (r *Reader) Forget(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.statuses, id)
		delete(r.entries, id)
	}
}
