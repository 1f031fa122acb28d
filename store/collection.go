package store

import "github.com/timzifer/viewstate/status"

// Entry is the tracked status of one operation.
type Entry struct {
	ID     string
	Status *status.Value
}

// Collection is an immutable, normalized set of entries keyed by id. Writes
// return a new collection when, and only when, content changed; unaffected
// entries keep their original *Entry.
type Collection struct {
	entities map[string]*Entry
	ids      []string
}

// Empty returns a collection without entries.
func Empty() *Collection {
	return &Collection{entities: map[string]*Entry{}}
}

// Get returns the entry tracked for id.
func (c *Collection) Get(id string) (*Entry, bool) {
	if c == nil {
		return nil, false
	}
	entry, ok := c.entities[id]
	return entry, ok
}

// Len returns the number of tracked entries.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

// IDs returns the tracked ids in insertion order.
func (c *Collection) IDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// All returns the tracked entries in insertion order.
func (c *Collection) All() []*Entry {
	if c == nil {
		return nil
	}
	out := make([]*Entry, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.entities[id])
	}
	return out
}

// Entities returns a copy of the id to entry map.
func (c *Collection) Entities() map[string]*Entry {
	if c == nil {
		return map[string]*Entry{}
	}
	out := make(map[string]*Entry, len(c.entities))
	for id, entry := range c.entities {
		out[id] = entry
	}
	return out
}

// UpsertOne adds entry or replaces the existing one when its status differs.
// The same collection is returned when nothing changed.
func UpsertOne(entry Entry, c *Collection) *Collection {
	return UpsertMany([]Entry{entry}, c)
}

// UpsertMany applies all entries in one pass. A single new collection is
// produced if any entry changed, otherwise c is returned.
func UpsertMany(entries []Entry, c *Collection) *Collection {
	if c == nil {
		c = Empty()
	}
	var next *Collection
	for _, entry := range entries {
		current := c.entities
		if next != nil {
			current = next.entities
		}
		prev, ok := current[entry.ID]
		if ok && status.Equal(prev.Status, entry.Status) {
			continue
		}
		if next == nil {
			next = c.clone(len(entries))
		}
		stored := entry
		if !ok {
			next.ids = append(next.ids, entry.ID)
		}
		next.entities[entry.ID] = &stored
	}
	if next == nil {
		return c
	}
	return next
}

// RemoveOne drops the entry for id. The same collection is returned when id
// is not tracked.
func RemoveOne(id string, c *Collection) *Collection {
	return RemoveMany([]string{id}, c)
}

// RemoveMany drops all tracked ids in one pass. The same collection is
// returned when none of the ids were present.
func RemoveMany(ids []string, c *Collection) *Collection {
	if c == nil {
		return c
	}
	var removed map[string]struct{}
	for _, id := range ids {
		if _, ok := c.entities[id]; !ok {
			continue
		}
		if removed == nil {
			removed = make(map[string]struct{}, len(ids))
		}
		removed[id] = struct{}{}
	}
	if len(removed) == 0 {
		return c
	}
	next := &Collection{
		entities: make(map[string]*Entry, len(c.entities)-len(removed)),
		ids:      make([]string, 0, len(c.ids)-len(removed)),
	}
	for _, id := range c.ids {
		if _, drop := removed[id]; drop {
			continue
		}
		next.ids = append(next.ids, id)
		next.entities[id] = c.entities[id]
	}
	return next
}

func (c *Collection) clone(extra int) *Collection {
	next := &Collection{
		entities: make(map[string]*Entry, len(c.entities)+extra),
		ids:      make([]string, len(c.ids), len(c.ids)+extra),
	}
	copy(next.ids, c.ids)
	for id, entry := range c.entities {
		next.entities[id] = entry
	}
	return next
}
