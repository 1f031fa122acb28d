package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/timzifer/viewstate/telemetry"
)

// Listener observes collection replacements. It is only invoked when the
// collection reference changed.
type Listener func(prev, next *Collection)

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger for command tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger.With().Str("component", "viewstate_store").Logger()
	}
}

// WithTelemetry attaches a telemetry collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(s *Store) {
		if collector == nil {
			collector = telemetry.Noop()
		}
		s.telemetry = collector
	}
}

// WithInitial seeds the store with an existing collection.
func WithInitial(c *Collection) Option {
	return func(s *Store) {
		if c != nil {
			s.current.Store(c)
		}
	}
}

// Store holds the current collection and is the single write path for it.
// Readers receive immutable snapshots; Apply serializes writers.
type Store struct {
	writeMu sync.Mutex
	current atomic.Pointer[Collection]

	listenerMu sync.RWMutex
	listeners  map[uint64]Listener
	nextID     uint64

	logger    zerolog.Logger
	telemetry telemetry.Collector
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		listeners: make(map[uint64]Listener),
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	s.current.Store(Empty())
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Snapshot returns the current collection.
func (s *Store) Snapshot() *Collection {
	return s.current.Load()
}

// Apply reduces the commands in order and publishes the result as one step.
// Listeners run synchronously, after the new snapshot is visible, and must
// not call Apply themselves. It reports whether the collection changed.
func (s *Store) Apply(cmds ...Command) bool {
	if len(cmds) == 0 {
		return false
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.current.Load()
	next := prev
	for _, cmd := range cmds {
		reduced := Reduce(next, cmd)
		kind := cmd.Kind.String()
		if reduced == next {
			s.telemetry.IncSkippedWrite(kind)
			s.logger.Debug().Str("command", cmd.String()).Msg("view state unchanged")
			continue
		}
		s.telemetry.IncCommand(kind)
		s.logger.Debug().Str("command", cmd.String()).Int("tracked", reduced.Len()).Msg("view state updated")
		next = reduced
	}
	if next == prev {
		return false
	}
	s.current.Store(next)
	s.telemetry.SetTracked(next.Len())
	for _, listener := range s.snapshotListeners() {
		listener(prev, next)
	}
	return true
}

// Subscribe registers a listener and returns a function removing it.
func (s *Store) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenerMu.Lock()
			delete(s.listeners, id)
			s.listenerMu.Unlock()
		})
	}
}

func (s *Store) snapshotListeners() []Listener {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}
