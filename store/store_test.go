package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/viewstate/status"
)

type countingCollector struct {
	commands map[string]int
	skipped  map[string]int
	tracked  int
}

func newCountingCollector() *countingCollector {
	return &countingCollector{commands: map[string]int{}, skipped: map[string]int{}}
}

func (c *countingCollector) IncEvent(string)             {}
func (c *countingCollector) IncCommand(kind string)      { c.commands[kind]++ }
func (c *countingCollector) IncSkippedWrite(kind string) { c.skipped[kind]++ }
func (c *countingCollector) SetTracked(n int)            { c.tracked = n }
func (c *countingCollector) IncHotReload(string)         {}

func TestReduce(t *testing.T) {
	c := Reduce(Empty(), StartLoading("LOAD"))
	entry, ok := c.Get("LOAD")
	require.True(t, ok)
	require.Same(t, status.Loading(), entry.Status)

	c = Reduce(c, Error("Oops", "LOAD", "ADD"))
	require.Equal(t, []string{"LOAD", "ADD"}, c.IDs())
	for _, id := range []string{"LOAD", "ADD"} {
		entry, _ := c.Get(id)
		require.Equal(t, "Oops", entry.Status.Payload())
	}

	c = Reduce(c, Reset("LOAD", "ADD"))
	require.Equal(t, 0, c.Len())

	require.Same(t, c, Reduce(c, Command{}))
}

func TestCommandString(t *testing.T) {
	require.Equal(t, "start_loading(A)", StartLoading("A").String())
	require.Equal(t, "reset(A,B)", Reset("A", "B").String())
	require.Equal(t, "error(A,B)", Error(nil, "A", "B").String())
}

func TestStoreNotifiesOnlyOnChange(t *testing.T) {
	collector := newCountingCollector()
	s := New(WithTelemetry(collector))

	var calls int
	var last *Collection
	unsubscribe := s.Subscribe(func(prev, next *Collection) {
		require.NotSame(t, prev, next)
		calls++
		last = next
	})

	require.True(t, s.Apply(StartLoading("x")))
	require.False(t, s.Apply(StartLoading("x")))
	require.False(t, s.Apply(Reset("missing")))
	require.Equal(t, 1, calls)
	require.Same(t, s.Snapshot(), last)

	require.True(t, s.Apply(Error("e", "x")))
	require.False(t, s.Apply(Error("e", "x")))
	require.Equal(t, 2, calls)

	unsubscribe()
	unsubscribe()
	require.True(t, s.Apply(Reset("x")))
	require.Equal(t, 2, calls)

	require.Equal(t, map[string]int{"start_loading": 1, "error": 1, "reset": 1}, collector.commands)
	require.Equal(t, map[string]int{"start_loading": 1, "reset": 1, "error": 1}, collector.skipped)
	require.Equal(t, 0, collector.tracked)
}

func TestStoreAppliesBatchAsOneStep(t *testing.T) {
	s := New()
	require.True(t, s.Apply(StartLoading("LOAD")))

	var calls int
	s.Subscribe(func(prev, next *Collection) { calls++ })

	require.True(t, s.Apply(StartLoading("ADD"), Reset("LOAD")))
	require.Equal(t, 1, calls)
	require.Equal(t, []string{"ADD"}, s.Snapshot().IDs())

	require.False(t, s.Apply())
}

func TestStoreWithInitial(t *testing.T) {
	initial := UpsertOne(Entry{ID: "x", Status: status.Loading()}, Empty())
	s := New(WithInitial(initial))
	require.Same(t, initial, s.Snapshot())
}

func TestStoreListenersRunInSubscriptionOrder(t *testing.T) {
	s := New()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.Subscribe(func(*Collection, *Collection) { order = append(order, i) })
	}
	s.Subscribe(nil)

	s.Apply(StartLoading("x"))
	require.Equal(t, []int{0, 1, 2}, order)
}
