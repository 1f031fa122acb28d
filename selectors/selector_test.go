package selectors

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/viewstate/status"
	"github.com/timzifer/viewstate/store"
)

func collection(entries ...store.Entry) *store.Collection {
	return store.UpsertMany(entries, store.Empty())
}

func TestStatusOfDefaultsToIdle(t *testing.T) {
	sel := StatusOf("missing")
	require.Same(t, status.Idle(), sel.Select(store.Empty()))
	require.Same(t, status.Idle(), sel.Select(nil))
}

func TestStatusOfReturnsSameReferenceForEqualError(t *testing.T) {
	first := collection(store.Entry{ID: "x", Status: status.Error("same")})
	second := collection(store.Entry{ID: "x", Status: status.Error("same")})
	require.NotSame(t, first, second)

	sel := StatusOf("x")
	a := sel.Select(first)
	b := sel.Select(second)

	require.Same(t, a, b)
}

func TestStatusOfChangesWithPayload(t *testing.T) {
	sel := StatusOf("update")
	errorOne := status.Error("Error message - 1")
	errorTwo := status.Error("Error message - 2")

	got := sel.Select(collection(store.Entry{ID: "update", Status: errorOne}))
	require.Same(t, errorOne, got)

	got = sel.Select(collection(store.Entry{ID: "update", Status: errorTwo}))
	require.Same(t, errorTwo, got)
}

func TestStatusOfIgnoresUnrelatedChanges(t *testing.T) {
	c := collection(store.Entry{ID: "x", Status: status.Error("e")})
	sel := StatusOf("x")
	first := sel.Select(c)

	c = store.UpsertOne(store.Entry{ID: "y", Status: status.Loading()}, c)
	c = store.UpsertOne(store.Entry{ID: "y", Status: status.Error("other")}, c)
	require.Same(t, first, sel.Select(c))

	c = store.RemoveOne("x", c)
	require.Same(t, status.Idle(), sel.Select(c))
}

func TestEntryForDefaultsAndMemoizes(t *testing.T) {
	sel := EntryFor("x")
	idle := sel.Select(store.Empty())
	require.Equal(t, "x", idle.ID)
	require.True(t, idle.Status.IsIdle())
	require.Same(t, idle, sel.Select(store.Empty()))

	c := collection(store.Entry{ID: "x", Status: status.Loading()})
	loading := sel.Select(c)
	require.True(t, loading.Status.IsLoading())

	again := collection(store.Entry{ID: "x", Status: status.Loading()})
	require.Same(t, loading, sel.Select(again))
}

func TestAggregateSelectors(t *testing.T) {
	c := collection(
		store.Entry{ID: "get additional data", Status: status.Loading()},
		store.Entry{ID: "save", Status: status.Error("nope")},
		store.Entry{ID: "done", Status: status.Loaded()},
	)

	require.True(t, IsAnyLoading("get data", "get additional data").Select(c))
	require.False(t, IsAnyLoading("get data", "save").Select(c))
	require.True(t, IsAnyError("save").Select(c))
	require.False(t, IsAnyError("done").Select(c))
	require.True(t, IsAnyLoaded("done").Select(c))
	require.True(t, IsAnyIdle("get data").Select(c))
	require.False(t, IsAnyIdle("save", "done").Select(c))
}

func TestAggregateSelectorsWithoutIDsAreFalse(t *testing.T) {
	c := collection(store.Entry{ID: "x", Status: status.Loading()})

	require.False(t, IsAnyLoading().Select(c))
	require.False(t, IsAnyError().Select(c))
	require.False(t, IsAnyLoaded().Select(c))
	require.False(t, IsAnyIdle().Select(c))
}

func TestAllAndAllIDs(t *testing.T) {
	c := collection(
		store.Entry{ID: "a", Status: status.Loading()},
		store.Entry{ID: "b", Status: status.Error("x")},
	)

	all := All()
	entries := all.Select(c)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].ID)

	c2 := store.UpsertOne(store.Entry{ID: "a", Status: status.Loading()}, c)
	require.Same(t, c, c2)

	ids := AllIDs()
	require.Equal(t, []string{"a", "b"}, ids.Select(c))

	c3 := store.RemoveOne("a", c)
	require.Equal(t, []string{"b"}, ids.Select(c3))
	require.Len(t, all.Select(c3), 1)
}

func TestSelectorWithoutComparatorOnlyCachesSameInput(t *testing.T) {
	calls := 0
	sel := New(func(c *store.Collection) int {
		calls++
		return c.Len()
	}, nil)
	c := store.Empty()

	sel.Select(c)
	sel.Select(c)
	require.Equal(t, 1, calls)

	sel.Select(store.Empty())
	require.Equal(t, 2, calls)
}

func TestDistinctOnlyFiresOnGenuineChange(t *testing.T) {
	s := store.New()
	sel := StatusOf("x")
	sel.Select(s.Snapshot())

	var seen []*status.Value
	s.Subscribe(Distinct(sel, func(v *status.Value) { seen = append(seen, v) }))

	s.Apply(store.StartLoading("y"))
	s.Apply(store.StartLoading("x"))
	s.Apply(store.Error("unrelated", "y"))
	s.Apply(store.Error("boom", "x"))
	s.Apply(store.Reset("y"))
	s.Apply(store.Reset("x"))

	require.Len(t, seen, 3)
	require.True(t, seen[0].IsLoading())
	require.Equal(t, "boom", seen[1].Payload())
	require.Same(t, status.Idle(), seen[2])
}
