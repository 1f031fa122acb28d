package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/viewstate/status"
)

func TestUpsertOneIsIdempotent(t *testing.T) {
	entry := Entry{ID: "x", Status: status.Loading()}
	once := UpsertOne(entry, Empty())
	twice := UpsertOne(entry, once)

	require.Same(t, once, twice)
}

func TestUpsertOneEqualStatusReturnsSameCollection(t *testing.T) {
	c := UpsertOne(Entry{ID: "x", Status: status.Loading()}, Empty())

	require.Same(t, c, UpsertOne(Entry{ID: "x", Status: status.Loading()}, c))

	withError := UpsertOne(Entry{ID: "x", Status: status.Error("same")}, c)
	require.Same(t, withError, UpsertOne(Entry{ID: "x", Status: status.Error("same")}, withError))
}

func TestUpsertOneDifferentPayloadReplaces(t *testing.T) {
	c := UpsertOne(Entry{ID: "x", Status: status.Error("A")}, Empty())
	next := UpsertOne(Entry{ID: "x", Status: status.Error("B")}, c)

	require.NotSame(t, c, next)
	entry, ok := next.Get("x")
	require.True(t, ok)
	require.Equal(t, "B", entry.Status.Payload())

	prev, _ := c.Get("x")
	require.Equal(t, "A", prev.Status.Payload(), "previous collection must not be mutated")
}

func TestUpsertManySharesUntouchedEntries(t *testing.T) {
	c := UpsertMany([]Entry{
		{ID: "a", Status: status.Loading()},
		{ID: "b", Status: status.Loading()},
	}, Empty())
	a, _ := c.Get("a")

	next := UpsertMany([]Entry{
		{ID: "a", Status: status.Loading()},
		{ID: "b", Status: status.Error("boom")},
		{ID: "c", Status: status.Loading()},
	}, c)

	require.NotSame(t, c, next)
	nextA, _ := next.Get("a")
	require.Same(t, a, nextA)
	require.Equal(t, []string{"a", "b", "c"}, next.IDs())
	require.Equal(t, 2, c.Len())
}

func TestUpsertManyWithoutChangesReturnsSameCollection(t *testing.T) {
	c := UpsertMany([]Entry{
		{ID: "a", Status: status.Loading()},
		{ID: "b", Status: status.Error("x")},
	}, Empty())

	require.Same(t, c, UpsertMany([]Entry{
		{ID: "a", Status: status.Loading()},
		{ID: "b", Status: status.Error("x")},
	}, c))
	require.Same(t, c, UpsertMany(nil, c))
}

func TestUpsertManyRepeatedIDKeepsLastAndSingleOrderSlot(t *testing.T) {
	c := UpsertMany([]Entry{
		{ID: "a", Status: status.Loading()},
		{ID: "a", Status: status.Error("late")},
	}, Empty())

	require.Equal(t, []string{"a"}, c.IDs())
	entry, _ := c.Get("a")
	require.Equal(t, "late", entry.Status.Payload())
}

func TestUpsertKeepsPositionOfExistingEntry(t *testing.T) {
	c := UpsertMany([]Entry{
		{ID: "a", Status: status.Loading()},
		{ID: "b", Status: status.Loading()},
	}, Empty())
	next := UpsertOne(Entry{ID: "a", Status: status.Error("x")}, c)

	require.Equal(t, []string{"a", "b"}, next.IDs())
}

func TestRemoveOneMissingReturnsSameCollection(t *testing.T) {
	c := UpsertOne(Entry{ID: "x", Status: status.Loading()}, Empty())
	require.Same(t, c, RemoveOne("missing", c))

	empty := Empty()
	require.Same(t, empty, RemoveOne("missing", empty))
}

func TestRemoveManyDropsPresentIDs(t *testing.T) {
	c := UpsertMany([]Entry{
		{ID: "a", Status: status.Loading()},
		{ID: "b", Status: status.Loading()},
		{ID: "c", Status: status.Loading()},
	}, Empty())
	c2, _ := c.Get("c")

	next := RemoveMany([]string{"a", "missing", "b"}, c)

	require.NotSame(t, c, next)
	require.Equal(t, []string{"c"}, next.IDs())
	nextC, _ := next.Get("c")
	require.Same(t, c2, nextC)
	require.Equal(t, 3, c.Len())

	require.Same(t, next, RemoveMany([]string{"a", "b"}, next))
}

func TestNilCollection(t *testing.T) {
	var c *Collection
	require.Equal(t, 0, c.Len())
	require.Empty(t, c.IDs())
	_, ok := c.Get("x")
	require.False(t, ok)
	require.Nil(t, RemoveOne("x", c))

	created := UpsertOne(Entry{ID: "x", Status: status.Loading()}, c)
	require.Equal(t, 1, created.Len())
}

func TestAccessorsReturnCopies(t *testing.T) {
	c := UpsertOne(Entry{ID: "x", Status: status.Loading()}, Empty())

	ids := c.IDs()
	ids[0] = "mutated"
	entities := c.Entities()
	delete(entities, "x")

	require.Equal(t, []string{"x"}, c.IDs())
	_, ok := c.Get("x")
	require.True(t, ok)
	require.Len(t, c.All(), 1)
}
