package annotations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCommentThenCommentsFor(t *testing.T) {
	store, err := Store{}.SetComment("alice", 42, "good answer")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "good answer"}, store.CommentsFor(42))
	assert.Empty(t, store.CommentsFor(41))
}

func TestCommentsAreIndependentPerUser(t *testing.T) {
	store, err := Store{}.SetComment("alice", 7, "a")
	require.NoError(t, err)
	store, err = store.SetComment("bob", 7, "b")
	require.NoError(t, err)
	store, err = store.MarkViewed("bob", 7)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"alice": "a", "bob": "b"}, store.CommentsFor(7))
	assert.True(t, store.IsViewed("bob", 7))
	assert.False(t, store.IsViewed("alice", 7))
}

func TestMarkViewedIdempotent(t *testing.T) {
	once, err := Store{}.MarkViewed("alice", 3)
	require.NoError(t, err)
	twice, err := once.MarkViewed("alice", 3)
	require.NoError(t, err)
	assert.True(t, once.Equal(twice))
	assert.Equal(t, uint64(1), twice.Viewed("alice").GetCardinality())
}

func TestOperationsDoNotMutateInput(t *testing.T) {
	base, err := Store{}.SetComment("alice", 1, "first")
	require.NoError(t, err)

	next, err := base.SetComment("alice", 1, "second")
	require.NoError(t, err)
	next, err = next.MarkViewed("alice", 1)
	require.NoError(t, err)

	assert.Equal(t, "first", base.Comment("alice", 1))
	assert.False(t, base.IsViewed("alice", 1))
	assert.Equal(t, "second", next.Comment("alice", 1))
	assert.True(t, next.IsViewed("alice", 1))
}

func TestSetCommentEmptyClears(t *testing.T) {
	store, err := Store{}.SetComment("alice", 5, "note")
	require.NoError(t, err)
	store, err = store.SetComment("alice", 5, "")
	require.NoError(t, err)
	assert.Empty(t, store.CommentsFor(5))

	again, err := store.SetComment("alice", 5, "  ")
	require.NoError(t, err)
	assert.True(t, store.Equal(again))
}

func TestDefaultUsername(t *testing.T) {
	store, err := Store{}.MarkViewed("  ", 9)
	require.NoError(t, err)
	assert.True(t, store.IsViewed(DefaultUsername, 9))
	assert.True(t, store.IsViewed("", 9))
}

func TestInvalidRecordID(t *testing.T) {
	_, err := Store{}.MarkViewed("alice", -1)
	assert.ErrorIs(t, err, ErrInvalidRecordID)
	_, err = Store{}.SetComment("alice", -2, "x")
	assert.ErrorIs(t, err, ErrInvalidRecordID)
	assert.False(t, Store{}.IsViewed("alice", -1))
}

func TestViewedReturnsCopy(t *testing.T) {
	store, err := Store{}.MarkViewed("alice", 1)
	require.NoError(t, err)
	v := store.Viewed("alice")
	v.Add(99)
	assert.False(t, store.IsViewed("alice", 99))
	assert.True(t, store.Viewed("nobody").IsEmpty())
}

func TestEqual(t *testing.T) {
	a, _ := Store{}.MarkViewed("alice", 1)
	b, _ := Store{}.MarkViewed("alice", 2)
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(a))
	assert.True(t, Store{"x": {}}.Equal(Store{"x": {Comments: map[int]string{}}}))
	assert.False(t, Store{"x": {}}.Equal(Store{"y": {}}))
}
