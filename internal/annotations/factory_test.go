package annotations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRepositoryModes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.json")

	repo, err := NewRepository(ctx, Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "file", repo.Mode())

	repo, err = NewRepository(ctx, Options{Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", repo.Mode())

	_, err = NewRepository(ctx, Options{Backend: "postgres"})
	assert.Error(t, err)

	_, err = NewRepository(ctx, Options{Backend: "redis"})
	assert.Error(t, err)
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	empty, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	store, err := Store{}.SetComment("alice", 42, "good answer")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, store))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.True(t, store.Equal(loaded))

	// Mutating a loaded copy must not leak into the repository.
	_, err = loaded.MarkViewed("alice", 1)
	require.NoError(t, err)
	again, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.False(t, again.IsViewed("alice", 1))
}
