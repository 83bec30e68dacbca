package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/tasks"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := Open(ctx, filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	version, err := store.Migrate(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)
	return store
}

func strPtr(s string) *string { return &s }

func TestStoreRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	yes := true
	created, err := store.Create(ctx, tasks.CreateParams{Title: strPtr("a"), Description: strPtr("b"), Completed: &yes})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.True(t, created.Completed)
	assert.False(t, created.CreatedAt.IsZero())

	bare, err := store.Create(ctx, tasks.CreateParams{})
	require.NoError(t, err)
	assert.Nil(t, bare.Title)
	assert.False(t, bare.Completed)

	list, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", *list[0].Title)
	assert.Equal(t, "b", *list[0].Description)
	assert.Equal(t, bare.ID, list[1].ID)
}

func TestStoreDelete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, tasks.CreateParams{Title: strPtr("gone")})
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStoreConcurrentWrites(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Create(ctx, tasks.CreateParams{Title: strPtr("x")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestStoreFailsWhenSchemaMissing(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = store.List(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
	assert.NoError(t, store.Ping(ctx))
}
