package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled.org/booru.social/booru/internal/moderation"
)

func setupTestContentStore(t *testing.T) *ContentStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := Open(Options{Path: dbPath})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store.ContentStore()
}

func TestContentStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	store := setupTestContentStore(t)

	require.NoError(t, store.Put(ctx, ContentItem{ID: 1, OwnerID: 9, Tags: []int64{3, 1, 3}}))

	item, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), item.OwnerID)
	assert.Equal(t, moderation.VisibilityActive, item.Visibility)
	assert.Equal(t, []int64{1, 3}, item.Tags)
	assert.False(t, item.UpdatedAt.IsZero())

	exists, err := store.Exists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, 2)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Get(ctx, 2)
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	err = store.Put(ctx, ContentItem{ID: 3, Visibility: "bogus"})
	assert.Error(t, err)
}

func TestContentStore_Visibility(t *testing.T) {
	ctx := context.Background()
	store := setupTestContentStore(t)
	require.NoError(t, store.Put(ctx, ContentItem{ID: 1}))

	t.Run("set and read", func(t *testing.T) {
		require.NoError(t, store.SetVisibility(ctx, 1, moderation.VisibilityUnderReview))
		v, err := store.Visibility(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, moderation.VisibilityUnderReview, v)
	})

	t.Run("history records changes only", func(t *testing.T) {
		require.NoError(t, store.SetVisibility(ctx, 1, moderation.VisibilityUnderReview))
		require.NoError(t, store.SetVisibility(ctx, 1, moderation.VisibilityRemoved))

		history, err := store.History(ctx, 1)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, moderation.VisibilityActive, history[0].From)
		assert.Equal(t, moderation.VisibilityUnderReview, history[0].To)
		assert.Equal(t, moderation.VisibilityRemoved, history[1].To)
	})

	t.Run("unknown content", func(t *testing.T) {
		err := store.SetVisibility(ctx, 42, moderation.VisibilityHidden)
		assert.ErrorIs(t, err, moderation.ErrNotFound)
		_, err = store.Visibility(ctx, 42)
		assert.ErrorIs(t, err, moderation.ErrNotFound)
	})

	t.Run("invalid status", func(t *testing.T) {
		assert.Error(t, store.SetVisibility(ctx, 1, "gone"))
	})
}

func TestContentStore_MutateTags(t *testing.T) {
	ctx := context.Background()
	store := setupTestContentStore(t)
	require.NoError(t, store.Put(ctx, ContentItem{ID: 1, Tags: []int64{1, 2, 3}}))

	require.NoError(t, store.MutateTags(ctx, 1, []int64{5, 2}, []int64{1, 7}))

	tags, err := store.Tags(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 5}, tags)

	require.NoError(t, store.MutateTags(ctx, 1, nil, []int64{2, 3, 5}))
	tags, err = store.Tags(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, tags)

	err = store.MutateTags(ctx, 99, []int64{1}, nil)
	assert.ErrorIs(t, err, moderation.ErrNotFound)
}

func TestContentStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := setupTestContentStore(t)
	require.NoError(t, store.Put(ctx, ContentItem{ID: 1}))
	require.NoError(t, store.Put(ctx, ContentItem{ID: 2}))
	require.NoError(t, store.SetVisibility(ctx, 1, moderation.VisibilityHidden))
	require.NoError(t, store.SetVisibility(ctx, 2, moderation.VisibilityHidden))

	require.NoError(t, store.Delete(ctx, 1))

	exists, err := store.Exists(ctx, 1)
	require.NoError(t, err)
	assert.False(t, exists)

	history, err := store.History(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, history)

	history, err = store.History(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
