package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama_gateway/internal/models"
)

func setupTestRepo(t *testing.T) *APIKeyRepository {
	t.Helper()

	cfg := DefaultDBConfig()
	cfg.DSN = ":memory:"

	db, err := NewDB(cfg)
	require.NoError(t, err, "open in-memory database")
	t.Cleanup(func() { db.Close() })

	return NewAPIKeyRepository(db)
}

func TestAPIKeyRepository_CreateAssignsIDs(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first := &models.APIKey{Name: "first", SecretKey: "sk-ollama-aaa1", AllowedModel: "llama3:8b"}
	second := &models.APIKey{Name: "second", SecretKey: "sk-ollama-aaa2", AllowedModel: "llama3:8b"}

	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	assert.Greater(t, first.ID, int64(0))
	assert.Greater(t, second.ID, first.ID, "ids are assigned monotonically")
	assert.False(t, first.CreatedAt.IsZero())
}

func TestAPIKeyRepository_DuplicateSecret(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	key := &models.APIKey{Name: "one", SecretKey: "sk-ollama-collide", AllowedModel: "llama3:8b"}
	require.NoError(t, repo.Create(ctx, key))

	clone := &models.APIKey{Name: "two", SecretKey: "sk-ollama-collide", AllowedModel: "mistral"}
	err := repo.Create(ctx, clone)
	require.ErrorIs(t, err, ErrDuplicateSecret)

	// The original record is untouched.
	got, err := repo.GetBySecret(ctx, "sk-ollama-collide")
	require.NoError(t, err)
	assert.Equal(t, "one", got.Name)
	assert.Equal(t, "llama3:8b", got.AllowedModel)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAPIKeyRepository_GetBySecret(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	key := &models.APIKey{Name: "lookup", SecretKey: "sk-ollama-lookup", AllowedModel: "llama3:8b"}
	require.NoError(t, repo.Create(ctx, key))

	got, err := repo.GetBySecret(ctx, "sk-ollama-lookup")
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
	assert.Equal(t, "llama3:8b", got.AllowedModel)

	_, err = repo.GetBySecret(ctx, "sk-ollama-unknown")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestAPIKeyRepository_ListNewestFirst(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		key := &models.APIKey{
			Name:         fmt.Sprintf("key-%d", i),
			SecretKey:    fmt.Sprintf("sk-ollama-list-%d", i),
			AllowedModel: "llama3:8b",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(ctx, key))
	}

	keys, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 5)

	for i := 1; i < len(keys); i++ {
		assert.False(t, keys[i].CreatedAt.After(keys[i-1].CreatedAt),
			"keys must be ordered created_at descending")
	}
	assert.Equal(t, "key-4", keys[0].Name)
	assert.Equal(t, "key-0", keys[4].Name)
}

func TestAPIKeyRepository_ListBreaksTiesByID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		key := &models.APIKey{
			Name:         fmt.Sprintf("tied-%d", i),
			SecretKey:    fmt.Sprintf("sk-ollama-tied-%d", i),
			AllowedModel: "llama3:8b",
			CreatedAt:    at,
		}
		require.NoError(t, repo.Create(ctx, key))
	}

	keys, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.Equal(t, "tied-2", keys[0].Name)
	assert.Equal(t, "tied-0", keys[2].Name)
}

func TestAPIKeyRepository_Delete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	key := &models.APIKey{Name: "doomed", SecretKey: "sk-ollama-doomed", AllowedModel: "llama3:8b"}
	require.NoError(t, repo.Create(ctx, key))

	before, err := repo.Count(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, key.ID))

	after, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before-1, after)

	// Deletion is permanent; a second delete fails the same way as a
	// delete of an id that never existed.
	assert.ErrorIs(t, repo.Delete(ctx, key.ID), ErrKeyNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, 99999), ErrKeyNotFound)

	_, err = repo.GetBySecret(ctx, "sk-ollama-doomed")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestAPIKeyRepository_ConcurrentCreates(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := &models.APIKey{
				Name:         fmt.Sprintf("concurrent-%d", i),
				SecretKey:    fmt.Sprintf("sk-ollama-concurrent-%d", i),
				AllowedModel: "llama3:8b",
			}
			errs <- repo.Create(ctx, key)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	keys, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, n)

	ids := make(map[int64]bool, n)
	for _, k := range keys {
		require.False(t, ids[k.ID], "duplicate id %d", k.ID)
		ids[k.ID] = true
	}
}

func TestAPIKeyRepository_GetByID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	key := &models.APIKey{Name: "by-id", SecretKey: "sk-ollama-by-id", AllowedModel: "mistral"}
	require.NoError(t, repo.Create(ctx, key))

	got, err := repo.GetByID(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, "by-id", got.Name)

	_, err = repo.GetByID(ctx, key.ID+1)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
