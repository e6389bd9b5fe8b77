package keys

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama_gateway/internal/storage"
	"ollama_gateway/internal/upstream"
)

type fakeCatalog struct {
	models []string
	err    error
	calls  int
}

func (f *fakeCatalog) ListModels(ctx context.Context) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.models, nil
}

func setupRepo(t *testing.T) *storage.APIKeyRepository {
	t.Helper()

	cfg := storage.DefaultDBConfig()
	cfg.DSN = ":memory:"
	db, err := storage.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return storage.NewAPIKeyRepository(db)
}

var secretPattern = regexp.MustCompile(`^sk-ollama-[0-9a-f]{48}$`)

func TestIssuerIssue(t *testing.T) {
	repo := setupRepo(t)
	catalog := &fakeCatalog{models: []string{"llama3:8b", "mistral"}}
	issuer := NewIssuer(repo, catalog)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "My Project", "llama3:8b")
	require.NoError(t, err)

	assert.Equal(t, "My Project", issued.Name)
	assert.Equal(t, "llama3:8b", issued.Model)
	assert.Regexp(t, secretPattern, issued.SecretKey)
	assert.Equal(t, 1, catalog.calls, "one catalog query per issuance")

	// The persisted record authorizes exactly the bound model.
	rec, err := repo.GetBySecret(ctx, issued.SecretKey)
	require.NoError(t, err)
	assert.Equal(t, "llama3:8b", rec.AllowedModel)
}

func TestIssuerDefaultsName(t *testing.T) {
	repo := setupRepo(t)
	issuer := NewIssuer(repo, &fakeCatalog{models: []string{"llama3:8b"}})

	issued, err := issuer.Issue(context.Background(), "", "llama3:8b")
	require.NoError(t, err)
	assert.Equal(t, DefaultKeyName, issued.Name)
}

func TestIssuerUnknownModelCreatesNoRecord(t *testing.T) {
	repo := setupRepo(t)
	issuer := NewIssuer(repo, &fakeCatalog{models: []string{"llama3:8b"}})
	ctx := context.Background()

	_, err := issuer.Issue(ctx, "nope", "gpt-4")
	require.ErrorIs(t, err, ErrUnknownModel)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "failed issuance must not persist anything")
}

func TestIssuerUpstreamFailurePropagates(t *testing.T) {
	repo := setupRepo(t)
	issuer := NewIssuer(repo, &fakeCatalog{err: upstream.ErrUnavailable})

	_, err := issuer.Issue(context.Background(), "x", "llama3:8b")
	require.ErrorIs(t, err, upstream.ErrUnavailable)
}

func TestIssuerSecretsAreUnique(t *testing.T) {
	repo := setupRepo(t)
	issuer := NewIssuer(repo, &fakeCatalog{models: []string{"llama3:8b"}})
	ctx := context.Background()

	const n = 200
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		issued, err := issuer.Issue(ctx, "bulk", "llama3:8b")
		require.NoError(t, err)
		require.Regexp(t, secretPattern, issued.SecretKey)
		require.False(t, seen[issued.SecretKey], "secret issued twice: %s", issued.SecretKey)
		seen[issued.SecretKey] = true
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	assert.Regexp(t, secretPattern, secret)
}

func TestAdminListRedacts(t *testing.T) {
	repo := setupRepo(t)
	catalog := &fakeCatalog{models: []string{"llama3:8b", "mistral"}}
	issuer := NewIssuer(repo, catalog)
	admin := NewAdmin(repo)
	ctx := context.Background()

	first, err := issuer.Issue(ctx, "older", "llama3:8b")
	require.NoError(t, err)
	second, err := issuer.Issue(ctx, "newer", "mistral")
	require.NoError(t, err)

	listings, err := admin.List(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	// Newest first.
	assert.Equal(t, "newer", listings[0].Name)
	assert.Equal(t, "mistral", listings[0].ProjectAccess)
	assert.Equal(t, "older", listings[1].Name)

	for i, issued := range []*IssuedKey{second, first} {
		display := listings[i].SecretKeyDisplay
		want := issued.SecretKey[:12] + "..." + issued.SecretKey[len(issued.SecretKey)-4:]
		assert.Equal(t, want, display)
		assert.NotContains(t, display, issued.SecretKey[12:len(issued.SecretKey)-4])
	}
}

func TestAdminDelete(t *testing.T) {
	repo := setupRepo(t)
	issuer := NewIssuer(repo, &fakeCatalog{models: []string{"llama3:8b"}})
	admin := NewAdmin(repo)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "doomed", "llama3:8b")
	require.NoError(t, err)

	rec, err := repo.GetBySecret(ctx, issued.SecretKey)
	require.NoError(t, err)

	require.NoError(t, admin.Delete(ctx, rec.ID))
	assert.True(t, errors.Is(admin.Delete(ctx, rec.ID), storage.ErrKeyNotFound))
}
