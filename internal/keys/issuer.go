// Package keys implements issuance and administration of the gateway's
// API keys. Issuance is the only way a key record comes into existence.
package keys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"ollama_gateway/internal/models"
	"ollama_gateway/internal/storage"
)

// SecretPrefix tags every issued credential so operators can recognize the
// format at a glance. Only the random suffix carries entropy.
const SecretPrefix = "sk-ollama-"

const secretRandomBytes = 24 // 48 hex chars, 192 bits

// ErrUnknownModel is returned when the requested model is not present in
// the upstream catalog at issuance time. Handlers map it to 400: the
// caller supplied bad input, nothing went wrong server-side.
var ErrUnknownModel = errors.New("model not found in Ollama")

// DefaultKeyName is used when the caller omits a name.
const DefaultKeyName = "Untitled Key"

// Catalog lists the models currently available upstream.
type Catalog interface {
	ListModels(ctx context.Context) ([]string, error)
}

// IssuedKey is the one-time response to a successful issuance. The
// plaintext secret is never retrievable again.
type IssuedKey struct {
	Name      string `json:"name"`
	SecretKey string `json:"secret_key"`
	Model     string `json:"model"`
}

// Issuer validates requested models against the catalog and mints keys.
type Issuer struct {
	repo    *storage.APIKeyRepository
	catalog Catalog
}

// NewIssuer creates a key issuer.
func NewIssuer(repo *storage.APIKeyRepository, catalog Catalog) *Issuer {
	return &Issuer{repo: repo, catalog: catalog}
}

// Issue validates modelName against a fresh catalog snapshot, mints a new
// secret and persists the record. One catalog query per issuance; a failed
// catalog check fails the whole issuance, no retries.
func (i *Issuer) Issue(ctx context.Context, name, modelName string) (*IssuedKey, error) {
	available, err := i.catalog.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(available, modelName) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, modelName)
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	if name == "" {
		name = DefaultKeyName
	}

	record := &models.APIKey{
		Name:         name,
		SecretKey:    secret,
		AllowedModel: modelName,
	}
	if err := i.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	return &IssuedKey{
		Name:      record.Name,
		SecretKey: secret,
		Model:     record.AllowedModel,
	}, nil
}

// GenerateSecret mints a new bearer credential: the fixed prefix followed
// by 48 hex characters from crypto/rand.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return SecretPrefix + hex.EncodeToString(buf), nil
}
