package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ollama_gateway/internal/models"
)

// APIKeyRepository handles API key database operations.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new API key repository.
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create inserts a new API key and fills in the assigned id. A secret_key
// collision surfaces as ErrDuplicateSecret.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	query := r.db.conn.Rebind(`
		INSERT INTO api_keys (name, secret_key, allowed_model, created_at)
		VALUES (?, ?, ?, ?)
	`)

	if r.db.driver == "postgres" {
		err := r.db.conn.QueryRowxContext(
			ctx, query+" RETURNING id",
			key.Name, key.SecretKey, key.AllowedModel, key.CreatedAt,
		).Scan(&key.ID)
		if err != nil {
			return wrapCreateError(err)
		}
		return nil
	}

	result, err := r.db.conn.ExecContext(
		ctx, query,
		key.Name, key.SecretKey, key.AllowedModel, key.CreatedAt,
	)
	if err != nil {
		return wrapCreateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted id: %w", err)
	}
	key.ID = id
	return nil
}

func wrapCreateError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") {
		return ErrDuplicateSecret
	}
	return fmt.Errorf("failed to create API key: %w", err)
}

// GetBySecret retrieves an API key by its plaintext secret.
func (r *APIKeyRepository) GetBySecret(ctx context.Context, secret string) (*models.APIKey, error) {
	var key models.APIKey
	query := r.db.conn.Rebind(`
		SELECT id, name, secret_key, allowed_model, created_at
		FROM api_keys
		WHERE secret_key = ?
	`)

	err := r.db.conn.GetContext(ctx, &key, query, secret)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return &key, nil
}

// GetByID retrieves an API key by id.
func (r *APIKeyRepository) GetByID(ctx context.Context, id int64) (*models.APIKey, error) {
	var key models.APIKey
	query := r.db.conn.Rebind(`
		SELECT id, name, secret_key, allowed_model, created_at
		FROM api_keys
		WHERE id = ?
	`)

	err := r.db.conn.GetContext(ctx, &key, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return &key, nil
}

// List returns all API keys, newest first. Creation timestamps can collide
// within a clock tick, so id breaks ties to keep the order stable.
func (r *APIKeyRepository) List(ctx context.Context) ([]*models.APIKey, error) {
	query := `
		SELECT id, name, secret_key, allowed_model, created_at
		FROM api_keys
		ORDER BY created_at DESC, id DESC
	`

	var keys []*models.APIKey
	err := r.db.conn.SelectContext(ctx, &keys, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// Count returns the number of stored API keys.
func (r *APIKeyRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.conn.GetContext(ctx, &count, "SELECT COUNT(*) FROM api_keys")
	if err != nil {
		return 0, fmt.Errorf("failed to count API keys: %w", err)
	}
	return count, nil
}

// Delete removes an API key permanently. Deleting an unknown id returns
// ErrKeyNotFound, on the second call as well.
func (r *APIKeyRepository) Delete(ctx context.Context, id int64) error {
	query := r.db.conn.Rebind("DELETE FROM api_keys WHERE id = ?")

	result, err := r.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}
