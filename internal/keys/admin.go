package keys

import (
	"context"
	"time"

	"ollama_gateway/internal/storage"
)

// KeyListing is the redacted list view of a key. The full secret never
// leaves the store through this type; that invariant is the reason this
// service exists instead of handing callers raw store access.
type KeyListing struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	SecretKeyDisplay string    `json:"secret_key_display"`
	CreatedAt        time.Time `json:"created_at"`
	ProjectAccess    string    `json:"project_access"`
}

// Admin lists and deletes key records.
type Admin struct {
	repo *storage.APIKeyRepository
}

// NewAdmin creates a key administration service.
func NewAdmin(repo *storage.APIKeyRepository) *Admin {
	return &Admin{repo: repo}
}

// List returns all keys newest-first, secrets redacted.
func (a *Admin) List(ctx context.Context) ([]KeyListing, error) {
	records, err := a.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	listings := make([]KeyListing, 0, len(records))
	for _, rec := range records {
		listings = append(listings, KeyListing{
			ID:               rec.ID,
			Name:             rec.Name,
			SecretKeyDisplay: rec.SecretDisplay(),
			CreatedAt:        rec.CreatedAt,
			ProjectAccess:    rec.AllowedModel,
		})
	}
	return listings, nil
}

// Delete permanently removes a key. Unknown ids return
// storage.ErrKeyNotFound, which handlers map to 404.
func (a *Admin) Delete(ctx context.Context, id int64) error {
	return a.repo.Delete(ctx, id)
}
