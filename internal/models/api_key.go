package models

import "time"

// SecretDisplayPrefix and SecretDisplaySuffix control how much of a stored
// secret is shown in list views. The rest is replaced by an ellipsis.
const (
	SecretDisplayPrefix = 12
	SecretDisplaySuffix = 4
)

// APIKey is the one persistent entity of the gateway: a bearer credential
// bound to a single Ollama model.
type APIKey struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	SecretKey    string    `db:"secret_key"` // plaintext bearer token, unique
	AllowedModel string    `db:"allowed_model"`
	CreatedAt    time.Time `db:"created_at"`
}

// AllowsModel reports whether this key may call the given model. A key is
// bound to exactly one model, so this is a plain equality check.
func (k *APIKey) AllowsModel(model string) bool {
	return model == k.AllowedModel
}

// SecretDisplay returns the redacted form of the secret used in list views:
// the first 12 characters, an ellipsis, and the last 4 characters. The full
// secret is never exposed after issuance.
func (k *APIKey) SecretDisplay() string {
	return RedactSecret(k.SecretKey)
}

// RedactSecret redacts a secret to its display form. Secrets shorter than
// prefix+suffix are returned unchanged; real secrets are always longer.
func RedactSecret(secret string) string {
	if len(secret) <= SecretDisplayPrefix+SecretDisplaySuffix {
		return secret
	}
	return secret[:SecretDisplayPrefix] + "..." + secret[len(secret)-SecretDisplaySuffix:]
}
