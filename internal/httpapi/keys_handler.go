package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ollama_gateway/internal/keys"
	"ollama_gateway/internal/logging"
	"ollama_gateway/internal/storage"
	"ollama_gateway/internal/upstream"
)

// createKeyRequest is the POST /api/keys payload.
type createKeyRequest struct {
	Name      string `json:"name"`
	ModelName string `json:"model_name"`
}

// handleKeys dispatches /api/keys by method: POST issues a key, GET lists
// the redacted view.
func (d *Dependencies) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		d.createKey(w, r)
	case http.MethodGet:
		d.listKeys(w, r)
	default:
		respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (d *Dependencies) createKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.ModelName == "" {
		respondWithError(w, http.StatusBadRequest, "model_name is required")
		return
	}

	issued, err := d.Issuer.Issue(r.Context(), req.Name, req.ModelName)
	if err != nil {
		switch {
		case errors.Is(err, keys.ErrUnknownModel):
			respondWithError(w, http.StatusBadRequest,
				"Model '"+req.ModelName+"' not found in Ollama.")
		case errors.Is(err, upstream.ErrUnavailable):
			respondWithError(w, http.StatusServiceUnavailable, "Could not connect to Ollama server.")
		case errors.Is(err, storage.ErrDuplicateSecret):
			// 192 bits of entropy colliding means something is deeply
			// wrong with the random source. Worth an alarm, not a retry.
			logging.Errorf("key issuance: secret collision: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to create API key")
		default:
			logging.Errorf("key issuance failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to create API key")
		}
		return
	}

	// The plaintext secret is returned here and never again.
	respondWithJSON(w, http.StatusCreated, issued)
}

func (d *Dependencies) listKeys(w http.ResponseWriter, r *http.Request) {
	listings, err := d.Admin.List(r.Context())
	if err != nil {
		logging.Errorf("key listing failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}
	respondWithJSON(w, http.StatusOK, listings)
}

// handleKeyByID serves DELETE /api/keys/{id}.
func (d *Dependencies) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/keys/")
	if idStr == "" || strings.Contains(idStr, "/") {
		respondWithError(w, http.StatusBadRequest, "Invalid API key ID")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid API key ID format")
		return
	}

	if err := d.Admin.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			respondWithError(w, http.StatusNotFound, "API Key not found.")
			return
		}
		logging.Errorf("key deletion failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete API key")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
