package httpapi

import (
	"errors"
	"net/http"

	"ollama_gateway/internal/logging"
	"ollama_gateway/internal/upstream"
)

// handleModels serves GET /api/models: the current upstream catalog, fresh
// on every call so the dashboard never offers a model that just unloaded.
func (d *Dependencies) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	models, err := d.Upstream.ListModels(r.Context())
	if err != nil {
		if errors.Is(err, upstream.ErrUnavailable) {
			respondWithError(w, http.StatusServiceUnavailable, "Could not connect to Ollama server.")
			return
		}
		logging.Errorf("model listing failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list models")
		return
	}

	respondWithJSON(w, http.StatusOK, models)
}
