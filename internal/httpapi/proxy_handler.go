package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"ollama_gateway/internal/logging"
	"ollama_gateway/internal/storage"
	"ollama_gateway/internal/upstream"
)

// Cap on inbound chat bodies. The gateway has to hold the request in
// memory to read the model field before forwarding.
const maxChatBodyBytes = 10 << 20

const relayBufferSize = 32 * 1024

// handleChat is the authorization gateway in front of the upstream chat
// endpoint. Four sequential checks, each a terminal exit, then a streaming
// passthrough:
//
//  1. Parse the bearer token            -> 401
//  2. Look the key up by secret         -> 401
//  3. Decode the body, extract "model"  -> 400
//  4. Compare against the bound model   -> 403
//  5. Relay the upstream response byte for byte
func (d *Dependencies) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := newRequestID()

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()

	// 1. Auth via "Authorization: Bearer <secret>"
	secret, err := parseBearer(r.Header.Get("Authorization"))
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid authorization scheme")
		return
	}

	// 2. Resolve the secret to a stored key.
	record, err := d.Keys.GetBySecret(ctx, secret)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			writeJSONError(w, http.StatusUnauthorized, "invalid API key")
		} else {
			logging.Errorf("chat %s: key lookup failed: %v", reqID, err)
			writeJSONError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	// 3. Decode the body far enough to know the requested model. The raw
	// bytes are kept so the upstream sees the caller's JSON unmodified.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var payload struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.Model == "" {
		writeJSONError(w, http.StatusBadRequest, "missing 'model' field")
		return
	}

	// 4. One key, one model.
	if !record.AllowsModel(payload.Model) {
		writeJSONError(w, http.StatusForbidden, fmt.Sprintf(
			"This API key is not authorized for model %q. It is authorized for %q.",
			payload.Model, record.AllowedModel,
		))
		return
	}

	// 5. Proxy. The upstream request shares the caller's context, so a
	// caller disconnect tears the upstream connection down promptly.
	resp, err := d.Upstream.ChatCompletions(ctx, body)
	if err != nil {
		logging.Warningf("chat %s: upstream request failed: %v", reqID, err)
		d.audit(logging.RequestLog{
			Timestamp:  time.Now(),
			RequestID:  reqID,
			APIKeyID:   record.ID,
			APIKeyName: record.Name,
			Model:      payload.Model,
			DurationMs: time.Since(start).Milliseconds(),
			Error:      err.Error(),
		})
		if errors.Is(err, upstream.ErrUnavailable) {
			writeJSONError(w, http.StatusServiceUnavailable, "could not connect to Ollama server")
		} else {
			writeJSONError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	defer resp.Body.Close()

	relayed, relayErr := relay(ctx, w, resp)

	rec := logging.RequestLog{
		Timestamp:      time.Now(),
		RequestID:      reqID,
		APIKeyID:       record.ID,
		APIKeyName:     record.Name,
		Model:          payload.Model,
		UpstreamStatus: resp.StatusCode,
		BytesRelayed:   relayed,
		DurationMs:     time.Since(start).Milliseconds(),
	}
	if relayErr != nil {
		// Bytes may already be in flight, so there is no way to surface a
		// structured error. The stream just ends; the caller observes a
		// truncated response.
		rec.Error = relayErr.Error()
		logging.Warningf("chat %s: stream ended early after %d bytes: %v", reqID, relayed, relayErr)
	}
	d.audit(rec)
}

// relay copies the upstream response to the caller as it arrives. Chunk
// boundaries are not preserved, total byte content and order are. Nothing
// is buffered beyond one fixed-size chunk.
func relay(ctx context.Context, w http.ResponseWriter, resp *http.Response) (int64, error) {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)

	var total int64
	buf := make([]byte, relayBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			written, writeErr := w.Write(buf[:n])
			total += int64(written)
			if writeErr != nil {
				return total, fmt.Errorf("caller went away: %w", writeErr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return total, fmt.Errorf("caller cancelled: %w", ctx.Err())
			}
			return total, fmt.Errorf("upstream read failed: %w", readErr)
		}
	}
}

func (d *Dependencies) audit(rec logging.RequestLog) {
	if d.RequestLogger != nil {
		d.RequestLogger.Enqueue(rec)
	}
}

// parseBearer extracts the token from an Authorization: Bearer <token> header.
func parseBearer(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid Authorization header format")
	}
	if parts[1] == "" {
		return "", errors.New("empty bearer token")
	}
	return parts[1], nil
}

// newRequestID returns a UUID request ID for tracing.
func newRequestID() string {
	return uuid.New().String()
}
