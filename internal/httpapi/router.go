package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"ollama_gateway/internal/config"
	"ollama_gateway/internal/keys"
	"ollama_gateway/internal/logging"
	"ollama_gateway/internal/models"
	"ollama_gateway/internal/storage"
	"ollama_gateway/internal/upstream"
)

// KeyStore resolves bearer secrets into stored key records.
type KeyStore interface {
	GetBySecret(ctx context.Context, secret string) (*models.APIKey, error)
}

// UpstreamClient is the slice of the Ollama client the HTTP layer needs.
type UpstreamClient interface {
	ListModels(ctx context.Context) ([]string, error)
	ChatCompletions(ctx context.Context, body []byte) (*http.Response, error)
}

// Dependencies aggregates the services the HTTP layer needs.
type Dependencies struct {
	Keys          KeyStore
	Issuer        *keys.Issuer
	Admin         *keys.Admin
	Upstream      UpstreamClient
	RequestLogger *logging.RequestLogger

	db             *storage.DB
	upstreamCloser interface{ Close() error }
}

// NewRouter opens the database and upstream client and wires all routes.
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client := upstream.NewClient(upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		ConnectTimeout: cfg.Upstream.ConnectTimeout,
		HeaderTimeout:  cfg.Upstream.HeaderTimeout,
		CatalogTimeout: cfg.Upstream.CatalogTimeout,
	})

	repo := storage.NewAPIKeyRepository(db)

	deps := &Dependencies{
		Keys:     repo,
		Issuer:   keys.NewIssuer(repo, client),
		Admin:    keys.NewAdmin(repo),
		Upstream: client,
		RequestLogger: logging.NewRequestLogger(logging.RequestLoggerConfig{
			FilePath:   cfg.RequestLog.FilePath,
			MaxSizeMB:  cfg.RequestLog.MaxSizeMB,
			MaxBackups: cfg.RequestLog.MaxBackups,
			BufferSize: cfg.RequestLog.BufferSize,
		}),
		db:             db,
		upstreamCloser: client,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg)

	return mux, deps, nil
}

// Close tears down process-wide state: the audit logger, the store and the
// upstream connection pool.
func (d *Dependencies) Close() error {
	var firstErr error
	if d.RequestLogger != nil {
		if err := d.RequestLogger.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.upstreamCloser != nil {
		if err := d.upstreamCloser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.Config) {
	// OpenAI-compatible proxy endpoint.
	mux.HandleFunc("/v1/chat/completions", deps.handleChat)

	// Dashboard API.
	mux.HandleFunc("/api/models", deps.handleModels)
	mux.HandleFunc("/api/keys", deps.handleKeys)
	mux.HandleFunc("/api/keys/", deps.handleKeyByID)

	// Health check endpoint.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Static dashboard.
	if cfg.StaticDir != "" {
		fs := http.FileServer(http.Dir(cfg.StaticDir))
		mux.Handle("/static/", http.StripPrefix("/static/", fs))
		index := filepath.Join(cfg.StaticDir, "index.html")
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			http.ServeFile(w, r, index)
		})
	}
}
