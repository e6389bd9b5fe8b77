package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort   string
	StaticDir  string
	Database   DatabaseConfig
	Upstream   UpstreamConfig
	RequestLog RequestLogConfig
}

// DatabaseConfig holds key-store connection settings. The DSN selects the
// backend: a postgres:// URL, or a SQLite file path (the default).
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// UpstreamConfig holds Ollama connection settings.
type UpstreamConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	HeaderTimeout  time.Duration
	CatalogTimeout time.Duration
}

// RequestLogConfig holds audit log settings for the proxy path.
type RequestLogConfig struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	BufferSize int
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:  getEnvString("HTTP_PORT", "8000"),
		StaticDir: getEnvString("STATIC_DIR", "web"),
		Database: DatabaseConfig{
			DSN:             getEnvString("DATABASE_URL", "gateway.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Upstream: UpstreamConfig{
			BaseURL:        getEnvString("OLLAMA_BASE_URL", "http://localhost:11434"),
			ConnectTimeout: getEnvDuration("UPSTREAM_CONNECT_TIMEOUT", 5*time.Second),
			HeaderTimeout:  getEnvDuration("UPSTREAM_HEADER_TIMEOUT", 30*time.Second),
			CatalogTimeout: getEnvDuration("CATALOG_TIMEOUT", 10*time.Second),
		},
		RequestLog: RequestLogConfig{
			FilePath:   getEnvString("REQUEST_LOG_FILE", "logs/requests.jsonl"),
			MaxSizeMB:  getEnvInt("REQUEST_LOG_MAX_SIZE_MB", 10),
			MaxBackups: getEnvInt("REQUEST_LOG_MAX_BACKUPS", 5),
			BufferSize: getEnvInt("REQUEST_LOG_BUFFER_SIZE", 100),
		},
	}

	return cfg, nil
}
