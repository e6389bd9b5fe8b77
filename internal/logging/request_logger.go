package logging

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RequestLog is one audit record per proxied chat-completion request.
type RequestLog struct {
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id"`
	APIKeyID       int64     `json:"api_key_id"`
	APIKeyName     string    `json:"api_key_name"`
	Model          string    `json:"model"`
	UpstreamStatus int       `json:"upstream_status"`
	BytesRelayed   int64     `json:"bytes_relayed"`
	DurationMs     int64     `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
}

// RequestLogger writes JSONL audit records asynchronously. Rotation is
// delegated to lumberjack; the logger only owns the channel and the
// drain goroutine, so the proxy path never blocks on disk I/O.
type RequestLogger struct {
	out io.WriteCloser

	logCh  chan RequestLog
	doneCh chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// RequestLoggerConfig holds audit log settings.
type RequestLoggerConfig struct {
	FilePath   string // path of the active log file
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // rotated files to keep
	BufferSize int    // in-flight records before Enqueue starts dropping
}

// NewRequestLogger creates a request logger backed by a rotating file.
func NewRequestLogger(cfg RequestLoggerConfig) *RequestLogger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}

	logger := &RequestLogger{
		out: &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		},
		logCh:  make(chan RequestLog, cfg.BufferSize),
		doneCh: make(chan struct{}),
	}

	logger.wg.Add(1)
	go logger.drain()

	return logger
}

// newRequestLoggerWithWriter is used by tests to capture output directly.
func newRequestLoggerWithWriter(out io.WriteCloser, bufferSize int) *RequestLogger {
	logger := &RequestLogger{
		out:    out,
		logCh:  make(chan RequestLog, bufferSize),
		doneCh: make(chan struct{}),
	}
	logger.wg.Add(1)
	go logger.drain()
	return logger
}

func (l *RequestLogger) drain() {
	defer l.wg.Done()

	enc := json.NewEncoder(l.out)
	for {
		select {
		case rec := <-l.logCh:
			if err := enc.Encode(rec); err != nil {
				Warningf("request logger: failed to write record: %v", err)
			}
		case <-l.doneCh:
			// Flush whatever is still queued.
			for {
				select {
				case rec := <-l.logCh:
					if err := enc.Encode(rec); err != nil {
						Warningf("request logger: failed to write record: %v", err)
					}
				default:
					return
				}
			}
		}
	}
}

// Enqueue records one request. It never blocks: when the buffer is full the
// record is dropped and counted against the caller via the warn log.
func (l *RequestLogger) Enqueue(rec RequestLog) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	select {
	case l.logCh <- rec:
	default:
		Warningf("request logger: buffer full, dropping record %s", rec.RequestID)
	}
}

// Shutdown stops the drain goroutine, flushes queued records and closes
// the underlying file.
func (l *RequestLogger) Shutdown() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.doneCh)
	l.wg.Wait()
	return l.out.Close()
}
