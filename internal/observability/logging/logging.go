// Package logging builds the process slog loggers and carries the
// request-scoped identifiers that stitch log lines together: the request id
// minted at the edge and the upload id a client reports for its in-flight
// video.
package logging

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Options selects the output shape of a process logger.
type Options struct {
	// Level names the minimum level: debug, info, warn, or error.
	Level string
	// Format is "json" or "text". JSON is the default.
	Format string
	// Writer defaults to stdout.
	Writer io.Writer
}

// Init builds a logger from opts and installs it as the process default.
func Init(opts Options) *slog.Logger {
	logger := New(opts)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger from opts without touching the process default.
func New(opts Options) *slog.Logger {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: level(opts.Level)}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "text") {
		return slog.New(slog.NewTextHandler(writer, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(writer, handlerOpts))
}

func level(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent annotates a logger with the subsystem it serves.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With("component", component)
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	uploadIDKey  contextKey = "upload_id"
)

// ContextWithRequestID stores a non-empty request id on the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, trimmed)
}

// RequestIDFromContext extracts the request id, ok=false when absent.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(requestIDKey).(string)
	return value, ok && value != ""
}

// ContextWithUploadID stores a non-empty upload id on the context.
func ContextWithUploadID(ctx context.Context, id string) context.Context {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ctx
	}
	return context.WithValue(ctx, uploadIDKey, trimmed)
}

// UploadIDFromContext extracts the upload id, ok=false when absent.
func UploadIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(uploadIDKey).(string)
	return value, ok && value != ""
}

// WithContext annotates a logger with whichever identifiers the context
// carries.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return nil
	}
	if requestID, ok := RequestIDFromContext(ctx); ok {
		logger = logger.With("request_id", requestID)
	}
	if uploadID, ok := UploadIDFromContext(ctx); ok {
		logger = logger.With("upload_id", uploadID)
	}
	return logger
}

// AccessLog logs one line per served HTTP request. ClientIP supplies the
// address attributed to the caller; when nil the raw RemoteAddr is used, so
// deployments behind a proxy should pass their forwarded-for resolver.
type AccessLog struct {
	Logger   *slog.Logger
	ClientIP func(*http.Request) string
}

// Middleware wraps next, emitting the access line after the response is
// written.
func (a AccessLog) Middleware(next http.Handler) http.Handler {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)

		clientIP := r.RemoteAddr
		if a.ClientIP != nil {
			clientIP = a.ClientIP(r)
		}
		WithContext(r.Context(), logger).Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status(),
			"bytes", sw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP,
		)
	})
}

// statusWriter captures the status code and body size for the access line.
type statusWriter struct {
	http.ResponseWriter
	code  int
	bytes int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}
