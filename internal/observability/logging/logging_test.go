package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRespectsCustomWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Options{Writer: &buf})
	logger.Info("custom writer")

	if buf.Len() == 0 {
		t.Fatalf("expected output in custom writer, got none")
	}
}

func TestNewDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer

	New(Options{Writer: &buf}).Info("shaped")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("default format is not JSON: %v (%s)", err, buf.String())
	}
	if payload["msg"] != "shaped" {
		t.Fatalf("msg = %v, want %q", payload["msg"], "shaped")
	}
}

func TestLevelNames(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{input: "debug", expected: slog.LevelDebug},
		{input: "warning", expected: slog.LevelWarn},
		{input: "warn", expected: slog.LevelWarn},
		{input: "error", expected: slog.LevelError},
		{input: "info", expected: slog.LevelInfo},
		{input: "", expected: slog.LevelInfo},
		{input: " DeBuG ", expected: slog.LevelDebug},
		{input: "bogus", expected: slog.LevelInfo},
	}

	for _, tc := range testCases {
		if got := level(tc.input); got != tc.expected {
			t.Fatalf("level(%q) = %v, want %v", tc.input, got, tc.expected)
		}
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent(logger, "api").Info("component set")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("failed to unmarshal log output: %v", err)
	}
	if payload["component"] != "api" {
		t.Fatalf("component = %v, want %q", payload["component"], "api")
	}

	if got := WithComponent(nil, "anything"); got != nil {
		t.Fatalf("expected nil logger, got %v", got)
	}
}

func TestContextWithRequestAndUploadIDs(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithRequestID(ctx, "req-123")
	ctx = ContextWithUploadID(ctx, "upload-456")

	if id, ok := RequestIDFromContext(ctx); !ok || id != "req-123" {
		t.Fatalf("expected request id req-123, got %q", id)
	}
	if id, ok := UploadIDFromContext(ctx); !ok || id != "upload-456" {
		t.Fatalf("expected upload id upload-456, got %q", id)
	}

	// Blank identifiers are never stored.
	if _, ok := RequestIDFromContext(ContextWithRequestID(context.Background(), "   ")); ok {
		t.Fatalf("blank request id was stored")
	}
}

func TestWithContextAnnotatesLogger(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithUploadID(ctx, "upload-1")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithContext(ctx, logger).Info("hello")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("failed to unmarshal log output: %v", err)
	}
	if payload["request_id"] != "req-1" {
		t.Fatalf("expected request_id to be set, got %v", payload["request_id"])
	}
	if payload["upload_id"] != "upload-1" {
		t.Fatalf("expected upload_id to be set, got %v", payload["upload_id"])
	}
}

func TestInitSetsDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(Options{Writer: &buf, Format: "text", Level: "debug"})
	if logger != slog.Default() {
		t.Fatalf("expected Init to replace the default logger")
	}

	slog.Info("hello world")

	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("expected text output to include message, got %q", buf.String())
	}
}

func TestAccessLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	access := AccessLog{
		Logger:   logger,
		ClientIP: func(r *http.Request) string { return "203.0.113.9" },
	}

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/abc123", nil)
	req = req.WithContext(ContextWithRequestID(req.Context(), "req-7"))
	req.RemoteAddr = "127.0.0.1:1234"
	recorder := httptest.NewRecorder()

	access.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	})).ServeHTTP(recorder, req)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode log entry: %v", err)
	}

	if payload["status"] != float64(http.StatusAccepted) {
		t.Fatalf("status = %v, want %d", payload["status"], http.StatusAccepted)
	}
	if payload["path"] != "/api/uploads/abc123" {
		t.Fatalf("path = %v, want /api/uploads/abc123", payload["path"])
	}
	if payload["client_ip"] != "203.0.113.9" {
		t.Fatalf("client_ip = %v, want the resolver's answer", payload["client_ip"])
	}
	if payload["bytes"] != float64(len("queued")) {
		t.Fatalf("bytes = %v, want %d", payload["bytes"], len("queued"))
	}
	if payload["request_id"] != "req-7" {
		t.Fatalf("request_id = %v, want req-7", payload["request_id"])
	}
}

func TestAccessLogDefaultsToRemoteAddr(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.4:5678"
	recorder := httptest.NewRecorder()

	AccessLog{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})).ServeHTTP(recorder, req)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode log entry: %v", err)
	}
	if payload["client_ip"] != "192.0.2.4:5678" {
		t.Fatalf("client_ip = %v, want the raw remote address", payload["client_ip"])
	}
	if payload["status"] != float64(http.StatusOK) {
		t.Fatalf("status = %v, want %d for implicit WriteHeader", payload["status"], http.StatusOK)
	}
}
