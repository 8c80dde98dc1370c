package providerstub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Options describes how the fake backend should behave.
type Options struct {
	// TokenID and TokenSecret are enforced as basic auth when set.
	TokenID     string
	TokenSecret string

	// UploadID and UploadURL are returned from the upload create endpoint.
	UploadID  string
	UploadURL string

	// UploadStatus and AssetID are returned from the upload lookup endpoint.
	UploadStatus string
	AssetID      string

	// AssetStatus and playback identifiers are returned from the asset lookup
	// endpoint.
	AssetStatus     string
	PlaybackID      string
	PlaybackPolicy  string
	FailCreates     int
	FailStatusReads int

	// MissingUpload makes every upload lookup answer 404, as the real
	// backend does once an upload has been reaped.
	MissingUpload bool
}

// Call records one request the stub served.
type Call struct {
	Method string
	Path   string
	Status int
}

// Backend hosts a single httptest.Server covering the upload create, upload
// lookup, asset lookup, and asset delete endpoints.
type Backend struct {
	mu      sync.Mutex
	opts    Options
	server  *httptest.Server
	calls   []Call
	deleted []string
}

// New starts the stub. Callers own Close.
func New(opts Options) *Backend {
	if opts.UploadID == "" {
		opts.UploadID = "upload-stub"
	}
	if opts.UploadStatus == "" {
		opts.UploadStatus = "waiting"
	}
	if opts.PlaybackPolicy == "" {
		opts.PlaybackPolicy = "public"
	}
	b := &Backend{opts: opts}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	if b.opts.UploadURL == "" {
		b.opts.UploadURL = b.server.URL + "/put/" + opts.UploadID
	}
	return b
}

// URL returns the stub's base URL for the adapter under test.
func (b *Backend) URL() string {
	return b.server.URL
}

// Close shuts the stub down.
func (b *Backend) Close() {
	b.server.Close()
}

// Calls returns the recorded requests in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// DeletedAssets returns the asset ids passed to the delete endpoint.
func (b *Backend) DeletedAssets() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

// SetUploadState rescripts the upload lookup answer mid-test.
func (b *Backend) SetUploadState(uploadStatus, assetID, assetStatus, playbackID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts.UploadStatus = uploadStatus
	b.opts.AssetID = assetID
	b.opts.AssetStatus = assetStatus
	b.opts.PlaybackID = playbackID
}

func (b *Backend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	opts := b.opts
	b.mu.Unlock()

	status := b.route(w, r, opts)

	b.mu.Lock()
	b.calls = append(b.calls, Call{Method: r.Method, Path: r.URL.Path, Status: status})
	b.mu.Unlock()
}

func (b *Backend) route(w http.ResponseWriter, r *http.Request, opts Options) int {
	if opts.TokenID != "" {
		id, secret, ok := r.BasicAuth()
		if !ok || id != opts.TokenID || secret != opts.TokenSecret {
			w.WriteHeader(http.StatusUnauthorized)
			return http.StatusUnauthorized
		}
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/video/v1/uploads":
		b.mu.Lock()
		fail := b.opts.FailCreates > 0
		if fail {
			b.opts.FailCreates--
		}
		b.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return http.StatusServiceUnavailable
		}
		return writeData(w, http.StatusCreated, map[string]interface{}{
			"id":      opts.UploadID,
			"url":     opts.UploadURL,
			"status":  "waiting",
			"timeout": 3600,
		})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/video/v1/uploads/"):
		if opts.MissingUpload {
			w.WriteHeader(http.StatusNotFound)
			return http.StatusNotFound
		}
		b.mu.Lock()
		fail := b.opts.FailStatusReads > 0
		if fail {
			b.opts.FailStatusReads--
		}
		b.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return http.StatusBadGateway
		}
		return writeData(w, http.StatusOK, map[string]interface{}{
			"id":       strings.TrimPrefix(path, "/video/v1/uploads/"),
			"status":   opts.UploadStatus,
			"asset_id": opts.AssetID,
		})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/video/v1/assets/"):
		playbackIDs := []map[string]string{}
		if opts.PlaybackID != "" {
			playbackIDs = append(playbackIDs, map[string]string{
				"id":     opts.PlaybackID,
				"policy": opts.PlaybackPolicy,
			})
		}
		return writeData(w, http.StatusOK, map[string]interface{}{
			"id":           strings.TrimPrefix(path, "/video/v1/assets/"),
			"status":       opts.AssetStatus,
			"playback_ids": playbackIDs,
		})
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/video/v1/assets/"):
		assetID := strings.TrimPrefix(path, "/video/v1/assets/")
		b.mu.Lock()
		b.deleted = append(b.deleted, assetID)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return http.StatusNoContent
	default:
		w.WriteHeader(http.StatusNotFound)
		return http.StatusNotFound
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		fmt.Println("providerstub: encode response:", err)
	}
	return status
}
