package api

import (
	"log/slog"
	"net/http"
	"strings"

	"clipbind/internal/auth"
	"clipbind/internal/binding"
	"clipbind/internal/config"
	"clipbind/internal/observability/metrics"
	"clipbind/internal/provider"
	"clipbind/internal/storage"
)

// Handler carries the collaborators the HTTP endpoints need.
type Handler struct {
	Provider provider.Client
	Tokens   *auth.TokenManager
	Bindings *binding.Manager
	Store    storage.Repository
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

func NewHandler(client provider.Client, tokens *auth.TokenManager, bindings *binding.Manager, store storage.Repository, cfg *config.Config) *Handler {
	if cfg == nil {
		cfg = config.New()
	}
	return &Handler{
		Provider: client,
		Tokens:   tokens,
		Bindings: bindings,
		Store:    store,
		Config:   cfg,
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

// ExtractToken pulls the upload token from the Authorization header or, for
// clients that cannot set headers, the token query parameter.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// requireUploadToken resolves and validates the upload-scoped token, writing
// the error response itself on failure.
func (h *Handler) requireUploadToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := ExtractToken(r)
	if token == "" {
		writeError(w, http.StatusForbidden, CodeBadToken, errTokenRequired)
		return "", false
	}
	subject, ok := h.Tokens.Validate(token, auth.ScopeUpload)
	if !ok {
		writeError(w, http.StatusForbidden, CodeBadToken, errTokenInvalid)
		return "", false
	}
	return subject, true
}

// requireAdminKey guards the administrative binding surface with the
// configured pbkdf2 key hash.
func (h *Handler) requireAdminKey(w http.ResponseWriter, r *http.Request) bool {
	hash := strings.TrimSpace(h.Config.AdminKeyHash)
	if hash == "" {
		writeError(w, http.StatusForbidden, CodeBadToken, errAdminDisabled)
		return false
	}
	key := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
	if key == "" || auth.VerifyAPIKey(hash, key) != nil {
		writeError(w, http.StatusForbidden, CodeBadToken, errAdminKeyInvalid)
		return false
	}
	return true
}

// Health reports liveness plus whether the storage and provider halves are
// usable, without ever exposing credential material.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "", errMethodNotAllowed)
		return
	}

	status := "ok"
	storageState := "ok"
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			storageState = "unreachable"
			status = "degraded"
		}
	} else {
		storageState = "disabled"
	}

	providerState := "ok"
	if !h.Config.Credentials().Configured() {
		providerState = "unconfigured"
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"storage":  storageState,
		"provider": providerState,
	})
}
