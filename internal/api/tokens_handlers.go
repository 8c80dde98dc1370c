package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"clipbind/internal/auth"
)

type issueTokenRequest struct {
	Subject string `json:"subject"`
}

type issueTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// UploadTokens handles POST /api/upload-tokens. Tokens authorize one upload
// flow and expire on their own; when guest access is disabled issuance
// requires the admin key.
func (h *Handler) UploadTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "", errMethodNotAllowed)
		return
	}
	if !h.Config.Enabled {
		writeError(w, http.StatusForbidden, CodeFeatureDisabled, errFeatureDisabled)
		return
	}
	if !h.Config.GuestAccess {
		if !h.requireAdminKey(w, r) {
			return
		}
	}

	subject := "guest"
	if r.Body != nil && r.ContentLength != 0 {
		var req issueTokenRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, CodeMissingParam, fmt.Errorf("decode request: %w", err))
			return
		}
		if s := strings.TrimSpace(req.Subject); s != "" {
			subject = s
		}
	}

	token, expiresAt, err := h.Tokens.Issue(subject, auth.ScopeUpload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", fmt.Errorf("issue token: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, issueTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}
