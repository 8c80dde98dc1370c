package api

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"clipbind/internal/provider"
)

type createUploadRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

type createUploadResponse struct {
	UploadID  string `json:"uploadId"`
	UploadURL string `json:"uploadUrl"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type uploadStatusResponse struct {
	Status     string `json:"status"`
	AssetID    string `json:"assetId,omitempty"`
	PlaybackID string `json:"playbackId,omitempty"`
}

// Uploads handles POST /api/uploads: validates the declared file against the
// local policies, then requests a direct-upload slot from the provider.
func (h *Handler) Uploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "", errMethodNotAllowed)
		return
	}
	if !h.Config.Enabled {
		writeError(w, http.StatusForbidden, CodeFeatureDisabled, errFeatureDisabled)
		return
	}
	if _, ok := h.requireUploadToken(w, r); !ok {
		return
	}

	var req createUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParam, fmt.Errorf("decode request: %w", err))
		return
	}

	// Normalize before validating so decomposed unicode names compare and log
	// consistently.
	fileName := norm.NFC.String(strings.TrimSpace(req.FileName))
	if fileName == "" {
		writeError(w, http.StatusBadRequest, CodeMissingParam, errors.New("fileName is required"))
		return
	}
	if req.FileSize <= 0 {
		writeError(w, http.StatusBadRequest, CodeMissingParam, errors.New("fileSize is required"))
		return
	}
	if req.FileSize > h.Config.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, CodeTooLarge,
			fmt.Errorf("file exceeds %d byte limit", h.Config.MaxUploadBytes))
		return
	}
	if !isVideoType(req.MimeType, fileName) {
		writeError(w, http.StatusUnsupportedMediaType, CodeInvalidType,
			fmt.Errorf("file %q is not a video", fileName))
		return
	}
	if !h.Config.Credentials().Configured() {
		writeError(w, http.StatusServiceUnavailable, CodeNoCredentials,
			errors.New("provider credentials are not configured"))
		return
	}

	h.recorder().ObserveProviderAttempt("create_upload")
	handle, err := h.Provider.CreateDirectUpload(r.Context(), provider.CreateUploadOptions{
		CORSOrigin: h.Config.CORSOrigin,
	})
	if err != nil {
		h.recorder().ObserveProviderFailure("create_upload")
		h.writeProviderError(w, err)
		return
	}
	h.recorder().UploadStarted()

	resp := createUploadResponse{UploadID: handle.UploadID, UploadURL: handle.UploadURL}
	if !handle.ExpiresAt.IsZero() {
		resp.ExpiresAt = handle.ExpiresAt.UTC().Format(time.RFC3339)
	}
	h.logger().Info("direct upload created",
		"uploadId", handle.UploadID,
		"fileName", fileName,
		"fileSize", req.FileSize)
	writeJSON(w, http.StatusCreated, resp)
}

// UploadByID dispatches GET /api/uploads/{id}/status and
// DELETE /api/uploads/{id}.
func (h *Handler) UploadByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/uploads/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "status":
		h.uploadStatus(w, r, parts[0])
	case r.Method == http.MethodDelete && len(parts) == 1:
		h.deleteUpload(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, CodeNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	}
}

func (h *Handler) uploadStatus(w http.ResponseWriter, r *http.Request, uploadID string) {
	if !h.Config.Enabled {
		writeError(w, http.StatusForbidden, CodeFeatureDisabled, errFeatureDisabled)
		return
	}
	if _, ok := h.requireUploadToken(w, r); !ok {
		return
	}
	if strings.TrimSpace(uploadID) == "" {
		writeError(w, http.StatusBadRequest, CodeMissingParam, errors.New("upload id is required"))
		return
	}

	h.recorder().ObserveProviderAttempt("upload_status")
	status, err := h.Provider.GetUploadStatus(r.Context(), uploadID)
	if err != nil {
		h.recorder().ObserveProviderFailure("upload_status")
		h.writeProviderError(w, err)
		return
	}

	switch status.Status {
	case provider.StatusReady:
		h.recorder().UploadFinished("ready")
	case provider.StatusErrored:
		h.recorder().UploadFinished("errored")
	}

	resp := uploadStatusResponse{Status: string(status.Status), AssetID: status.AssetID}
	// The playback id must never be observable before the asset is confirmed
	// ready, not even transiently.
	if status.Status == provider.StatusReady {
		resp.PlaybackID = status.PlaybackID
	}
	writeJSON(w, http.StatusOK, resp)
}

// deleteUpload resolves the upload to its asset before deleting, since the
// cancelling client only ever holds the upload id. An upload the backend no
// longer knows, or one that never produced an asset, counts as cleaned up.
func (h *Handler) deleteUpload(w http.ResponseWriter, r *http.Request, uploadID string) {
	if !h.Config.Enabled {
		writeError(w, http.StatusForbidden, CodeFeatureDisabled, errFeatureDisabled)
		return
	}
	if _, ok := h.requireUploadToken(w, r); !ok {
		return
	}
	if strings.TrimSpace(uploadID) == "" {
		writeError(w, http.StatusBadRequest, CodeMissingParam, errors.New("upload id is required"))
		return
	}

	h.recorder().ObserveProviderAttempt("delete_asset")
	status, err := h.Provider.GetUploadStatus(r.Context(), uploadID)
	switch {
	case errors.Is(err, provider.ErrNotFound):
		// Nothing left to clean up.
	case err != nil:
		h.recorder().ObserveProviderFailure("delete_asset")
		h.writeProviderError(w, err)
		return
	case status.AssetID != "":
		if err := h.Provider.DeleteAsset(r.Context(), status.AssetID); err != nil {
			h.recorder().ObserveProviderFailure("delete_asset")
			h.writeProviderError(w, err)
			return
		}
	}
	h.recorder().UploadFinished("cancelled")
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) writeProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, CodeNoCredentials, err)
	case errors.Is(err, provider.ErrInvalidIdentifier):
		writeError(w, http.StatusBadRequest, CodeMissingParam, err)
	case errors.Is(err, provider.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err)
	case errors.Is(err, provider.ErrUnavailable), errors.Is(err, provider.ErrProtocol):
		writeError(w, http.StatusBadGateway, CodeProviderError, err)
	default:
		writeError(w, http.StatusInternalServerError, CodeProviderError, err)
	}
}

func isVideoType(declared, fileName string) bool {
	mimeType := strings.TrimSpace(declared)
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(fileName))
	}
	return strings.HasPrefix(strings.ToLower(mimeType), "video/")
}
