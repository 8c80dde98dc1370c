package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"clipbind/internal/binding"
)

type bindingResponse struct {
	ContentID  int64  `json:"contentId"`
	PlaybackID string `json:"playbackId"`
}

type editBindingRequest struct {
	PlaybackID string `json:"playbackId"`
	AssetID    string `json:"assetId"`
}

// BindingByID dispatches /api/bindings/{contentId}:
//
//	GET    reads the binding for the rendering collaborator.
//	POST   commits the submitted video fields after record creation.
//	PUT    overwrites or clears the binding (admin only).
//	DELETE cleans up after record deletion, including the remote asset.
func (h *Handler) BindingByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/bindings/"), "/")
	contentID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || contentID <= 0 {
		writeError(w, http.StatusBadRequest, CodeMissingParam, fmt.Errorf("invalid content id %q", rest))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getBinding(w, r, contentID)
	case http.MethodPost:
		h.commitBinding(w, r, contentID)
	case http.MethodPut:
		h.editBinding(w, r, contentID)
	case http.MethodDelete:
		h.deleteBinding(w, r, contentID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "", errMethodNotAllowed)
	}
}

func (h *Handler) getBinding(w http.ResponseWriter, r *http.Request, contentID int64) {
	playbackID, ok := h.Bindings.PlaybackID(r.Context(), contentID)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, fmt.Errorf("content %d has no video", contentID))
		return
	}
	writeJSON(w, http.StatusOK, bindingResponse{ContentID: contentID, PlaybackID: playbackID})
}

// commitBinding is the "after record insert" hook. The record already exists;
// a failed or missing video never fails the request, so the response is 204
// regardless of whether a binding was written.
func (h *Handler) commitBinding(w http.ResponseWriter, r *http.Request, contentID int64) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParam, fmt.Errorf("parse form: %w", err))
		return
	}
	sub := h.Bindings.CaptureSubmission(r.PostForm)
	h.Bindings.CommitSubmission(r.Context(), contentID, sub)
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) editBinding(w http.ResponseWriter, r *http.Request, contentID int64) {
	if !h.requireAdminKey(w, r) {
		return
	}
	var req editBindingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingParam, fmt.Errorf("decode request: %w", err))
		return
	}

	updated, err := h.Bindings.ApplyEdit(r.Context(), contentID, req.PlaybackID, req.AssetID)
	if errors.Is(err, binding.ErrInvalidPlaybackID) {
		writeError(w, http.StatusBadRequest, CodeMissingParam, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}
	if updated.PlaybackID == "" {
		writeJSON(w, http.StatusNoContent, nil)
		return
	}
	writeJSON(w, http.StatusOK, bindingResponse{ContentID: contentID, PlaybackID: updated.PlaybackID})
}

func (h *Handler) deleteBinding(w http.ResponseWriter, r *http.Request, contentID int64) {
	if !h.requireAdminKey(w, r) {
		return
	}
	if err := h.Bindings.HandleRecordDeleted(r.Context(), contentID); err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
