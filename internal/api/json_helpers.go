package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error codes surfaced to clients alongside the HTTP status.
const (
	CodeTooLarge        = "tooLarge"
	CodeInvalidType     = "invalidType"
	CodeNoCredentials   = "noCredentials"
	CodeRateLimited     = "rateLimited"
	CodeBadToken        = "badToken"
	CodeMissingParam    = "missingParam"
	CodeProviderError   = "providerError"
	CodeFeatureDisabled = "featureDisabled"
	CodeNotFound        = "notFound"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// WriteError is an exported helper for returning JSON API errors.
func WriteError(w http.ResponseWriter, status int, code string, err error) {
	writeError(w, status, code, err)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
