package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"clipbind/internal/auth"
	"clipbind/internal/binding"
	"clipbind/internal/config"
	"clipbind/internal/provider/mux"
	"clipbind/internal/storage"
	"clipbind/internal/testsupport/providerstub"
)

const (
	testTokenID     = "token-id"
	testTokenSecret = "token-secret"
	testAdminKey    = "admin-key"
)

type testEnv struct {
	handler *Handler
	backend *providerstub.Backend
	token   string
}

func newTestEnv(t *testing.T, opts providerstub.Options) *testEnv {
	t.Helper()

	if opts.TokenID == "" {
		opts.TokenID = testTokenID
		opts.TokenSecret = testTokenSecret
	}
	backend := providerstub.New(opts)
	t.Cleanup(backend.Close)

	client := mux.New(mux.Config{
		TokenID:     testTokenID,
		TokenSecret: testTokenSecret,
		BaseURL:     backend.URL(),
	})

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}

	tokens := auth.NewTokenManager()
	manager, err := binding.NewManager(binding.Config{
		Repo:    store,
		Deleter: client,
		Tokens:  tokens,
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	adminHash, err := auth.HashAPIKey(testAdminKey)
	if err != nil {
		t.Fatalf("HashAPIKey returned error: %v", err)
	}
	cfg := config.New()
	cfg.GuestAccess = true
	cfg.CORSOrigin = "https://example.test"
	cfg.AdminKeyHash = adminHash
	cfg.SetCredentials(config.Credentials{TokenID: testTokenID, TokenSecret: testTokenSecret})

	token, _, err := tokens.Issue("tester", auth.ScopeUpload)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	return &testEnv{
		handler: NewHandler(client, tokens, manager, store, cfg),
		backend: backend,
		token:   token,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, authorize bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorize {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	switch {
	case path == "/api/uploads":
		e.handler.Uploads(rec, req)
	case strings.HasPrefix(path, "/api/uploads/"):
		e.handler.UploadByID(rec, req)
	case path == "/api/upload-tokens":
		e.handler.UploadTokens(rec, req)
	case strings.HasPrefix(path, "/api/bindings/"):
		e.handler.BindingByID(rec, req)
	default:
		t.Fatalf("no handler for %s", path)
	}
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestCreateUpload(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{UploadID: "up-1"})

	rec := env.do(t, http.MethodPost, "/api/uploads", `{"fileName":"clip.mp4","fileSize":1024}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp createUploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UploadID != "up-1" {
		t.Fatalf("uploadId = %q, want %q", resp.UploadID, "up-1")
	}
	if resp.UploadURL == "" {
		t.Fatalf("uploadUrl missing from response")
	}
}

func TestCreateUploadRejectsOversizedFile(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})
	env.handler.Config.MaxUploadBytes = 100

	rec := env.do(t, http.MethodPost, "/api/uploads", `{"fileName":"clip.mp4","fileSize":101}`, true)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if resp := decodeError(t, rec); resp.Code != CodeTooLarge {
		t.Fatalf("code = %q, want %q", resp.Code, CodeTooLarge)
	}
	if calls := env.backend.Calls(); len(calls) != 0 {
		t.Fatalf("provider called for rejected upload: %v", calls)
	}
}

func TestCreateUploadRejectsNonVideo(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})

	rec := env.do(t, http.MethodPost, "/api/uploads", `{"fileName":"notes.txt","fileSize":10}`, true)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnsupportedMediaType)
	}
	if resp := decodeError(t, rec); resp.Code != CodeInvalidType {
		t.Fatalf("code = %q, want %q", resp.Code, CodeInvalidType)
	}
}

func TestCreateUploadWithoutCredentials(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})
	env.handler.Config.SetCredentials(config.Credentials{})

	rec := env.do(t, http.MethodPost, "/api/uploads", `{"fileName":"clip.mp4","fileSize":10}`, true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if resp := decodeError(t, rec); resp.Code != CodeNoCredentials {
		t.Fatalf("code = %q, want %q", resp.Code, CodeNoCredentials)
	}
}

func TestCreateUploadRequiresToken(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})

	rec := env.do(t, http.MethodPost, "/api/uploads", `{"fileName":"clip.mp4","fileSize":10}`, false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if resp := decodeError(t, rec); resp.Code != CodeBadToken {
		t.Fatalf("code = %q, want %q", resp.Code, CodeBadToken)
	}
}

func TestCreateUploadFeatureDisabled(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})
	env.handler.Config.Enabled = false

	rec := env.do(t, http.MethodPost, "/api/uploads", `{"fileName":"clip.mp4","fileSize":10}`, true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if resp := decodeError(t, rec); resp.Code != CodeFeatureDisabled {
		t.Fatalf("code = %q, want %q", resp.Code, CodeFeatureDisabled)
	}
}

func TestCreateUploadProviderDown(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{FailCreates: 1})

	rec := env.do(t, http.MethodPost, "/api/uploads", `{"fileName":"clip.mp4","fileSize":10}`, true)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if resp := decodeError(t, rec); resp.Code != CodeProviderError {
		t.Fatalf("code = %q, want %q", resp.Code, CodeProviderError)
	}
}

func TestUploadStatusSuppressesPlaybackIDUntilReady(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})
	env.backend.SetUploadState("asset_created", "asset-1", "preparing", "")

	rec := env.do(t, http.MethodGet, "/api/uploads/up-1/status", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp uploadStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "asset_created" {
		t.Fatalf("status = %q, want %q", resp.Status, "asset_created")
	}
	if resp.PlaybackID != "" {
		t.Fatalf("playbackId leaked before ready: %q", resp.PlaybackID)
	}

	env.backend.SetUploadState("asset_created", "asset-1", "ready", "play-1")
	rec = env.do(t, http.MethodGet, "/api/uploads/up-1/status", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	resp = uploadStatusResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ready" || resp.PlaybackID != "play-1" {
		t.Fatalf("status = %q playbackId = %q, want ready/play-1", resp.Status, resp.PlaybackID)
	}
}

func TestDeleteUpload(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})
	// The client cancels with the upload id it holds; the handler must
	// resolve and delete the asset that upload produced.
	env.backend.SetUploadState("asset_created", "asset-9", "preparing", "")

	rec := env.do(t, http.MethodDelete, "/api/uploads/up-9", "", true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	if deleted := env.backend.DeletedAssets(); len(deleted) != 1 || deleted[0] != "asset-9" {
		t.Fatalf("deleted assets = %v, want [asset-9]", deleted)
	}
}

func TestDeleteUploadBeforeAssetExists(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})
	env.backend.SetUploadState("waiting", "", "", "")

	rec := env.do(t, http.MethodDelete, "/api/uploads/up-9", "", true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	if deleted := env.backend.DeletedAssets(); len(deleted) != 0 {
		t.Fatalf("deleted assets = %v, want none", deleted)
	}
}

func TestDeleteUploadUnknownUploadIsIdempotent(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{MissingUpload: true})

	rec := env.do(t, http.MethodDelete, "/api/uploads/up-gone", "", true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	if deleted := env.backend.DeletedAssets(); len(deleted) != 0 {
		t.Fatalf("deleted assets = %v, want none", deleted)
	}
}

func TestDeleteUploadFeatureDisabled(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})
	env.handler.Config.Enabled = false

	rec := env.do(t, http.MethodDelete, "/api/uploads/up-9", "", true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if resp := decodeError(t, rec); resp.Code != CodeFeatureDisabled {
		t.Fatalf("code = %q, want %q", resp.Code, CodeFeatureDisabled)
	}
}

func TestIssueUploadToken(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})

	rec := env.do(t, http.MethodPost, "/api/upload-tokens", "", false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp issueTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("token missing from response")
	}
	if _, ok := env.handler.Tokens.Validate(resp.Token, auth.ScopeUpload); !ok {
		t.Fatalf("issued token failed validation")
	}
}

func TestIssueUploadTokenGuestsForbidden(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})
	env.handler.Config.GuestAccess = false

	rec := env.do(t, http.MethodPost, "/api/upload-tokens", "", false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload-tokens", strings.NewReader(""))
	req.Header.Set("X-Admin-Key", testAdminKey)
	admin := httptest.NewRecorder()
	env.handler.UploadTokens(admin, req)
	if admin.Code != http.StatusCreated {
		t.Fatalf("admin issuance status = %d, want %d: %s", admin.Code, http.StatusCreated, admin.Body.String())
	}
}

func TestBindingLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})

	rec := env.do(t, http.MethodGet, "/api/bindings/42", "", false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	form := url.Values{}
	form.Set(binding.FieldPlaybackID, "play-1")
	form.Set(binding.FieldAssetID, "asset-1")
	form.Set(binding.FieldToken, env.token)
	req := httptest.NewRequest(http.MethodPost, "/api/bindings/42", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	commit := httptest.NewRecorder()
	env.handler.BindingByID(commit, req)
	if commit.Code != http.StatusNoContent {
		t.Fatalf("commit status = %d, want %d", commit.Code, http.StatusNoContent)
	}

	rec = env.do(t, http.MethodGet, "/api/bindings/42", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var bound bindingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &bound); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if bound.PlaybackID != "play-1" {
		t.Fatalf("playbackId = %q, want %q", bound.PlaybackID, "play-1")
	}
}

func TestBindingAdminEditAndDelete(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})

	// Edit without the admin key is rejected.
	rec := env.do(t, http.MethodPut, "/api/bindings/7", `{"playbackId":"play-2","assetId":"asset-2"}`, false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unauthenticated edit status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	edit := httptest.NewRequest(http.MethodPut, "/api/bindings/7", strings.NewReader(`{"playbackId":"play-2","assetId":"asset-2"}`))
	edit.Header.Set("X-Admin-Key", testAdminKey)
	editRec := httptest.NewRecorder()
	env.handler.BindingByID(editRec, edit)
	if editRec.Code != http.StatusOK {
		t.Fatalf("edit status = %d, want %d: %s", editRec.Code, http.StatusOK, editRec.Body.String())
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/bindings/7", nil)
	del.Header.Set("X-Admin-Key", testAdminKey)
	delRec := httptest.NewRecorder()
	env.handler.BindingByID(delRec, del)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", delRec.Code, http.StatusNoContent)
	}
	if deleted := env.backend.DeletedAssets(); len(deleted) != 1 || deleted[0] != "asset-2" {
		t.Fatalf("deleted assets = %v, want [asset-2]", deleted)
	}

	rec = env.do(t, http.MethodGet, "/api/bindings/7", "", false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, providerstub.Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.handler.Health(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("health status = %q, want %q", resp["status"], "ok")
	}
}
