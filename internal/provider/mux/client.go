// Package mux adapts the Mux Video direct-upload API to the provider
// capability contract. Mux models direct uploads and assets as separate
// resources; this adapter hides the two-hop resolution behind
// GetUploadStatus.
package mux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"clipbind/internal/provider"
)

const defaultBaseURL = "https://api.mux.com"

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Config configures the Mux adapter. TokenID and TokenSecret form the static
// credential pair sent as HTTP basic auth on every call; they are captured at
// construction time and never logged.
type Config struct {
	TokenID     string
	TokenSecret string
	BaseURL     string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client talks to one Mux account. It is stateless per call and safe for
// concurrent use.
type Client struct {
	baseURL     string
	tokenID     string
	tokenSecret string
	client      *http.Client
	logger      *slog.Logger
}

// New constructs a Mux adapter. Construction succeeds without credentials so
// the host can boot unconfigured; calls then fail with ErrNotConfigured.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		tokenID:     strings.TrimSpace(cfg.TokenID),
		tokenSecret: strings.TrimSpace(cfg.TokenSecret),
		client:      httpClient,
		logger:      logger,
	}
}

// Configured reports whether both credentials are present.
func (c *Client) Configured() bool {
	return c.tokenID != "" && c.tokenSecret != ""
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type createUploadRequest struct {
	CORSOrigin       string           `json:"cors_origin,omitempty"`
	NewAssetSettings newAssetSettings `json:"new_asset_settings"`
}

type newAssetSettings struct {
	PlaybackPolicy []string `json:"playback_policy"`
}

type uploadResource struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	AssetID string `json:"asset_id"`
	Timeout int64  `json:"timeout"`
}

type assetResource struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	PlaybackIDs []playbackID `json:"playback_ids"`
}

type playbackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// CreateDirectUpload requests a single-use upload slot restricted to the
// supplied origin.
func (c *Client) CreateDirectUpload(ctx context.Context, opts provider.CreateUploadOptions) (provider.UploadHandle, error) {
	if !c.Configured() {
		return provider.UploadHandle{}, provider.ErrNotConfigured
	}
	policy := strings.TrimSpace(opts.PlaybackPolicy)
	if policy == "" {
		policy = "public"
	}
	payload := createUploadRequest{
		CORSOrigin:       strings.TrimSpace(opts.CORSOrigin),
		NewAssetSettings: newAssetSettings{PlaybackPolicy: []string{policy}},
	}
	var upload uploadResource
	requestedAt := time.Now()
	if err := c.doJSON(ctx, http.MethodPost, "/video/v1/uploads", payload, &upload); err != nil {
		return provider.UploadHandle{}, err
	}
	if upload.ID == "" || upload.URL == "" {
		return provider.UploadHandle{}, fmt.Errorf("create direct upload: response missing id or url: %w", provider.ErrProtocol)
	}
	handle := provider.UploadHandle{UploadID: upload.ID, UploadURL: upload.URL}
	if upload.Timeout > 0 {
		handle.ExpiresAt = requestedAt.Add(time.Duration(upload.Timeout) * time.Second)
	}
	return handle, nil
}

// GetUploadStatus resolves the upload and, when the upload has produced an
// asset whose playback identifiers are not embedded in the upload resource,
// follows up with an asset lookup. Ready is reported only when the asset
// itself is ready and carries a public playback identifier.
func (c *Client) GetUploadStatus(ctx context.Context, uploadID string) (provider.UploadStatus, error) {
	uploadID = strings.TrimSpace(uploadID)
	if uploadID == "" || !identifierPattern.MatchString(uploadID) {
		return provider.UploadStatus{}, fmt.Errorf("get upload status: %w", provider.ErrInvalidIdentifier)
	}
	if !c.Configured() {
		return provider.UploadStatus{}, provider.ErrNotConfigured
	}

	var upload uploadResource
	if err := c.doJSON(ctx, http.MethodGet, "/video/v1/uploads/"+uploadID, nil, &upload); err != nil {
		return provider.UploadStatus{}, err
	}

	status := provider.UploadStatus{Status: mapUploadStatus(upload.Status), AssetID: upload.AssetID}
	if status.Status != provider.StatusAssetCreated || upload.AssetID == "" {
		return status, nil
	}

	var asset assetResource
	if err := c.doJSON(ctx, http.MethodGet, "/video/v1/assets/"+upload.AssetID, nil, &asset); err != nil {
		return provider.UploadStatus{}, err
	}
	switch mapAssetStatus(asset.Status) {
	case provider.StatusErrored:
		status.Status = provider.StatusErrored
	case provider.StatusReady:
		playback := publicPlaybackID(asset.PlaybackIDs)
		if playback != "" {
			status.Status = provider.StatusReady
			status.PlaybackID = playback
		}
		// Ready without a public playback identifier stays asset_created:
		// the media is not playable by the application yet.
	}
	return status, nil
}

// DeleteAsset removes the asset. A 404 from the backend counts as success so
// cleanup stays idempotent for callers.
func (c *Client) DeleteAsset(ctx context.Context, assetID string) error {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" || !identifierPattern.MatchString(assetID) {
		return fmt.Errorf("delete asset: %w", provider.ErrInvalidIdentifier)
	}
	if !c.Configured() {
		return provider.ErrNotConfigured
	}
	err := c.doJSON(ctx, http.MethodDelete, "/video/v1/assets/"+assetID, nil, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// notFoundError marks a 404, keeping the missing path for the message while
// unwrapping to the portable sentinel.
type notFoundError struct{ path string }

func (e *notFoundError) Error() string { return fmt.Sprintf("%s: not found", e.path) }

func (e *notFoundError) Unwrap() error { return provider.ErrNotFound }

func isNotFound(err error) bool {
	return errors.Is(err, provider.ErrNotFound)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, dest interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, provider.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if dest == nil {
			return nil
		}
		var envelope dataEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, provider.ErrProtocol)
		}
		if len(envelope.Data) == 0 {
			return fmt.Errorf("%s %s: response missing data: %w", method, path, provider.ErrProtocol)
		}
		if err := json.Unmarshal(envelope.Data, dest); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, provider.ErrProtocol)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		drain(resp.Body)
		return &notFoundError{path: path}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		drain(resp.Body)
		c.logger.Warn("mux authentication rejected", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%s %s: %s: %w", method, path, resp.Status, provider.ErrUnavailable)
	case resp.StatusCode >= 500:
		drain(resp.Body)
		return fmt.Errorf("%s %s: %s: %w", method, path, resp.Status, provider.ErrUnavailable)
	default:
		message := readErrorBody(resp.Body)
		return fmt.Errorf("%s %s: %s: %s: %w", method, path, resp.Status, message, provider.ErrProtocol)
	}
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
}

func readErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return strings.TrimSpace(string(data))
}
