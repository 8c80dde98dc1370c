// Package provider defines the capability contract that every media-hosting
// backend adapter must satisfy. Callers program against Client and the
// canonical Status vocabulary; backend-specific resource models and state
// names stay inside the adapters.
package provider

import (
	"context"
	"time"
)

// Status is the canonical processing vocabulary shared by all backends.
type Status string

const (
	// StatusWaiting covers every backend state before an asset exists,
	// including states the adapter does not recognise.
	StatusWaiting Status = "waiting"
	// StatusAssetCreated means the upload produced an asset that is not yet
	// playable.
	StatusAssetCreated Status = "asset_created"
	// StatusReady means the asset finished processing and a public playback
	// identifier is available.
	StatusReady Status = "ready"
	// StatusErrored is terminal: the backend gave up on the upload or asset.
	StatusErrored Status = "errored"
)

// Terminal reports whether no further polling can change the status.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusErrored
}

// CreateUploadOptions carries the parameters for requesting a direct-upload
// slot from the backend.
type CreateUploadOptions struct {
	// CORSOrigin restricts which origin may PUT bytes to the upload URL.
	CORSOrigin string
	// PlaybackPolicy selects the playback policy for the resulting asset.
	// Adapters default to their public policy when empty.
	PlaybackPolicy string
}

// UploadHandle is the capability token returned when a direct-upload slot is
// created. The upload URL is single-use and time-boxed; the orchestrator never
// manages its lifecycle beyond handing it to the client.
type UploadHandle struct {
	UploadID  string
	UploadURL string
	// ExpiresAt is zero when the backend does not report an expiry.
	ExpiresAt time.Time
}

// UploadStatus is the normalised answer to a status poll. PlaybackID is
// populated only when Status is StatusReady; AssetID is populated as soon as
// the backend reports one.
type UploadStatus struct {
	Status     Status
	AssetID    string
	PlaybackID string
}

// Client is the capability set a backend adapter implements. Implementations
// must be safe for concurrent use and hold no per-call state.
type Client interface {
	// CreateDirectUpload requests a single-use upload slot.
	CreateDirectUpload(ctx context.Context, opts CreateUploadOptions) (UploadHandle, error)

	// GetUploadStatus resolves the processing state for an upload. Adapters
	// whose backends split uploads and assets into separate resources must
	// perform the extra lookup internally; callers never see the two-resource
	// model.
	GetUploadStatus(ctx context.Context, uploadID string) (UploadStatus, error)

	// DeleteAsset removes the remote asset. Deleting an asset that no longer
	// exists is not an error; callers treat the operation as best-effort.
	DeleteAsset(ctx context.Context, assetID string) error
}
