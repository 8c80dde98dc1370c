// Package models holds the durable data shapes shared across the storage
// drivers and the API layer.
package models

import "time"

// ContentVideoBinding associates one content record with the playback
// identifier of a confirmed-ready asset. A record has zero or one binding;
// the binding is written once at record creation and mutated only by an
// authorized administrative edit.
type ContentVideoBinding struct {
	ContentID  int64     `json:"contentId"`
	Provider   string    `json:"provider"`
	PlaybackID string    `json:"playbackId"`
	AssetID    string    `json:"assetId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
