package mux

import "clipbind/internal/provider"

// mapUploadStatus normalises the direct-upload resource states. Unknown and
// initial states collapse into waiting; every flavour of backend failure
// collapses into errored.
func mapUploadStatus(status string) provider.Status {
	switch status {
	case "asset_created":
		return provider.StatusAssetCreated
	case "errored", "cancelled", "timed_out":
		return provider.StatusErrored
	default:
		return provider.StatusWaiting
	}
}

// mapAssetStatus normalises the asset resource states. "preparing" and
// anything unrecognised map to asset_created because the asset exists but is
// not playable.
func mapAssetStatus(status string) provider.Status {
	switch status {
	case "ready":
		return provider.StatusReady
	case "errored":
		return provider.StatusErrored
	default:
		return provider.StatusAssetCreated
	}
}

// publicPlaybackID returns the first playback identifier carried under a
// public policy. Additional playback policies are ignored: exactly one
// identifier is ever surfaced to the application.
func publicPlaybackID(ids []playbackID) string {
	for _, candidate := range ids {
		if candidate.Policy == "public" && candidate.ID != "" {
			return candidate.ID
		}
	}
	return ""
}
