package mux

import (
	"testing"

	"clipbind/internal/provider"
)

func TestMapUploadStatus(t *testing.T) {
	cases := map[string]provider.Status{
		"waiting":       provider.StatusWaiting,
		"":              provider.StatusWaiting,
		"something_new": provider.StatusWaiting,
		"asset_created": provider.StatusAssetCreated,
		"errored":       provider.StatusErrored,
		"cancelled":     provider.StatusErrored,
		"timed_out":     provider.StatusErrored,
	}
	for input, want := range cases {
		if got := mapUploadStatus(input); got != want {
			t.Errorf("mapUploadStatus(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestMapAssetStatus(t *testing.T) {
	cases := map[string]provider.Status{
		"preparing": provider.StatusAssetCreated,
		"":          provider.StatusAssetCreated,
		"ready":     provider.StatusReady,
		"errored":   provider.StatusErrored,
	}
	for input, want := range cases {
		if got := mapAssetStatus(input); got != want {
			t.Errorf("mapAssetStatus(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPublicPlaybackID(t *testing.T) {
	ids := []playbackID{
		{ID: "signed-1", Policy: "signed"},
		{ID: "pub-1", Policy: "public"},
		{ID: "pub-2", Policy: "public"},
	}
	if got := publicPlaybackID(ids); got != "pub-1" {
		t.Fatalf("publicPlaybackID = %q, want pub-1", got)
	}
	if got := publicPlaybackID([]playbackID{{ID: "signed-1", Policy: "signed"}}); got != "" {
		t.Fatalf("publicPlaybackID without public policy = %q, want empty", got)
	}
	if got := publicPlaybackID(nil); got != "" {
		t.Fatalf("publicPlaybackID(nil) = %q, want empty", got)
	}
}
