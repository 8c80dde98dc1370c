// Package binding commits and cleans up the durable association between a
// content record and its hosted video.
package binding

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"clipbind/internal/auth"
	"clipbind/internal/models"
	"clipbind/internal/storage"
)

// Form field names carried alongside a content-record submission.
const (
	FieldPlaybackID = "videoPlaybackId"
	FieldAssetID    = "videoAssetId"
	FieldToken      = "videoUploadToken"
)

var playbackIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

var (
	// ErrInvalidPlaybackID rejects identifiers outside the allow-list pattern.
	ErrInvalidPlaybackID = errors.New("invalid playback identifier")
	// ErrInvalidToken rejects submissions without a valid upload token.
	ErrInvalidToken = errors.New("invalid upload token")
)

// AssetDeleter is the provider capability the manager needs for cleanup.
type AssetDeleter interface {
	DeleteAsset(ctx context.Context, assetID string) error
}

// TokenValidator checks that a submission token was issued for uploads and
// retires it once the submission it authorized has been committed.
type TokenValidator interface {
	Validate(token, scope string) (string, bool)
	Revoke(token string)
}

// Submission holds the video fields captured from a content-record request
// before generic field handling discards them.
type Submission struct {
	PlaybackID string
	AssetID    string
	Token      string
}

// Empty reports whether the submission carried no video at all.
func (s Submission) Empty() bool {
	return s.PlaybackID == "" && s.AssetID == ""
}

// Manager wires token validation, binding persistence, and remote asset
// cleanup behind the content-record lifecycle hooks.
type Manager struct {
	repo     storage.Repository
	deleter  AssetDeleter
	tokens   TokenValidator
	provider string
	logger   *slog.Logger
}

// Config assembles a Manager. Repo, Deleter, and Tokens are required.
type Config struct {
	Repo     storage.Repository
	Deleter  AssetDeleter
	Tokens   TokenValidator
	Provider string
	Logger   *slog.Logger
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Repo == nil {
		return nil, errors.New("binding: repository required")
	}
	if cfg.Deleter == nil {
		return nil, errors.New("binding: asset deleter required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("binding: token validator required")
	}
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		provider = "mux"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:     cfg.Repo,
		deleter:  cfg.Deleter,
		tokens:   cfg.Tokens,
		provider: provider,
		logger:   logger,
	}, nil
}

// CaptureSubmission lifts the video fields out of a record-creation request.
// Runs before generic field stripping so the values survive to the commit
// hook.
func (m *Manager) CaptureSubmission(values url.Values) Submission {
	return Submission{
		PlaybackID: strings.TrimSpace(values.Get(FieldPlaybackID)),
		AssetID:    strings.TrimSpace(values.Get(FieldAssetID)),
		Token:      strings.TrimSpace(values.Get(FieldToken)),
	}
}

// CommitSubmission writes the binding after the content record has been
// inserted. Failures never propagate to the record itself: the record stands
// without its video, and the reason is logged.
func (m *Manager) CommitSubmission(ctx context.Context, contentID int64, sub Submission) {
	if sub.Empty() {
		return
	}
	if err := m.commit(ctx, contentID, sub); err != nil {
		m.logger.Warn("binding not committed", "contentId", contentID, "error", err)
	}
}

func (m *Manager) commit(ctx context.Context, contentID int64, sub Submission) error {
	if !playbackIDPattern.MatchString(sub.PlaybackID) {
		return ErrInvalidPlaybackID
	}
	if _, ok := m.tokens.Validate(sub.Token, auth.ScopeUpload); !ok {
		return ErrInvalidToken
	}

	binding := models.ContentVideoBinding{
		ContentID:  contentID,
		Provider:   m.provider,
		PlaybackID: sub.PlaybackID,
		AssetID:    sub.AssetID,
	}
	stored, created, err := m.repo.InsertBindingIfAbsent(ctx, binding)
	if err != nil {
		return err
	}
	if !created && stored.PlaybackID != sub.PlaybackID {
		// A concurrent submission won the insert. The losing asset stays with
		// the provider until its session cancels or an admin cleans it up.
		m.logger.Warn("duplicate submission ignored",
			"contentId", contentID,
			"boundPlaybackId", stored.PlaybackID)
	}
	// The token authorized exactly one committed submission.
	m.tokens.Revoke(sub.Token)
	return nil
}

// HandleRecordDeleted removes the binding for a permanently deleted record
// and best-effort deletes the remote asset. A record without a binding is a
// no-op and issues no remote call.
func (m *Manager) HandleRecordDeleted(ctx context.Context, contentID int64) error {
	binding, err := m.repo.GetBinding(ctx, contentID)
	if errors.Is(err, storage.ErrBindingNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if binding.AssetID != "" {
		if err := m.deleter.DeleteAsset(ctx, binding.AssetID); err != nil {
			m.logger.Warn("remote asset delete failed",
				"contentId", contentID,
				"assetId", binding.AssetID,
				"error", err)
		}
	}
	if err := m.repo.DeleteBinding(ctx, contentID); err != nil && !errors.Is(err, storage.ErrBindingNotFound) {
		return err
	}
	return nil
}

// ApplyEdit overwrites or clears a binding on behalf of an authorized
// administrative edit. An empty playbackID clears the binding; either path
// deletes the previously bound remote asset when one exists.
func (m *Manager) ApplyEdit(ctx context.Context, contentID int64, playbackID, assetID string) (models.ContentVideoBinding, error) {
	playbackID = strings.TrimSpace(playbackID)
	assetID = strings.TrimSpace(assetID)

	previous, err := m.repo.GetBinding(ctx, contentID)
	hadBinding := err == nil
	if err != nil && !errors.Is(err, storage.ErrBindingNotFound) {
		return models.ContentVideoBinding{}, err
	}

	if playbackID == "" {
		if !hadBinding {
			return models.ContentVideoBinding{}, nil
		}
		if previous.AssetID != "" {
			if err := m.deleter.DeleteAsset(ctx, previous.AssetID); err != nil {
				m.logger.Warn("remote asset delete failed",
					"contentId", contentID,
					"assetId", previous.AssetID,
					"error", err)
			}
		}
		if err := m.repo.DeleteBinding(ctx, contentID); err != nil && !errors.Is(err, storage.ErrBindingNotFound) {
			return models.ContentVideoBinding{}, err
		}
		return models.ContentVideoBinding{}, nil
	}

	if !playbackIDPattern.MatchString(playbackID) {
		return models.ContentVideoBinding{}, ErrInvalidPlaybackID
	}

	if hadBinding && previous.AssetID != "" && previous.AssetID != assetID {
		if err := m.deleter.DeleteAsset(ctx, previous.AssetID); err != nil {
			m.logger.Warn("remote asset delete failed",
				"contentId", contentID,
				"assetId", previous.AssetID,
				"error", err)
		}
	}
	return m.repo.ReplaceBinding(ctx, models.ContentVideoBinding{
		ContentID:  contentID,
		Provider:   m.provider,
		PlaybackID: playbackID,
		AssetID:    assetID,
	})
}

// PlaybackID returns the bound playback identifier for a content record, or
// ok=false when the record has no video. Pure read; no validation happens
// here because the write path already guarantees the stored value.
func (m *Manager) PlaybackID(ctx context.Context, contentID int64) (string, bool) {
	binding, err := m.repo.GetBinding(ctx, contentID)
	if err != nil {
		return "", false
	}
	return binding.PlaybackID, true
}
