// Package session implements the client-held upload state machine: file
// selection, slot acquisition, direct binary transfer, and bounded status
// polling. A Session is ephemeral; it is never persisted and all state needed
// to resume lives in the upload identifier it carries.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"clipbind/internal/provider"
)

// Validation and outcome errors surfaced to the user. ErrPollTimeout is
// distinct from ErrProcessingFailed so callers can suggest retrying the whole
// upload instead of implying the video itself failed.
var (
	ErrNotVideo         = errors.New("selected file is not a video")
	ErrTooLarge         = errors.New("selected file exceeds the size limit")
	ErrProcessingFailed = errors.New("video processing failed")
	ErrPollTimeout      = errors.New("video processing timed out")
	ErrBadState         = errors.New("operation not allowed in current state")
)

const (
	defaultPollInterval    = 3 * time.Second
	defaultMaxPollAttempts = 60
)

// FileInfo describes the locally selected file.
type FileInfo struct {
	Name string
	Size int64
	// MIMEType is the client-declared content type.
	MIMEType string
}

// SlotRequester obtains a direct-upload handle from the orchestrating
// service.
type SlotRequester interface {
	RequestSlot(ctx context.Context, file FileInfo) (provider.UploadHandle, error)
}

// Transport moves the file bytes straight to the upload URL, bypassing the
// orchestrating service. Implementations report progress as bytes sent over
// bytes total; the session clamps the derived percentage so observers only
// ever see it grow.
type Transport interface {
	Upload(ctx context.Context, uploadURL string, body io.Reader, size int64, progress func(sent int64)) error
}

// StatusPoller answers one status query for an upload identifier.
type StatusPoller interface {
	PollStatus(ctx context.Context, uploadID string) (provider.UploadStatus, error)
}

// Cleaner requests best-effort remote deletion when the user cancels. The
// receiving side resolves the upload to whatever asset it produced, so the
// session only ever hands over the upload identifier.
type Cleaner interface {
	RequestDelete(ctx context.Context, uploadID string) error
}

// Config wires a Session to its collaborators.
type Config struct {
	Slots     SlotRequester
	Transport Transport
	Poller    StatusPoller
	// Cleanup is optional; when nil, cancellation skips remote deletion.
	Cleanup Cleaner

	// MaxFileSize bounds Select; zero disables the local size check.
	MaxFileSize int64
	// PollInterval and MaxPollAttempts bound the Processing phase. Their
	// product is the hard timeout.
	PollInterval    time.Duration
	MaxPollAttempts int

	Logger *slog.Logger
}

// Session drives one upload from file selection to a playable asset.
// Transitions are strictly sequential: a new poll is never issued while a
// previous one is outstanding. Cancel may be called from another goroutine;
// everything else is single-flight.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	file       FileInfo
	uploadID   string
	assetID    string
	playbackID string
	attempts   int
	progress   int
	reason     error
	abort      context.CancelFunc

	// sleep is a seam for tests; it must honour context cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates the collaborator set and returns an idle session.
func New(cfg Config) (*Session, error) {
	if cfg.Slots == nil || cfg.Transport == nil || cfg.Poller == nil {
		return nil, errors.New("session requires slot requester, transport, and poller")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		logger: logger,
		state:  StateIdle,
		sleep:  sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Select records the chosen file after validating it against the two local
// policies: the declared MIME type must indicate video and the size must not
// exceed the configured ceiling. On a validation failure the machine stays in
// (or returns to) Idle and no network call is made. Selecting from a terminal
// state restarts the machine.
func (s *Session) Select(file FileInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle && !s.state.Terminal() {
		return fmt.Errorf("select while %s: %w", s.state, ErrBadState)
	}
	s.resetLocked()

	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(file.MIMEType)), "video/") {
		return fmt.Errorf("%s: %w", file.MIMEType, ErrNotVideo)
	}
	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return fmt.Errorf("%d bytes: %w", file.Size, ErrTooLarge)
	}

	s.file = file
	s.moveLocked(StateSelected)
	return nil
}

// Upload runs the machine from Selected to a terminal state: it requests an
// upload slot, transfers the bytes, then polls until the asset is playable,
// fails, or the attempt ceiling is reached. It returns nil exactly when the
// session ends in Ready.
func (s *Session) Upload(ctx context.Context, body io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.state != StateSelected {
		s.mu.Unlock()
		return fmt.Errorf("upload while %s: %w", s.state, ErrBadState)
	}
	s.moveLocked(StateRequestingSlot)
	s.abort = cancel
	file := s.file
	s.mu.Unlock()

	handle, err := s.cfg.Slots.RequestSlot(ctx, file)
	if err != nil {
		return s.fail(fmt.Errorf("request upload slot: %w", err))
	}

	s.mu.Lock()
	if s.state != StateRequestingSlot {
		// Cancelled while the slot request was in flight.
		reason := s.reason
		s.mu.Unlock()
		return reason
	}
	s.uploadID = handle.UploadID
	s.moveLocked(StateTransferring)
	s.mu.Unlock()

	if err := s.cfg.Transport.Upload(ctx, handle.UploadURL, body, file.Size, s.observeProgress(file.Size)); err != nil {
		if s.State() == StateCancelled {
			return s.failureReason()
		}
		return s.fail(fmt.Errorf("transfer: %w", err))
	}
	s.setProgress(100)

	s.mu.Lock()
	if s.state != StateTransferring {
		s.mu.Unlock()
		return s.failureReason()
	}
	s.moveLocked(StateProcessing)
	s.mu.Unlock()

	return s.poll(ctx)
}

// poll issues status queries on a fixed interval until the upload resolves or
// the attempt ceiling produces a hard timeout. Each attempt waits one full
// interval before querying, so a stuck upload times out after exactly
// MaxPollAttempts times PollInterval of waiting.
func (s *Session) poll(ctx context.Context) error {
	for attempt := 1; attempt <= s.cfg.MaxPollAttempts; attempt++ {
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			if s.State() == StateCancelled {
				return s.failureReason()
			}
			return s.fail(err)
		}

		s.mu.Lock()
		if s.state != StateProcessing {
			s.mu.Unlock()
			return s.failureReason()
		}
		s.attempts = attempt
		uploadID := s.uploadID
		s.mu.Unlock()

		status, err := s.cfg.Poller.PollStatus(ctx, uploadID)
		if err != nil {
			return s.fail(fmt.Errorf("poll status: %w", err))
		}

		switch status.Status {
		case provider.StatusReady:
			s.mu.Lock()
			if s.state != StateProcessing {
				s.mu.Unlock()
				return s.failureReason()
			}
			s.assetID = status.AssetID
			s.playbackID = status.PlaybackID
			s.moveLocked(StateReady)
			s.mu.Unlock()
			s.logger.Info("upload ready", "upload_id", uploadID, "attempts", attempt)
			return nil
		case provider.StatusErrored:
			return s.fail(fmt.Errorf("upload %s: %w", uploadID, ErrProcessingFailed))
		default:
			s.mu.Lock()
			if status.AssetID != "" {
				s.assetID = status.AssetID
			}
			s.mu.Unlock()
		}

	}
	return s.fail(fmt.Errorf("no result after %d polls: %w", s.cfg.MaxPollAttempts, ErrPollTimeout))
}

// Cancel aborts whatever is in flight, stops polling, and best-effort
// requests remote deletion of the known upload. It is a no-op once the
// machine is terminal.
func (s *Session) Cancel(ctx context.Context) {
	s.mu.Lock()
	if s.state.Terminal() || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.moveLocked(StateCancelled)
	s.reason = context.Canceled
	abort := s.abort
	uploadID := s.uploadID
	s.mu.Unlock()

	if abort != nil {
		abort()
	}
	if uploadID != "" && s.cfg.Cleanup != nil {
		if err := s.cfg.Cleanup.RequestDelete(ctx, uploadID); err != nil {
			s.logger.Warn("cancel cleanup failed", "upload_id", uploadID, "error", err)
		}
	}
}

// CanSubmit reports whether the surrounding form may be submitted: true when
// the session holds a confirmed-ready video or no video at all, false for the
// whole in-flight span.
func (s *Session) CanSubmit() bool {
	return !s.State().InFlight()
}

// PlaybackID returns the playback identifier and true only when the session
// reached Ready. This is the only value ever submitted downstream.
func (s *Session) PlaybackID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return "", false
	}
	return s.playbackID, true
}

// AssetID returns the asset identifier once the provider has reported one.
func (s *Session) AssetID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assetID
}

// UploadID returns the provider-issued upload identifier, if any.
func (s *Session) UploadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the transfer percentage, monotonically non-decreasing.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Err returns the reason the session left the happy path, if it did.
func (s *Session) Err() error {
	return s.failureReason()
}

// Attempts returns how many status polls have been issued.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Session) fail(reason error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return s.reason
	}
	s.moveLocked(StateErrored)
	s.reason = reason
	return reason
}

// moveLocked applies a transition after checking it against the lifecycle
// table. Callers hold s.mu and have already ruled out terminal states, so a
// rejected move indicates a programming error; the state is left untouched.
func (s *Session) moveLocked(to State) {
	if canTransition(s.state, to) {
		s.state = to
	}
}

func (s *Session) failureReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) resetLocked() {
	s.file = FileInfo{}
	s.uploadID = ""
	s.assetID = ""
	s.playbackID = ""
	s.attempts = 0
	s.progress = 0
	s.reason = nil
	s.abort = nil
	s.state = StateIdle
}

func (s *Session) observeProgress(total int64) func(sent int64) {
	return func(sent int64) {
		if total <= 0 {
			return
		}
		pct := int(sent * 100 / total)
		s.setProgress(pct)
	}
}

func (s *Session) setProgress(pct int) {
	if pct > 100 {
		pct = 100
	}
	s.mu.Lock()
	if pct > s.progress {
		s.progress = pct
	}
	s.mu.Unlock()
}
