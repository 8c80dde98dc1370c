// Package auth issues and validates the short-lived tokens that guard the
// upload endpoints, plus the operator API key used by administrative binding
// edits. Tokens are random, stored only as SHA-256 digests, and scoped so a
// token minted for uploads cannot be replayed elsewhere.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ScopeUpload is the scope carried by tokens minted for the upload endpoints.
const ScopeUpload = "upload"

const (
	defaultTokenTTL    = 15 * time.Minute
	defaultTokenLength = 32
	defaultPurgeEvery  = time.Minute
)

type tokenRecord struct {
	subject   string
	scope     string
	expiresAt time.Time
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithTokenTTL overrides the default token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(m *TokenManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithTokenFactory injects a deterministic token source for tests.
func WithTokenFactory(factory func(int) (string, error)) TokenOption {
	return func(m *TokenManager) {
		if factory != nil {
			m.tokenFactory = factory
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// TokenManager mints and validates scoped bearer tokens. It is safe for
// concurrent use.
type TokenManager struct {
	mu           sync.Mutex
	tokens       map[string]tokenRecord
	ttl          time.Duration
	tokenLength  int
	tokenFactory func(int) (string, error)
	now          func() time.Time
}

// NewTokenManager constructs a manager with the provided options.
func NewTokenManager(opts ...TokenOption) *TokenManager {
	manager := &TokenManager{
		tokens:       make(map[string]tokenRecord),
		ttl:          defaultTokenTTL,
		tokenLength:  defaultTokenLength,
		tokenFactory: generateToken,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager
}

// Issue mints a token bound to one subject and scope. The subject identifies
// the submitting user; an empty subject marks a guest and is accepted here so
// the guest policy stays a handler concern.
func (m *TokenManager) Issue(subject, scope string) (string, time.Time, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "", time.Time{}, errors.New("token scope required")
	}
	token, err := m.tokenFactory(m.tokenLength)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token: %w", err)
	}
	hashed := hashToken(token)
	expires := m.now().Add(m.ttl)

	m.mu.Lock()
	m.tokens[hashed] = tokenRecord{
		subject:   strings.TrimSpace(subject),
		scope:     scope,
		expiresAt: expires,
	}
	m.mu.Unlock()

	return token, expires, nil
}

// Validate checks a presented token against the requested scope and returns
// its subject. Expired and unknown tokens fail identically.
func (m *TokenManager) Validate(token, scope string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	hashed := hashToken(token)

	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.tokens[hashed]
	if !ok {
		return "", false
	}
	if record.scope != scope {
		return "", false
	}
	if !m.now().Before(record.expiresAt) {
		delete(m.tokens, hashed)
		return "", false
	}
	return record.subject, true
}

// Revoke discards a token; used once a submission has been committed.
func (m *TokenManager) Revoke(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	hashed := hashToken(token)
	m.mu.Lock()
	delete(m.tokens, hashed)
	m.mu.Unlock()
}

// PurgeExpired drops records whose expiry has passed.
func (m *TokenManager) PurgeExpired() {
	now := m.now()
	m.mu.Lock()
	for key, record := range m.tokens {
		if !now.Before(record.expiresAt) {
			delete(m.tokens, key)
		}
	}
	m.mu.Unlock()
}

// PurgeLoop purges on an interval until the context is cancelled. Intended to
// run under the process run group.
func (m *TokenManager) PurgeLoop(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = defaultPurgeEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.PurgeExpired()
		}
	}
}

func generateToken(length int) (string, error) {
	if length <= 0 {
		length = defaultTokenLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
