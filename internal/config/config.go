// Package config holds the host-owned runtime settings the upload core reads.
package config

import (
	"os"
	"strings"
	"sync"
)

// Environment variables that override stored provider credentials at
// deployment time. When set they take precedence over whatever the host
// configuration supplies.
const (
	EnvTokenID     = "CLIPBIND_MUX_TOKEN_ID"
	EnvTokenSecret = "CLIPBIND_MUX_TOKEN_SECRET"
)

// DefaultMaxUploadBytes bounds a single upload when the host does not set one.
const DefaultMaxUploadBytes int64 = 1 << 30

// Credentials is a static provider credential pair. Values are never logged.
type Credentials struct {
	TokenID     string
	TokenSecret string
}

// Configured reports whether both halves of the pair are present.
func (c Credentials) Configured() bool {
	return c.TokenID != "" && c.TokenSecret != ""
}

// Config is the read-only surface the upload core consumes. The host owns the
// values; the core only reads them.
type Config struct {
	// Enabled gates the whole upload feature.
	Enabled bool
	// GuestAccess permits token issuance without an admin key.
	GuestAccess bool
	// MaxUploadBytes is the size ceiling enforced before any network call.
	MaxUploadBytes int64
	// CORSOrigin restricts where direct uploads may originate.
	CORSOrigin string
	// AdminKeyHash is the pbkdf2 hash guarding administrative binding edits.
	AdminKeyHash string

	mu     sync.RWMutex
	stored Credentials
	getenv func(string) string
}

// New returns a Config with defaults applied.
func New() *Config {
	return &Config{
		Enabled:        true,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// SetCredentials installs the host-stored credential pair.
func (c *Config) SetCredentials(creds Credentials) {
	c.mu.Lock()
	c.stored = creds
	c.mu.Unlock()
}

// Credentials resolves the provider credential pair. Environment overrides
// take precedence over the stored pair so deployment-time constants are
// transparent to callers; this is the single accessor all call sites use.
func (c *Config) Credentials() Credentials {
	getenv := c.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	id := strings.TrimSpace(getenv(EnvTokenID))
	secret := strings.TrimSpace(getenv(EnvTokenSecret))
	if id != "" && secret != "" {
		return Credentials{TokenID: id, TokenSecret: secret}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stored
}
