package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	manager := NewTokenManager()
	token, expires, err := manager.Issue("user-7", ScopeUpload)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("token is empty")
	}
	if !expires.After(time.Now()) {
		t.Fatalf("expiry = %v, want future", expires)
	}

	subject, ok := manager.Validate(token, ScopeUpload)
	if !ok || subject != "user-7" {
		t.Fatalf("Validate = %q/%v, want user-7/true", subject, ok)
	}
}

func TestValidateRejectsWrongScope(t *testing.T) {
	manager := NewTokenManager()
	token, _, err := manager.Issue("user-7", ScopeUpload)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, ok := manager.Validate(token, "admin"); ok {
		t.Fatal("token minted for upload validated under another scope")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	current := time.Now()
	manager := NewTokenManager(
		WithTokenTTL(time.Minute),
		WithClock(func() time.Time { return current }),
	)
	token, _, err := manager.Issue("user-7", ScopeUpload)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = current.Add(61 * time.Second)
	if _, ok := manager.Validate(token, ScopeUpload); ok {
		t.Fatal("expired token validated")
	}
}

func TestRevoke(t *testing.T) {
	manager := NewTokenManager()
	token, _, err := manager.Issue("user-7", ScopeUpload)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	manager.Revoke(token)
	if _, ok := manager.Validate(token, ScopeUpload); ok {
		t.Fatal("revoked token validated")
	}
}

func TestPurgeExpired(t *testing.T) {
	current := time.Now()
	manager := NewTokenManager(
		WithTokenTTL(time.Minute),
		WithClock(func() time.Time { return current }),
	)
	if _, _, err := manager.Issue("user-1", ScopeUpload); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	keep, _, err := manager.Issue("user-2", ScopeUpload)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = current.Add(61 * time.Second)
	fresh, _, err := manager.Issue("user-3", ScopeUpload)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	manager.PurgeExpired()

	if _, ok := manager.Validate(keep, ScopeUpload); ok {
		t.Fatal("expired token survived purge")
	}
	if _, ok := manager.Validate(fresh, ScopeUpload); !ok {
		t.Fatal("fresh token purged")
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	hash, err := HashAPIKey("operator-secret")
	if err != nil {
		t.Fatalf("HashAPIKey: %v", err)
	}
	if err := VerifyAPIKey(hash, "operator-secret"); err != nil {
		t.Fatalf("VerifyAPIKey: %v", err)
	}
	if err := VerifyAPIKey(hash, "wrong"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("VerifyAPIKey(wrong) = %v, want ErrInvalidAPIKey", err)
	}
}

func TestVerifyAPIKeyRejectsMalformedHash(t *testing.T) {
	if err := VerifyAPIKey("not-a-hash", "x"); err == nil {
		t.Fatal("malformed hash accepted")
	}
}
