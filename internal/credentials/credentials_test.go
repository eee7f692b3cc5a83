// ABOUTME: Unit tests for credential initialization, verification, rotation
// ABOUTME: Covers password policy, idempotent setup, and salt independence

package credentials

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "config.json"))
}

func TestInitialize_CreatesRecordAndReturnsKeyOnce(t *testing.T) {
	s := newTestStore(t)

	record, accessKey, err := s.Initialize(8123, "correct-horse-battery")
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if record.Port != 8123 {
		t.Errorf("Port = %d, want 8123", record.Port)
	}
	if len(accessKey) < 32 {
		t.Errorf("access key length = %d, want >= 32", len(accessKey))
	}
	if record.InstanceID == "" {
		t.Error("InstanceID should be set")
	}
	if record.PublicURL != nil {
		t.Error("PublicURL should start unset")
	}
	if record.AccessKeyHash == accessKey {
		t.Error("plaintext access key must never be persisted")
	}
	if record.CreatedAt.IsZero() || !record.CreatedAt.Equal(record.UpdatedAt) {
		t.Error("CreatedAt and UpdatedAt should both be set on initialization")
	}
}

func TestInitialize_SecondCallIsIdempotentNoOp(t *testing.T) {
	s := newTestStore(t)

	first, _, err := s.Initialize(8123, "correct-horse-battery")
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	again, key, err := s.Initialize(9999, "a-completely-different-pw")
	if !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("Initialize() error = %v, want ErrAlreadyConfigured", err)
	}
	if key != "" {
		t.Error("second Initialize() must not return a new key")
	}
	if again.InstanceID != first.InstanceID || again.Port != first.Port {
		t.Errorf("second Initialize() = %+v, want the original record", again)
	}
}

func TestInitialize_WeakPassword(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name     string
		password string
	}{
		{name: "empty", password: ""},
		{name: "eleven chars", password: "elevenchars"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Initialize(8123, tt.password)
			if !errors.Is(err, ErrWeakPassword) {
				t.Errorf("Initialize() error = %v, want ErrWeakPassword", err)
			}
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	s := newTestStore(t)
	password := "correct-horse-battery"

	record, _, err := s.Initialize(8123, password)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if !record.VerifyPassword(password) {
		t.Error("VerifyPassword() should accept the configured password")
	}
	for _, wrong := range []string{"", "correct-horse-batter", "correct-horse-battery "} {
		if record.VerifyPassword(wrong) {
			t.Errorf("VerifyPassword(%q) should fail", wrong)
		}
	}
}

func TestVerifyAccessKey(t *testing.T) {
	s := newTestStore(t)

	record, accessKey, err := s.Initialize(8123, "correct-horse-battery")
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if !record.VerifyAccessKey(accessKey) {
		t.Error("VerifyAccessKey() should accept the issued key")
	}
	if record.VerifyAccessKey("not-the-key") {
		t.Error("VerifyAccessKey() should reject an unknown key")
	}
	if record.VerifyAccessKey(record.AccessKeyHash) {
		t.Error("VerifyAccessKey() should reject the stored hash itself")
	}
}

func TestVerify_CorruptSaltOrHashFailsClosed(t *testing.T) {
	record := &Record{
		AccessKeySalt: "!!!not-base64!!!",
		AccessKeyHash: "also-bad",
	}
	if record.VerifyAccessKey("anything") {
		t.Error("VerifyAccessKey() must fail on undecodable salt/hash")
	}
}

func TestRotateAccessKey_InvalidatesOldKeyOnly(t *testing.T) {
	s := newTestStore(t)
	password := "correct-horse-battery"

	record, oldKey, err := s.Initialize(8123, password)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	rotated, newKey, err := s.RotateAccessKey()
	if err != nil {
		t.Fatalf("RotateAccessKey() error = %v", err)
	}
	if newKey == oldKey {
		t.Error("rotation should issue a fresh key")
	}
	if rotated.VerifyAccessKey(oldKey) {
		t.Error("old access key should no longer verify")
	}
	if !rotated.VerifyAccessKey(newKey) {
		t.Error("new access key should verify")
	}
	// The password pair must be untouched.
	if rotated.PasswordSalt != record.PasswordSalt || rotated.PasswordHash != record.PasswordHash {
		t.Error("access key rotation must not touch the password salt/hash")
	}
	if !rotated.VerifyPassword(password) {
		t.Error("password should still verify after access key rotation")
	}
	if !rotated.UpdatedAt.After(record.UpdatedAt) && !rotated.UpdatedAt.Equal(record.UpdatedAt) {
		t.Error("UpdatedAt should be bumped on rotation")
	}
}

func TestRotatePassword_InvalidatesOldPasswordOnly(t *testing.T) {
	s := newTestStore(t)

	record, accessKey, err := s.Initialize(8123, "correct-horse-battery")
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	rotated, err := s.RotatePassword("battery-staple-horse")
	if err != nil {
		t.Fatalf("RotatePassword() error = %v", err)
	}
	if rotated.VerifyPassword("correct-horse-battery") {
		t.Error("old password should no longer verify")
	}
	if !rotated.VerifyPassword("battery-staple-horse") {
		t.Error("new password should verify")
	}
	if rotated.AccessKeySalt != record.AccessKeySalt || rotated.AccessKeyHash != record.AccessKeyHash {
		t.Error("password rotation must not touch the access key salt/hash")
	}
	if !rotated.VerifyAccessKey(accessKey) {
		t.Error("access key should still verify after password rotation")
	}
}

func TestRotatePassword_WeakPasswordRejected(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Initialize(8123, "correct-horse-battery"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if _, err := s.RotatePassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("RotatePassword() error = %v, want ErrWeakPassword", err)
	}
}

func TestOperationsFailFastWhenNotConfigured(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Load(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Load() error = %v, want ErrNotConfigured", err)
	}
	if _, _, err := s.RotateAccessKey(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("RotateAccessKey() error = %v, want ErrNotConfigured", err)
	}
	if _, err := s.RotatePassword("battery-staple-horse"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("RotatePassword() error = %v, want ErrNotConfigured", err)
	}
	if _, err := s.SetPublicURL("https://example.trycloudflare.com"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("SetPublicURL() error = %v, want ErrNotConfigured", err)
	}
}

func TestSetPublicURL_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStore(path)

	if _, _, err := s.Initialize(8123, "correct-horse-battery"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if _, err := s.SetPublicURL("https://example.trycloudflare.com"); err != nil {
		t.Fatalf("SetPublicURL() error = %v", err)
	}

	reloaded, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.PublicURL == nil || *reloaded.PublicURL != "https://example.trycloudflare.com" {
		t.Errorf("PublicURL = %v, want the persisted URL", reloaded.PublicURL)
	}
}

func TestEnsureInstanceID_BackfillsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStore(path)

	if _, _, err := s.Initialize(8123, "correct-horse-battery"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	// Blank the instance id as an older deployment would have it.
	if _, err := s.update(func(r *Record) error {
		r.InstanceID = ""
		return nil
	}); err != nil {
		t.Fatalf("update() error = %v", err)
	}

	record, err := s.EnsureInstanceID()
	if err != nil {
		t.Fatalf("EnsureInstanceID() error = %v", err)
	}
	if record.InstanceID == "" {
		t.Error("EnsureInstanceID() should backfill a missing id")
	}

	again, err := s.EnsureInstanceID()
	if err != nil {
		t.Fatalf("EnsureInstanceID() error = %v", err)
	}
	if again.InstanceID != record.InstanceID {
		t.Error("EnsureInstanceID() must be stable once set")
	}
}
