// ABOUTME: Credential record storage with PBKDF2 hashing for both secrets
// ABOUTME: Handles initialization, verification, and independent rotation

package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/2389/greenlight/internal/storage"
)

// Credential errors
var (
	ErrNotConfigured     = errors.New("not configured (run setup first)")
	ErrAlreadyConfigured = errors.New("already configured")
	ErrWeakPassword      = errors.New("password must be at least 12 characters")
)

const (
	// hashIterations is the PBKDF2 work factor. It is a deliberate cost
	// parameter against offline brute force of a captured hash; raising it
	// only affects newly derived hashes since the salt pairs them.
	hashIterations = 200_000

	saltLength      = 16
	accessKeyLength = 32

	// MinPasswordLength is the operator password policy floor.
	MinPasswordLength = 12
)

// Record is the single per-deployment credential document. Only salted
// hashes of the access key and password are stored, never the plaintext.
type Record struct {
	Port          int       `json:"port"`
	AccessKeySalt string    `json:"accessKeySalt"`
	AccessKeyHash string    `json:"accessKeyHash"`
	PasswordSalt  string    `json:"passwordSalt"`
	PasswordHash  string    `json:"passwordHash"`
	PublicURL     *string   `json:"publicUrl"`
	InstanceID    string    `json:"instanceId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// VerifyAccessKey recomputes the salted hash of the candidate and compares
// it against the stored digest in constant time.
func (r *Record) VerifyAccessKey(candidate string) bool {
	return verifySecret(candidate, r.AccessKeySalt, r.AccessKeyHash)
}

// VerifyPassword is symmetric to VerifyAccessKey with the password pair.
func (r *Record) VerifyPassword(candidate string) bool {
	return verifySecret(candidate, r.PasswordSalt, r.PasswordHash)
}

// Store persists the credential record through the atomic document layer.
type Store struct {
	doc    *storage.Document[*Record]
	logger *slog.Logger
}

// NewStore creates a credential store backed by the given config file path.
func NewStore(path string) *Store {
	return &Store{
		doc:    storage.New[*Record](path),
		logger: slog.Default().With("component", "credentials"),
	}
}

// Path returns the config file path backing the store.
func (s *Store) Path() string {
	return s.doc.Path()
}

// Load returns the credential record, or ErrNotConfigured when no record
// has been written yet.
func (s *Store) Load() (*Record, error) {
	record, err := s.doc.Load(nil)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotConfigured
	}
	return record, nil
}

// Initialize creates the credential record and returns it together with the
// plaintext access key, which is surfaced exactly once. When a record
// already exists the call is an idempotent no-op: the existing record is
// returned with no key and ErrAlreadyConfigured.
func (s *Store) Initialize(port int, password string) (*Record, string, error) {
	if existing, err := s.Load(); err == nil {
		return existing, "", ErrAlreadyConfigured
	} else if !errors.Is(err, ErrNotConfigured) {
		return nil, "", err
	}

	if len(password) < MinPasswordLength {
		return nil, "", ErrWeakPassword
	}

	accessKey, err := generateAccessKey()
	if err != nil {
		return nil, "", err
	}
	keySalt, err := newSalt()
	if err != nil {
		return nil, "", err
	}
	passwordSalt, err := newSalt()
	if err != nil {
		return nil, "", err
	}

	now := utcNow()
	record := &Record{
		Port:          port,
		AccessKeySalt: encode(keySalt),
		AccessKeyHash: deriveHash(accessKey, keySalt),
		PasswordSalt:  encode(passwordSalt),
		PasswordHash:  deriveHash(password, passwordSalt),
		PublicURL:     nil,
		InstanceID:    uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.doc.Write(record); err != nil {
		return nil, "", err
	}

	s.logger.Info("credentials initialized", "port", port, "instance_id", record.InstanceID)
	return record, accessKey, nil
}

// RotateAccessKey generates a fresh access key and salt, persists the new
// hash, and returns the plaintext key once. The password pair is untouched.
func (s *Store) RotateAccessKey() (*Record, string, error) {
	accessKey, err := generateAccessKey()
	if err != nil {
		return nil, "", err
	}
	salt, err := newSalt()
	if err != nil {
		return nil, "", err
	}

	record, err := s.update(func(r *Record) error {
		r.AccessKeySalt = encode(salt)
		r.AccessKeyHash = deriveHash(accessKey, salt)
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("access key rotated", "instance_id", record.InstanceID)
	return record, accessKey, nil
}

// RotatePassword replaces the password salt and hash. The access key pair
// is untouched.
func (s *Store) RotatePassword(newPassword string) (*Record, error) {
	if len(newPassword) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	salt, err := newSalt()
	if err != nil {
		return nil, err
	}

	record, err := s.update(func(r *Record) error {
		r.PasswordSalt = encode(salt)
		r.PasswordHash = deriveHash(newPassword, salt)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("password rotated", "instance_id", record.InstanceID)
	return record, nil
}

// SetPublicURL records the externally reachable URL discovered by the
// tunnel collaborator.
func (s *Store) SetPublicURL(publicURL string) (*Record, error) {
	return s.update(func(r *Record) error {
		r.PublicURL = &publicURL
		return nil
	})
}

// SetPort updates the configured listen port.
func (s *Store) SetPort(port int) (*Record, error) {
	return s.update(func(r *Record) error {
		r.Port = port
		return nil
	})
}

// EnsureInstanceID backfills a missing instance identifier on records
// written by earlier versions.
func (s *Store) EnsureInstanceID() (*Record, error) {
	record, err := s.Load()
	if err != nil {
		return nil, err
	}
	if record.InstanceID != "" {
		return record, nil
	}
	return s.update(func(r *Record) error {
		r.InstanceID = uuid.NewString()
		return nil
	})
}

// update runs a read-modify-write cycle against the record, bumping
// updatedAt. Fails with ErrNotConfigured when no record exists.
func (s *Store) update(modify func(*Record) error) (*Record, error) {
	return s.doc.Update(nil, func(r *Record) (*Record, error) {
		if r == nil {
			return nil, ErrNotConfigured
		}
		if err := modify(r); err != nil {
			return nil, err
		}
		r.UpdatedAt = utcNow()
		return r, nil
	})
}

// generateAccessKey returns a cryptographically random, URL-safe key.
func generateAccessKey() (string, error) {
	raw := make([]byte, accessKeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating access key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// newSalt returns a fresh random salt.
func newSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// deriveHash computes the PBKDF2-HMAC-SHA256 digest of a secret and returns
// it URL-safe base64 encoded without padding.
func deriveHash(secret string, salt []byte) string {
	digest := pbkdf2.Key([]byte(secret), salt, hashIterations, sha256.Size, sha256.New)
	return encode(digest)
}

// verifySecret recomputes the candidate's digest with the stored salt and
// compares the fixed-length digests in constant time. Plaintexts are never
// compared.
func verifySecret(candidate, encodedSalt, encodedHash string) bool {
	salt, err := base64.RawURLEncoding.DecodeString(encodedSalt)
	if err != nil {
		return false
	}
	stored, err := base64.RawURLEncoding.DecodeString(encodedHash)
	if err != nil {
		return false
	}
	computed := pbkdf2.Key([]byte(candidate), salt, hashIterations, sha256.Size, sha256.New)
	return subtle.ConstantTimeCompare(computed, stored) == 1
}

func encode(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// utcNow returns the current time in UTC truncated to whole seconds so the
// persisted RFC 3339 timestamps stay stable across a round trip.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
