// ABOUTME: In-memory bearer session manager for operator logins
// ABOUTME: Issues random tokens with fixed expiry and lazy invalidation

package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is the session lifetime from issuance. There is no sliding
// expiration: checking a token never extends it.
const DefaultTTL = 12 * time.Hour

const tokenLength = 24

// Manager owns the session map. Sessions live only in process memory and
// are lost on restart, which merely forces a re-login. Never expose the
// raw map; all access goes through Issue/IsValid/Sweep.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a session manager with the given TTL. A zero TTL
// selects DefaultTTL.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		sessions: make(map[string]time.Time),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue generates a fresh session token from a cryptographically secure
// random source and records its expiry. Multiple concurrent sessions are
// allowed.
func (m *Manager) Issue() (string, error) {
	raw := make([]byte, tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = m.now().Add(m.ttl)
	return token, nil
}

// IsValid reports whether the token is known and unexpired. An expired
// token is removed on the way out; callers never learn whether a token was
// unknown or expired.
func (m *Manager) IsValid(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.sessions[token]
	if !ok {
		return false
	}
	if m.now().After(expiresAt) {
		delete(m.sessions, token)
		return false
	}
	return true
}

// Sweep removes every expired session. It is called opportunistically
// before inbound requests rather than on a background timer; expiry is
// enforced lazily at validation time regardless.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for token, expiresAt := range m.sessions {
		if now.After(expiresAt) {
			delete(m.sessions, token)
		}
	}
}

// Len returns the number of tracked sessions, expired or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
