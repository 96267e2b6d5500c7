// Package token manages short-lived, single-use pairing tokens.
//
// A token proves possession of a scanned QR code. The lifecycle is:
//  1. The host issues a token and embeds it in a QR payload (60s lifetime).
//  2. The mobile app scans the QR and submits the token over its connection.
//  3. The host atomically validates and consumes the token; a second
//     redemption attempt fails even if it races the first.
//  4. Expired tokens are purged by a deferred per-token timer.
//
// Security considerations:
//   - Token values are UUIDv4 (122 bits of entropy, unguessable).
//   - Tokens are bcrypt-hashed at rest; the cleartext exists only in the
//     QR payload handed to the caller.
//   - Validation failures are silent booleans - unknown, expired, and
//     consumed tokens are indistinguishable to a caller, which avoids
//     oracle attacks on token guessing.
package token

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// purgeGrace is how long after expiry a token entry is kept before the
// deferred purge removes it. The grace keeps the consumed/expired
// distinction available for logging right around the expiry boundary.
const purgeGrace = time.Second

// Config holds configuration for the token store.
type Config struct {
	// Lifetime is how long an issued token remains valid.
	// Default: 60 seconds.
	Lifetime time.Duration

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time
}

// Token is the caller-visible result of issuing a pairing token.
// Value is the cleartext secret; the store itself keeps only a hash.
type Token struct {
	// Value is the opaque random identifier embedded in the QR payload.
	Value string

	// ExpiresAt is when the token stops being redeemable.
	ExpiresAt time.Time
}

// entry is a stored token. The cleartext value is never retained;
// redemption compares candidates against the bcrypt hash.
type entry struct {
	id        string
	valueHash []byte
	expiresAt time.Time
	consumed  bool

	// purge is the deferred cleanup timer, stopped on early invalidation
	// so a stale timer cannot double-remove a replaced entry.
	purge *time.Timer
}

// Store issues and validates single-use pairing tokens.
// All methods are safe for concurrent use; check-and-consume is atomic.
type Store struct {
	mu      sync.Mutex
	config  Config
	entries map[string]*entry
}

// NewStore creates a token store with the given config.
func NewStore(config Config) *Store {
	if config.Lifetime == 0 {
		config.Lifetime = 60 * time.Second
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}

	return &Store{
		config:  config,
		entries: make(map[string]*entry),
	}
}

// Issue generates a new pairing token and stores its hash.
// A deferred purge removes the entry shortly after expiry. Previously
// expired entries are opportunistically purged on each call.
func (s *Store) Issue() (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.TimeNow()
	s.purgeExpiredLocked(now)

	// UUIDv4 gives 122 bits of entropy from crypto/rand.
	value := uuid.NewString()

	hash, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
	if err != nil {
		return Token{}, err
	}

	e := &entry{
		id:        uuid.NewString(),
		valueHash: hash,
		expiresAt: now.Add(s.config.Lifetime),
	}
	s.entries[e.id] = e

	// Schedule the deferred purge on the wall clock. With a fake TimeNow
	// the timer still fires, but removal re-checks expiry first.
	e.purge = time.AfterFunc(s.config.Lifetime+purgeGrace, func() {
		s.purgeEntry(e.id)
	})

	log.Printf("token: issued pairing token (expires at %s)", e.expiresAt.Format(time.RFC3339))

	return Token{Value: value, ExpiresAt: e.expiresAt}, nil
}

// ValidateAndConsume atomically checks validity and, if valid, marks the
// token consumed and returns true. Otherwise returns false with no side
// effects. This is the only path by which a token becomes consumed; across
// any number of concurrent callers at most one call returns true per token.
func (s *Store) ValidateAndConsume(value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findLocked(value)
	if e == nil {
		log.Printf("token: redemption failed (no valid matching token)")
		return false
	}

	e.consumed = true
	log.Printf("token: pairing token consumed")
	return true
}

// IsValid is a read-only validity check for UI/status display.
// It must never be substituted for ValidateAndConsume in the auth path:
// two connections could both pass IsValid before either consumes.
func (s *Store) IsValid(value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(value) != nil
}

// Invalidate revokes a specific token before its natural expiry.
// Unknown values are a no-op.
func (s *Store) Invalidate(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if bcrypt.CompareHashAndPassword(e.valueHash, []byte(value)) == nil {
			if e.purge != nil {
				e.purge.Stop()
			}
			delete(s.entries, id)
			log.Printf("token: invalidated pairing token")
			return
		}
	}
}

// InvalidateAll revokes every outstanding token. Called when the host
// regenerates a QR code (latest-wins policy) or tears down the server.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if e.purge != nil {
			e.purge.Stop()
		}
		delete(s.entries, id)
	}
}

// HasActive returns true if any non-expired, unconsumed token exists.
func (s *Store) HasActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.TimeNow()
	for _, e := range s.entries {
		if !e.consumed && now.Before(e.expiresAt) {
			return true
		}
	}
	return false
}

// findLocked returns the entry matching a cleartext value if it is valid
// (unconsumed and unexpired), or nil. Must be called with s.mu held.
//
// The scan is linear with a bcrypt compare per entry. With the latest-wins
// issue policy there is at most a handful of outstanding tokens, so this
// stays well under interactive latency.
func (s *Store) findLocked(value string) *entry {
	now := s.config.TimeNow()
	for _, e := range s.entries {
		if e.consumed || !now.Before(e.expiresAt) {
			continue
		}
		if bcrypt.CompareHashAndPassword(e.valueHash, []byte(value)) == nil {
			return e
		}
	}
	return nil
}

// purgeExpiredLocked removes entries past their expiry.
// Must be called with s.mu held.
func (s *Store) purgeExpiredLocked(now time.Time) {
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			if e.purge != nil {
				e.purge.Stop()
			}
			delete(s.entries, id)
		}
	}
}

// purgeEntry is the deferred cleanup callback for a single token.
// It re-checks expiry so an early fake-clock or replaced entry is not
// removed prematurely.
func (s *Store) purgeEntry(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	if s.config.TimeNow().Before(e.expiresAt) {
		return
	}
	delete(s.entries, id)
}
