package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ripcast/internal/logging"
)

// Validation failure reasons. Retrieval handlers map all of these to the same
// access-denied response so callers cannot probe for file existence.
var (
	ErrNotFound = errors.New("token not found")
	ErrExpired  = errors.New("token expired")
	ErrUsed     = errors.New("token already used")
	ErrMismatch = errors.New("token filename mismatch")
)

// tokenBytes is the entropy of an issued token. 32 bytes keeps tokens
// unguessable without making URLs unwieldy.
const tokenBytes = 32

// usedRetention keeps a consumed entry around briefly so a racing second
// attempt reports "already used" rather than "not found".
const usedRetention = 30 * time.Second

type entry struct {
	filename  string
	expiresAt time.Time
	used      bool
	usedAt    time.Time
}

// Service issues and validates one-shot, time-limited capability tokens. Only
// a one-way hash of each token is stored.
type Service struct {
	mu      sync.Mutex
	entries map[string]*entry

	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects a time source (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a token service with the given TTL.
func NewService(ttl time.Duration, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		entries: make(map[string]*entry),
		ttl:     ttl,
		logger:  logging.WithComponent(logger, "tokens"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints a token bound to exactly one output filename.
func (s *Service) Issue(filename string) (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(raw)

	s.mu.Lock()
	s.entries[hashToken(token)] = &entry{
		filename:  filename,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()
	return token, nil
}

// Validate checks a token against the bound filename and, on success, marks it
// used in the same critical section so concurrent attempts cannot both pass.
// The filename comparison is exact; no path normalization is applied here.
func (s *Service) Validate(token, filename string) error {
	key := hashToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	if now.After(e.expiresAt) {
		return ErrExpired
	}
	if e.used {
		return ErrUsed
	}
	if subtle.ConstantTimeCompare([]byte(e.filename), []byte(filename)) != 1 {
		return ErrMismatch
	}
	e.used = true
	e.usedAt = now
	return nil
}

// Sweep deletes expired entries and used entries past their short retention.
// It returns the number of entries removed.
func (s *Service) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.entries {
		if now.After(e.expiresAt) || (e.used && now.After(e.usedAt.Add(usedRetention))) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("token sweep", logging.Int("removed", removed))
	}
	return removed
}

// Len reports the number of stored entries.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
