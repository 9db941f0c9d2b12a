// Package session holds the signed-in user's bearer token and profile. A
// Session is created once per process, initialized from its Store on start,
// updated on login, and torn down on logout or when the API rejects the
// token.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	ErrMalformedToken = errors.New("malformed access token")
	ErrTokenExpired   = errors.New("access token has expired")
)

// Profile is the account summary returned by the API.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Claims are the token claims the client reads. The token is not verified
// here: the API is the authority, and the claims only drive what the client
// offers to show.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Role  string   `json:"role"`
	Roles []string `json:"roles"`
}

// ParseClaims decodes the claims of token without verifying its signature.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// State is what a Store persists.
type State struct {
	Token   string   `json:"token"`
	Profile *Profile `json:"profile,omitempty"`
}

// Store persists session state between runs.
type Store interface {
	Load() (*State, error)
	Save(*State) error
	Clear() error
}

// Session is safe for concurrent use.
type Session struct {
	mu      sync.RWMutex
	store   Store
	token   string
	claims  *Claims
	profile *Profile
	gen     uint64

	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.logger = l } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// New returns an empty session backed by store (which may be nil).
func New(store Store, opts ...Option) *Session {
	s := &Session{store: store, now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init restores persisted state. Expired or unreadable tokens are discarded.
func (s *Session) Init() error {
	if s.store == nil {
		return nil
	}
	st, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if st == nil || st.Token == "" {
		return nil
	}
	claims, err := ParseClaims(st.Token)
	if err != nil || s.expired(claims) {
		s.logger.Info().Msg("discarding stored session")
		return s.store.Clear()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.claims, s.profile = st.Token, claims, st.Profile
	s.gen++
	return nil
}

// Login replaces the current session with token and profile.
func (s *Session) Login(token string, profile *Profile) error {
	claims, err := ParseClaims(token)
	if err != nil {
		return err
	}
	if s.expired(claims) {
		return ErrTokenExpired
	}

	s.mu.Lock()
	s.token, s.claims, s.profile = token, claims, cloneProfile(profile)
	s.gen++
	st := &State{Token: token, Profile: cloneProfile(profile)}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(st); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	return nil
}

// Logout clears the session and its persisted state.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
	return s.clearStore()
}

func (s *Session) clearLocked() {
	s.token, s.claims, s.profile = "", nil, nil
	s.gen++
}

func (s *Session) clearStore() error {
	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	}
	return nil
}

// Token returns the bearer token, or "" when signed out or expired.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.expired(s.claims) {
		return ""
	}
	return s.token
}

// Invalidate is called when the API answers 401 for token. The session is
// cleared only if it still holds that token; a rejection of a token that a
// later login replaced is ignored.
func (s *Session) Invalidate(token string) {
	s.mu.Lock()
	if token == "" || s.token != token {
		s.mu.Unlock()
		s.logger.Debug().Msg("ignoring rejection of a replaced token")
		return
	}
	s.clearLocked()
	s.mu.Unlock()

	s.logger.Info().Msg("session rejected by server, signing out")
	if err := s.clearStore(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear rejected session")
	}
}

// Authenticated reports whether a usable token is held.
func (s *Session) Authenticated() bool { return s.Token() != "" }

// ExpiresAt returns the token expiry, or the zero time.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil || s.claims.ExpiresAt == nil {
		return time.Time{}
	}
	return s.claims.ExpiresAt.Time
}

// Profile returns a copy of the cached profile.
func (s *Session) Profile() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProfile(s.profile)
}

// Roles merges the roles from the profile and the token.
func (s *Session) Roles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	add := func(r string) {
		if r != "" && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	if s.profile != nil {
		add(s.profile.Role)
	}
	if s.claims != nil {
		add(s.claims.Role)
		for _, r := range s.claims.Roles {
			add(r)
		}
	}
	return out
}

// HasRole reports whether the signed-in user holds any of roles.
func (s *Session) HasRole(roles ...string) bool {
	if !s.Authenticated() {
		return false
	}
	held := s.Roles()
	for _, want := range roles {
		for _, r := range held {
			if r == want {
				return true
			}
		}
	}
	return false
}

// Generation changes on every login, logout and restore. Callers capture it
// before a slow read and pass it back to ApplyProfile.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// ApplyProfile stores p only if the session has not changed since gen was
// read. It reports whether p was applied.
func (s *Session) ApplyProfile(gen uint64, p *Profile) bool {
	s.mu.Lock()
	if gen != s.gen || s.token == "" || p == nil {
		s.mu.Unlock()
		return false
	}
	s.profile = cloneProfile(p)
	st := &State{Token: s.token, Profile: cloneProfile(p)}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(st); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist refreshed profile")
		}
	}
	return true
}

func (s *Session) expired(c *Claims) bool {
	if c == nil {
		return true
	}
	return c.ExpiresAt != nil && !s.now().Before(c.ExpiresAt.Time)
}

func cloneProfile(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
