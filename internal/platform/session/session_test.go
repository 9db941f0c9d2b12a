package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/smhs/intake/internal/platform/apiclient"
	"github.com/smhs/intake/internal/platform/hipaa"
)

func makeToken(t *testing.T, role string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(exp)},
		Email:            "parent@example.com",
		Role:             role,
		Roles:            []string{role},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestParseClaims_Malformed(t *testing.T) {
	if _, err := ParseClaims("not-a-token"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestSession_LoginLogout(t *testing.T) {
	store := &MemoryStore{}
	s := New(store)
	tok := makeToken(t, "admin", time.Now().Add(time.Hour))

	if err := s.Login(tok, &Profile{Email: "parent@example.com", Role: "admin"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.Token() != tok {
		t.Error("expected token after login")
	}
	if !s.HasRole("admin") || s.HasRole("staff") {
		t.Errorf("unexpected roles %v", s.Roles())
	}
	st, _ := store.Load()
	if st == nil || st.Token != tok {
		t.Fatal("expected state to be persisted")
	}

	if err := s.Logout(); err != nil {
		t.Fatal(err)
	}
	if s.Authenticated() {
		t.Error("expected signed out")
	}
	if st, _ := store.Load(); st != nil {
		t.Error("expected store cleared")
	}
}

func TestSession_LoginExpired(t *testing.T) {
	s := New(nil)
	err := s.Login(makeToken(t, "parent", time.Now().Add(-time.Minute)), nil)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestSession_TokenExpiresWithClock(t *testing.T) {
	now := time.Now()
	s := New(nil, WithClock(func() time.Time { return now }))
	if err := s.Login(makeToken(t, "parent", now.Add(time.Minute)), nil); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if s.Token() != "" {
		t.Error("expected expired token to be hidden")
	}
}

func TestSession_InitDiscardsExpired(t *testing.T) {
	store := &MemoryStore{}
	_ = store.Save(&State{Token: makeToken(t, "parent", time.Now().Add(-time.Hour))})
	s := New(store)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if s.Authenticated() {
		t.Error("expected expired stored token to be discarded")
	}
	if st, _ := store.Load(); st != nil {
		t.Error("expected store cleared")
	}
}

func TestSession_Invalidate(t *testing.T) {
	s := New(&MemoryStore{})
	tok := makeToken(t, "parent", time.Now().Add(time.Hour))
	_ = s.Login(tok, nil)
	gen := s.Generation()
	s.Invalidate(tok)
	if s.Authenticated() {
		t.Error("expected signed out after invalidate")
	}
	if s.Generation() == gen {
		t.Error("expected generation to change")
	}
}

func TestSession_InvalidateIgnoresReplacedToken(t *testing.T) {
	store := &MemoryStore{}
	s := New(store)
	old := makeToken(t, "parent", time.Now().Add(time.Hour))
	fresh := makeToken(t, "admin", time.Now().Add(time.Hour))
	_ = s.Login(old, nil)
	_ = s.Login(fresh, nil)

	s.Invalidate(old)
	if s.Token() != fresh {
		t.Fatal("rejection of the replaced token signed out the current session")
	}
	if st, _ := store.Load(); st == nil || st.Token != fresh {
		t.Error("expected stored session kept")
	}
}

// A 401 that arrives after a new login must not clear the new session.
func TestSession_Late401AfterRelogin(t *testing.T) {
	s := New(&MemoryStore{})
	old := makeToken(t, "parent", time.Now().Add(time.Hour))
	fresh := makeToken(t, "admin", time.Now().Add(time.Hour))
	if err := s.Login(old, nil); err != nil {
		t.Fatal(err)
	}

	arrived := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-release
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Token expired"}`))
	}))
	defer srv.Close()
	api, err := apiclient.New(srv.URL, apiclient.WithTokenSource(s))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- api.Do(context.Background(), apiclient.Request{Method: http.MethodGet, Path: "/api/v1/auth/me", Auth: true}, nil)
	}()
	<-arrived
	if err := s.Login(fresh, nil); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := <-done; !errors.Is(err, apiclient.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if s.Token() != fresh {
		t.Error("late 401 for the old token signed out the new session")
	}
}

func TestSession_ApplyProfileGenerationGuard(t *testing.T) {
	s := New(nil)
	_ = s.Login(makeToken(t, "parent", time.Now().Add(time.Hour)), nil)
	gen := s.Generation()

	_ = s.Login(makeToken(t, "admin", time.Now().Add(time.Hour)), nil)
	if s.ApplyProfile(gen, &Profile{FullName: "Stale"}) {
		t.Fatal("expected stale profile to be rejected")
	}
	if s.Profile() != nil {
		t.Error("stale profile was applied")
	}
	if !s.ApplyProfile(s.Generation(), &Profile{FullName: "Fresh"}) {
		t.Fatal("expected fresh profile to apply")
	}
	if s.Profile().FullName != "Fresh" {
		t.Errorf("got %q", s.Profile().FullName)
	}
}

func TestFileStore_SealedRoundTrip(t *testing.T) {
	sealer, err := hipaa.NewSealer(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	fs := NewFileStore(path, sealer)

	want := &State{Token: "abc", Profile: &Profile{Email: "a@b.co", Role: "parent"}}
	if err := fs.Save(want); err != nil {
		t.Fatal(err)
	}
	got, err := fs.Load()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	keyless := NewFileStore(path, &hipaa.Sealer{})
	if _, err := keyless.Load(); !errors.Is(err, hipaa.ErrSealedNoKey) {
		t.Errorf("expected ErrSealedNoKey, got %v", err)
	}

	if err := fs.Clear(); err != nil {
		t.Fatal(err)
	}
	if st, err := fs.Load(); err != nil || st != nil {
		t.Errorf("expected empty store, got %v %v", st, err)
	}
}

func TestFileStore_KeyedStoreRejectsPlantedSession(t *testing.T) {
	sealer, err := hipaa.NewSealer(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "session.json")
	planted := `{"token":"` + makeToken(t, "admin", time.Now().Add(time.Hour)) + `"}`
	if err := os.WriteFile(path, []byte(planted), 0o600); err != nil {
		t.Fatal(err)
	}

	s := New(NewFileStore(path, sealer))
	if err := s.Init(); !errors.Is(err, hipaa.ErrNotSealed) {
		t.Fatalf("expected ErrNotSealed, got %v", err)
	}
	if s.Authenticated() {
		t.Error("unencrypted session file was accepted")
	}
}

type profileFunc func(ctx context.Context) (*Profile, error)

func (f profileFunc) Me(ctx context.Context) (*Profile, error) { return f(ctx) }

func TestRefresher_SkipsWhenInFlight(t *testing.T) {
	s := New(nil)
	_ = s.Login(makeToken(t, "parent", time.Now().Add(time.Hour)), nil)

	var calls int32
	release := make(chan struct{})
	started := make(chan struct{})
	src := profileFunc(func(ctx context.Context) (*Profile, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
		return &Profile{FullName: "Refreshed"}, nil
	})
	r := NewRefresher(s, src, time.Hour, zerolog.Nop())

	done := make(chan bool)
	go func() { done <- r.RefreshOnce(context.Background()) }()
	<-started

	if r.RefreshOnce(context.Background()) {
		t.Error("expected overlapping refresh to be skipped")
	}
	close(release)
	if !<-done {
		t.Error("expected first refresh to apply")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}
	if s.Profile().FullName != "Refreshed" {
		t.Errorf("profile not applied: %+v", s.Profile())
	}
}

func TestRefresher_IgnoresErrorsAndLogout(t *testing.T) {
	s := New(nil)
	_ = s.Login(makeToken(t, "parent", time.Now().Add(time.Hour)), nil)

	failing := NewRefresher(s, profileFunc(func(context.Context) (*Profile, error) {
		return nil, errors.New("offline")
	}), time.Hour, zerolog.Nop())
	if failing.RefreshOnce(context.Background()) {
		t.Error("expected failed refresh to report false")
	}

	r := NewRefresher(s, profileFunc(func(context.Context) (*Profile, error) {
		_ = s.Logout()
		return &Profile{FullName: "Late"}, nil
	}), time.Hour, zerolog.Nop())
	if r.RefreshOnce(context.Background()) {
		t.Error("expected late profile after logout to be discarded")
	}
	if s.Profile() != nil {
		t.Error("profile applied after logout")
	}
}
