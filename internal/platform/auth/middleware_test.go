package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/smhs/intake/internal/platform/apiclient"
	"github.com/smhs/intake/internal/platform/session"
)

func createTestToken(t *testing.T, role string, exp time.Time) string {
	t.Helper()
	claims := session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(exp)},
		Email:            "staff@example.com",
		Role:             role,
	}
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("any-key"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func run(t *testing.T, header string, mws ...echo.MiddlewareFunc) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var h echo.HandlerFunc = func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return c, h(c)
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return http.StatusOK
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	return httpErr.Code
}

func TestBearerMiddleware_NoHeaderPassesThrough(t *testing.T) {
	c, err := run(t, "", BearerMiddleware())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if apiclient.TokenFromContext(c.Request().Context()) != "" {
		t.Error("expected no token in context")
	}
}

func TestBearerMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.header, BearerMiddleware())
			if got := statusOf(t, err); got != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", got)
			}
		})
	}
}

func TestBearerMiddleware_Expired(t *testing.T) {
	tok := createTestToken(t, "admin", time.Now().Add(-time.Minute))
	_, err := run(t, "Bearer "+tok, BearerMiddleware())
	if got := statusOf(t, err); got != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", got)
	}
}

func TestBearerMiddleware_SetsContext(t *testing.T) {
	tok := createTestToken(t, "staff", time.Now().Add(time.Hour))
	c, err := run(t, "bearer "+tok, BearerMiddleware())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := c.Request().Context()
	if apiclient.TokenFromContext(ctx) != tok {
		t.Error("expected token forwarded through context")
	}
	if UserIDFromContext(ctx) != "user-1" {
		t.Errorf("user id = %q", UserIDFromContext(ctx))
	}
	if EmailFromContext(ctx) != "staff@example.com" {
		t.Errorf("email = %q", EmailFromContext(ctx))
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 1 || roles[0] != "staff" {
		t.Errorf("roles = %v", roles)
	}
}

func TestRequireRole(t *testing.T) {
	future := time.Now().Add(time.Hour)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"parent", "Bearer " + createTestToken(t, "parent", future), http.StatusForbidden},
		{"staff", "Bearer " + createTestToken(t, "staff", future), http.StatusOK},
		{"admin bypass", "Bearer " + createTestToken(t, "admin", future), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.header, BearerMiddleware(), RequireRole("staff"))
			if got := statusOf(t, err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	_, err := run(t, "", BearerMiddleware(), RequireAuth())
	if got := statusOf(t, err); got != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", got)
	}
	tok := createTestToken(t, "parent", time.Now().Add(time.Hour))
	if _, err := run(t, "Bearer "+tok, BearerMiddleware(), RequireAuth()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
