package account

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/smhs/intake/internal/platform/apiclient"
	"github.com/smhs/intake/internal/platform/session"
)

// Service wraps the upstream auth endpoints. It holds no session itself:
// the CLI passes its Session to SignIn, the edge hands tokens back to the
// browser.
type Service struct {
	api    *apiclient.Client
	logger zerolog.Logger
}

func NewService(api *apiclient.Client, logger zerolog.Logger) *Service {
	return &Service{api: api, logger: logger}
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*MessageResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := check(req); err != nil {
		return nil, err
	}
	var out MessageResponse
	if err := s.post(ctx, "/api/v1/auth/signup", req, "Signup failed. Please try again.", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*TokenResponse, error) {
	req.Email = normalizeEmail(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if err := check(req); err != nil {
		return nil, err
	}
	var out TokenResponse
	if err := s.post(ctx, "/api/v1/auth/verify-otp", req, "Verification failed. Please try again.", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := check(req); err != nil {
		return nil, err
	}
	var out TokenResponse
	if err := s.post(ctx, "/api/v1/auth/login", req, "Login failed. Please check your credentials.", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (*MessageResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := check(req); err != nil {
		return nil, err
	}
	var out MessageResponse
	if err := s.post(ctx, "/api/v1/auth/forgot-password", req, "Could not send a reset code. Please try again.", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*MessageResponse, error) {
	req.Email = normalizeEmail(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if err := check(req); err != nil {
		return nil, err
	}
	var out MessageResponse
	if err := s.post(ctx, "/api/v1/auth/reset-password", req, "Password reset failed. Please try again.", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me fetches the profile of the caller. It satisfies session.ProfileSource.
func (s *Service) Me(ctx context.Context) (*session.Profile, error) {
	var p session.Profile
	err := s.api.Do(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Path:     "/api/v1/auth/me",
		Auth:     true,
		Fallback: "Could not load your profile.",
	}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SignIn stores tok in sess together with the profile it belongs to.
func (s *Service) SignIn(ctx context.Context, sess *session.Session, tok *TokenResponse) (*session.Profile, error) {
	p, err := s.Me(apiclient.WithToken(ctx, tok.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if err := sess.Login(tok.AccessToken, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", p.ID).Str("role", p.Role).Msg("signed in")
	return p, nil
}

func (s *Service) post(ctx context.Context, path string, body any, fallback string, out any) error {
	return s.api.Do(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Path:     path,
		JSON:     body,
		Fallback: fallback,
	}, out)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
