package fakeapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// TokenTTL is the lifetime of tokens issued by login and OTP verification.
const TokenTTL = time.Hour

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

func (s *Server) signup(c echo.Context) error {
	var in credentials
	if err := c.Bind(&in); err != nil || in.Email == "" || in.Password == "" {
		return detail(c, http.StatusUnprocessableEntity, "Email and password are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(in.Email)
	if _, exists := s.accounts[email]; exists {
		return detail(c, http.StatusBadRequest, "Email already registered")
	}
	s.accounts[email] = &Account{ID: uuid.NewString(), Email: email, Password: in.Password, FullName: in.FullName, Role: "parent", OTP: DefaultOTP}
	return c.JSON(http.StatusCreated, map[string]any{"message": "Verification code sent to " + email})
}

func (s *Server) verifyOTP(c echo.Context) error {
	var in credentials
	if err := c.Bind(&in); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Invalid body")
	}
	s.mu.Lock()
	a := s.accounts[strings.ToLower(in.Email)]
	if a == nil || a.OTP == "" || a.OTP != in.OTP {
		s.mu.Unlock()
		return detail(c, http.StatusBadRequest, "Invalid or expired verification code")
	}
	a.Verified = true
	a.OTP = ""
	s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{"access_token": s.sign(a, TokenTTL), "token_type": "bearer"})
}

func (s *Server) login(c echo.Context) error {
	var in credentials
	if err := c.Bind(&in); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Invalid body")
	}
	s.mu.Lock()
	a := s.accounts[strings.ToLower(in.Email)]
	s.mu.Unlock()
	if a == nil || a.Password != in.Password {
		return detail(c, http.StatusUnauthorized, "Incorrect email or password")
	}
	if !a.Verified {
		return detail(c, http.StatusForbidden, "Email not verified")
	}
	return c.JSON(http.StatusOK, map[string]any{"access_token": s.sign(a, TokenTTL), "token_type": "bearer"})
}

func (s *Server) forgotPassword(c echo.Context) error {
	var in credentials
	if err := c.Bind(&in); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Invalid body")
	}
	s.mu.Lock()
	if a := s.accounts[strings.ToLower(in.Email)]; a != nil {
		a.OTP = DefaultOTP
	}
	s.mu.Unlock()
	// Same answer whether or not the account exists.
	return c.JSON(http.StatusOK, map[string]any{"message": "If the email exists, a reset code has been sent"})
}

func (s *Server) resetPassword(c echo.Context) error {
	var in credentials
	if err := c.Bind(&in); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Invalid body")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[strings.ToLower(in.Email)]
	if a == nil || a.OTP == "" || a.OTP != in.OTP {
		return detail(c, http.StatusBadRequest, "Invalid or expired reset code")
	}
	if len(in.NewPassword) < 8 {
		return detail(c, http.StatusBadRequest, "Password must be at least 8 characters")
	}
	a.Password = in.NewPassword
	a.OTP = ""
	return c.JSON(http.StatusOK, map[string]any{"message": "Password reset successfully"})
}

func (s *Server) me(c echo.Context) error {
	claims := c.Get("claims").(*Claims)
	s.mu.Lock()
	a := s.accounts[claims.Email]
	s.mu.Unlock()
	if a == nil {
		return detail(c, http.StatusNotFound, "User not found")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":        a.ID,
		"email":     a.Email,
		"full_name": a.FullName,
		"role":      a.Role,
	})
}

// -- admin --

func (s *Server) listIntakes(c echo.Context) error {
	status := c.QueryParam("status")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*Record
	for _, id := range s.order {
		r := s.records[id]
		if status == "" || r.Status == status {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].SubmittedAt.Before(matched[j].SubmittedAt) })

	items := []map[string]any{}
	for i := offset; i < len(matched) && i < offset+limit; i++ {
		items = append(items, summaryBody(matched[i]))
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items, "total": len(matched)})
}

func summaryBody(r *Record) map[string]any {
	first := func(k string) string {
		if v := r.Fields[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	nested := Nest(r.Fields)
	var categories []any
	if sn, ok := nested["service_needs"].(map[string]any); ok {
		categories, _ = sn["service_category"].([]any)
	}
	body := statusBody(r)
	body["student_name"] = strings.TrimSpace(first("student_information.first_name") + " " + first("student_information.last_name"))
	body["school"] = first("student_information.school")
	body["grade"] = first("student_information.grade")
	body["severity_of_concern"] = first("service_needs.severity_of_concern")
	body["service_category"] = categories
	body["immediate_safety_concern"] = first("immediate_safety_concern")
	return body
}

func (s *Server) process(c echo.Context) error {
	r, err := s.lookup(c)
	if r == nil {
		return err
	}
	var in struct {
		Note string `json:"note"`
	}
	_ = c.Bind(&in)
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Status == "processed" {
		return detail(c, http.StatusConflict, "Form already processed")
	}
	now := time.Now().UTC()
	r.Status = "processed"
	r.ProcessedAt = &now
	r.Note = in.Note
	return c.JSON(http.StatusOK, statusBody(r))
}
