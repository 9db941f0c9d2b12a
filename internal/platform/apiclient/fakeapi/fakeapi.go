// Package fakeapi is an in-memory stand-in for the intake REST API, used by
// tests of the client, the services, the edge handlers and the CLI. It keeps
// the upstream wire contract (multipart bodies, FastAPI-style "detail"
// errors, bearer tokens) without any persistence.
package fakeapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// DefaultOTP is the one-time code every fake account receives.
const DefaultOTP = "123456"

// FileInfo describes an uploaded part.
type FileInfo struct {
	Name        string
	ContentType string
	Size        int64
}

// Record is a stored submission.
type Record struct {
	UUID        uuid.UUID
	Status      string
	Fields      map[string][]string
	Files       map[string]FileInfo
	SubmittedAt time.Time
	ProcessedAt *time.Time
	Note        string
}

// Account is a fake user.
type Account struct {
	ID       string
	Email    string
	Password string
	FullName string
	Role     string
	Verified bool
	OTP      string
}

// Claims are the token claims the fake issues.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Role  string   `json:"role"`
	Roles []string `json:"roles"`
}

// Server is the fake API. Exported fields may be changed between requests.
type Server struct {
	Echo *echo.Echo

	mu         sync.Mutex
	records    map[uuid.UUID]*Record
	order      []uuid.UUID
	accounts   map[string]*Account
	signingKey []byte
	failNext   map[string]int
	delay      time.Duration
	calls      map[string]int
}

// New returns a fake with no records or accounts.
func New() *Server {
	s := &Server{
		Echo:       echo.New(),
		records:    make(map[uuid.UUID]*Record),
		accounts:   make(map[string]*Account),
		signingKey: []byte("fakeapi-signing-key"),
		failNext:   make(map[string]int),
		calls:      make(map[string]int),
	}
	s.Echo.HideBanner = true
	s.routes()
	return s
}

// Start serves the fake on a local listener.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s.Echo)
}

func (s *Server) routes() {
	api := s.Echo.Group("/api/v1", s.track)

	api.POST("/intake/submit", s.submit)
	api.GET("/intake/status/:id", s.status)
	api.GET("/intake/details/:id", s.details, s.requireAuth("admin", "staff"))
	api.PUT("/intake/update/:id", s.update, s.requireAuth("admin", "staff"))

	api.POST("/auth/signup", s.signup)
	api.POST("/auth/verify-otp", s.verifyOTP)
	api.POST("/auth/login", s.login)
	api.POST("/auth/forgot-password", s.forgotPassword)
	api.POST("/auth/reset-password", s.resetPassword)
	api.GET("/auth/me", s.me, s.requireAuth())

	api.GET("/admin/intakes", s.listIntakes, s.requireAuth("admin"))
	api.POST("/admin/intakes/:id/process", s.process, s.requireAuth("admin"))
}

// FailNext makes the next request to route (for example
// "POST /api/v1/intake/submit") answer with status.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[route] = status
}

// SetDelay delays every response, for in-flight tests.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns how many requests hit route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) track(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		route := c.Request().Method + " " + c.Path()
		s.mu.Lock()
		s.calls[route]++
		status, fail := s.failNext[route]
		delete(s.failNext, route)
		delay := s.delay
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-c.Request().Context().Done():
				return c.Request().Context().Err()
			}
		}
		if fail {
			if status >= 500 {
				return c.String(status, "upstream failure")
			}
			return c.JSON(status, map[string]any{"detail": fmt.Sprintf("forced failure %d", status)})
		}
		return next(c)
	}
}

// AddAccount registers a verified account and returns it.
func (s *Server) AddAccount(email, password, fullName, role string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &Account{ID: uuid.NewString(), Email: strings.ToLower(email), Password: password, FullName: fullName, Role: role, Verified: true}
	s.accounts[a.Email] = a
	return a
}

// IssueToken mints a token for email valid for ttl.
func (s *Server) IssueToken(email string, ttl time.Duration) string {
	s.mu.Lock()
	a := s.accounts[strings.ToLower(email)]
	s.mu.Unlock()
	if a == nil {
		a = &Account{ID: uuid.NewString(), Email: email}
	}
	return s.sign(a, ttl)
}

func (s *Server) sign(a *Account, ttl time.Duration) string {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: a.Email,
		Role:  a.Role,
		Roles: []string{a.Role},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		panic(err)
	}
	return tok
}

// AddRecord stores a record directly, bypassing the submit endpoint.
func (s *Server) AddRecord(r *Record) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Status == "" {
		r.Status = "pending"
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now().UTC()
	}
	if r.Fields == nil {
		r.Fields = map[string][]string{}
	}
	s.records[r.UUID] = r
	s.order = append(s.order, r.UUID)
	return r
}

// Record returns a copy of a stored record.
func (s *Server) Record(id uuid.UUID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	cp := *r
	cp.Fields = make(map[string][]string, len(r.Fields))
	for k, v := range r.Fields {
		cp.Fields[k] = append([]string(nil), v...)
	}
	return cp, true
}

func (s *Server) requireAuth(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header.Get("Authorization")
			tok, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || tok == "" {
				return detail(c, http.StatusUnauthorized, "Not authenticated")
			}
			claims := &Claims{}
			parsed, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
				return s.signingKey, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !parsed.Valid {
				return detail(c, http.StatusUnauthorized, "Could not validate credentials")
			}
			if len(roles) > 0 {
				allowed := false
				for _, r := range roles {
					if claims.Role == r {
						allowed = true
					}
				}
				if !allowed {
					return detail(c, http.StatusForbidden, "Not enough permissions")
				}
			}
			c.Set("claims", claims)
			return next(c)
		}
	}
}

func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{"detail": msg})
}

// -- intake --

func (s *Server) submit(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Expected multipart form data")
	}
	if len(form.Value["student_information.first_name"]) == 0 {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{
				"loc":  []string{"body", "student_information.first_name"},
				"msg":  "field required",
				"type": "value_error.missing",
			}},
		})
	}
	r := &Record{Fields: map[string][]string{}, Files: map[string]FileInfo{}}
	for k, v := range form.Value {
		r.Fields[k] = append([]string(nil), v...)
	}
	for k, fhs := range form.File {
		if len(fhs) > 0 {
			r.Files[k] = FileInfo{Name: fhs[0].Filename, ContentType: fhs[0].Header.Get("Content-Type"), Size: fhs[0].Size}
		}
	}
	s.AddRecord(r)
	return c.JSON(http.StatusOK, map[string]any{
		"student_uuid": r.UUID,
		"message":      "Intake form submitted successfully",
		"status":       r.Status,
	})
}

func (s *Server) lookup(c echo.Context) (*Record, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, detail(c, http.StatusNotFound, "Form not found")
	}
	s.mu.Lock()
	r, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return nil, detail(c, http.StatusNotFound, "Form not found")
	}
	return r, nil
}

func (s *Server) status(c echo.Context) error {
	r, err := s.lookup(c)
	if r == nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(http.StatusOK, statusBody(r))
}

func statusBody(r *Record) map[string]any {
	body := map[string]any{
		"student_uuid":   r.UUID,
		"status":         r.Status,
		"submitted_date": r.SubmittedAt.Format("2006-01-02T15:04:05.999999"),
	}
	if r.ProcessedAt != nil {
		body["processed_date"] = r.ProcessedAt.Format("2006-01-02T15:04:05.999999")
	}
	return body
}

func (s *Server) details(c echo.Context) error {
	r, err := s.lookup(c)
	if r == nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	body := Nest(r.Fields)
	body["student_uuid"] = r.UUID
	body["status"] = r.Status
	return c.JSON(http.StatusOK, body)
}

func (s *Server) update(c echo.Context) error {
	r, err := s.lookup(c)
	if r == nil {
		return err
	}
	form, ferr := c.MultipartForm()
	if ferr != nil {
		return detail(c, http.StatusUnprocessableEntity, "Expected multipart form data")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// An indexed key replaces the whole list; absent keys are left alone.
	replaced := map[string]bool{}
	for k, v := range form.Value {
		base := k
		if i := strings.IndexByte(k, '['); i >= 0 {
			base = k[:i]
		}
		if base != k && !replaced[base] {
			for existing := range r.Fields {
				if strings.HasPrefix(existing, base+"[") {
					delete(r.Fields, existing)
				}
			}
			replaced[base] = true
		}
		r.Fields[k] = append([]string(nil), v...)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"student_uuid": r.UUID,
		"message":      "Intake form updated successfully",
		"status":       r.Status,
	})
}

// Nest turns dotted, indexed wire keys back into nested JSON members.
func Nest(fields map[string][]string) map[string]any {
	out := map[string]any{}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })

	for _, k := range keys {
		if len(fields[k]) == 0 {
			continue
		}
		val := fields[k][0]
		parts := strings.Split(k, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := m[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				m[p] = child
			}
			m = child
		}
		leaf := parts[len(parts)-1]
		if i := strings.IndexByte(leaf, '['); i >= 0 {
			name := leaf[:i]
			list, _ := m[name].([]any)
			m[name] = append(list, val)
			continue
		}
		m[leaf] = val
	}
	return out
}

// keyLess orders keys so that "x[2]" sorts before "x[10]".
func keyLess(a, b string) bool {
	ab, ai := splitKey(a)
	bb, bi := splitKey(b)
	if ab != bb {
		return ab < bb
	}
	return ai < bi
}

func splitKey(k string) (string, int) {
	i := strings.IndexByte(k, '[')
	if i < 0 {
		return k, -1
	}
	n, _ := strconv.Atoi(strings.TrimSuffix(k[i+1:], "]"))
	return k[:i], n
}
