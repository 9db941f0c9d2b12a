// Package apiclient talks to the intake REST API. It attaches bearer
// tokens, encodes JSON and multipart bodies, and normalizes every failure
// into an *Error carrying a single user-facing message.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// TokenSource supplies the bearer token for authenticated calls and is told
// which token the server rejected.
type TokenSource interface {
	Token() string
	Invalidate(token string)
}

// MultipartBody writes itself as multipart/form-data parts.
type MultipartBody interface {
	WriteMultipart(w *multipart.Writer) error
}

type tokenCtxKey struct{}

// WithToken attaches a per-request bearer token to ctx. It takes precedence
// over the client's TokenSource, and a 401 on such a request does not
// invalidate the TokenSource.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenCtxKey{}, token)
}

// TokenFromContext returns the token set by WithToken.
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenCtxKey{}).(string)
	return tok
}

// Request describes one API call.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Auth      bool
	JSON      any
	Multipart MultipartBody
	// Fallback is shown when a rejection carries no detail message.
	Fallback string
}

// Client is safe for concurrent use.
type Client struct {
	base   *url.URL
	hc     *http.Client
	tokens TokenSource
	logger zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

func WithTokenSource(ts TokenSource) Option { return func(c *Client) { c.tokens = ts } }

func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.logger = l } }

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc = &http.Client{Timeout: d} }
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https, got %q", baseURL)
	}
	c := &Client{
		base:   u,
		hc:     &http.Client{Timeout: DefaultTimeout},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetTokenSource replaces the token source after construction.
func (c *Client) SetTokenSource(ts TokenSource) { c.tokens = ts }

// Do performs the call and decodes a JSON success body into out (when out is
// non-nil). Every failure is returned as an *Error.
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	body, contentType, err := encodeBody(r)
	if err != nil {
		return err
	}

	target := c.base.JoinPath(r.Path)
	if len(r.Query) > 0 {
		target.RawQuery = r.Query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	var sourceToken string
	if r.Auth {
		tok := TokenFromContext(ctx)
		if tok == "" && c.tokens != nil {
			tok = c.tokens.Token()
			sourceToken = tok
		}
		if tok == "" {
			return &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: "Please log in to continue."}
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", r.Method).Str("path", r.Path).Msg("api request failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &Error{Kind: KindTransport, Message: msgTransport, Err: ctxErr}
		}
		return &Error{Kind: KindTransport, Message: msgTransport, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Kind: KindTransport, Status: resp.StatusCode, Message: msgTransport, Err: err}
	}

	c.logger.Debug().
		Str("method", r.Method).
		Str("path", r.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := fromResponse(resp.StatusCode, data, r.Fallback)
		if apiErr.Kind == KindUnauthorized && sourceToken != "" {
			c.tokens.Invalidate(sourceToken)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindServer, Status: resp.StatusCode, Message: "The server sent an unexpected response.", Err: err}
	}
	return nil
}

func encodeBody(r Request) (io.Reader, string, error) {
	switch {
	case r.JSON != nil && r.Multipart != nil:
		return nil, "", errors.New("request has both JSON and multipart bodies")
	case r.JSON != nil:
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("encode json body: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	case r.Multipart != nil:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := r.Multipart.WriteMultipart(w); err != nil {
			return nil, "", fmt.Errorf("encode multipart body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("close multipart body: %w", err)
		}
		return &buf, w.FormDataContentType(), nil
	}
	return nil, "", nil
}
