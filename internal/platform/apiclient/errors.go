package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Sentinels for errors.Is checks against *Error.
var (
	ErrTransport    = errors.New("transport failure")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRejected     = errors.New("request rejected")
	ErrServer       = errors.New("server error")
)

// Kind classifies a failed call.
type Kind string

const (
	KindTransport    Kind = "transport"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindRejected     Kind = "rejected"
	KindServer       Kind = "server"
)

const (
	msgTransport    = "Unable to reach the server. Check your connection and try again."
	msgUnauthorized = "Your session has expired. Please log in again."
	msgForbidden    = "You do not have permission to perform this action."
	msgServer       = "The server encountered an error. Please try again later."
	msgRejected     = "The request could not be completed."
)

// Error is the normalized form of every non-success outcome. Message is
// always safe to show to the user.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrForbidden:
		return e.Kind == KindForbidden
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrServer:
		return e.Kind == KindServer
	}
	return false
}

// Message returns the user-facing text for any error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// KindOf returns the Kind of err, or "" when err did not come from a call.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// HTTPStatus maps err to the status an edge handler should answer with.
func HTTPStatus(err error) int {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Kind {
	case KindTransport:
		return http.StatusBadGateway
	case KindServer:
		return http.StatusBadGateway
	}
	if apiErr.Status != 0 {
		return apiErr.Status
	}
	return http.StatusBadRequest
}

// fromResponse builds an Error for a non-2xx response. The message is taken
// from a "detail" member (string, or a list of {loc, msg} objects) or a
// "message" member, falling back to fallback and then to a per-kind default.
func fromResponse(status int, body []byte, fallback string) *Error {
	e := &Error{Status: status}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindRejected
	}

	e.Message = detailMessage(body)
	if e.Message == "" {
		e.Message = fallback
	}
	if e.Message == "" {
		switch e.Kind {
		case KindUnauthorized:
			e.Message = msgUnauthorized
		case KindForbidden:
			e.Message = msgForbidden
		case KindServer:
			e.Message = msgServer
		case KindNotFound:
			e.Message = "Not found"
		default:
			e.Message = msgRejected
		}
	}
	return e
}

func detailMessage(body []byte) string {
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if len(body) == 0 || json.Unmarshal(body, &envelope) != nil {
		return ""
	}
	if len(envelope.Detail) > 0 {
		var s string
		if json.Unmarshal(envelope.Detail, &s) == nil {
			return strings.TrimSpace(s)
		}
		var items []struct {
			Loc []any  `json:"loc"`
			Msg string `json:"msg"`
		}
		if json.Unmarshal(envelope.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(envelope.Message)
}
