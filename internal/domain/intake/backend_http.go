package intake

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/smhs/intake/internal/platform/apiclient"
)

// Messages shown when the API rejects a call without saying why.
const (
	fallbackSubmit  = "Failed to submit form. Please try again."
	fallbackUpdate  = "Failed to update form. Please try again."
	fallbackStatus  = "Failed to check status. Please try again."
	fallbackDetails = "Failed to load form details."
)

type httpBackend struct {
	api *apiclient.Client
}

// NewHTTPBackend returns a Backend over the REST API.
func NewHTTPBackend(api *apiclient.Client) Backend {
	return &httpBackend{api: api}
}

func (b *httpBackend) Submit(ctx context.Context, p *Payload) (*SubmitResponse, error) {
	var out SubmitResponse
	err := b.api.Do(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/api/v1/intake/submit",
		Multipart: p,
		Fallback:  fallbackSubmit,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) Update(ctx context.Context, id string, p *Payload) (*SubmitResponse, error) {
	var out SubmitResponse
	err := b.api.Do(ctx, apiclient.Request{
		Method:    http.MethodPut,
		Path:      "/api/v1/intake/update/" + url.PathEscape(id),
		Auth:      true,
		Multipart: p,
		Fallback:  fallbackUpdate,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) Status(ctx context.Context, id uuid.UUID) (*StatusRecord, error) {
	var out StatusRecord
	err := b.api.Do(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Path:     "/api/v1/intake/status/" + id.String(),
		Fallback: fallbackStatus,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) Details(ctx context.Context, id string) (*Draft, error) {
	var raw json.RawMessage
	err := b.api.Do(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Path:     "/api/v1/intake/details/" + url.PathEscape(id),
		Auth:     true,
		Fallback: fallbackDetails,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return DecodeDetails(raw)
}
