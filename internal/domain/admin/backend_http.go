package admin

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/smhs/intake/internal/domain/intake"
	"github.com/smhs/intake/internal/platform/apiclient"
	"github.com/smhs/intake/pkg/pagination"
)

const (
	fallbackList    = "Failed to load submissions."
	fallbackProcess = "Failed to process the submission."
)

type httpBackend struct {
	api *apiclient.Client
}

// NewHTTPBackend returns a Backend over the REST API. Every call needs an
// admin token.
func NewHTTPBackend(api *apiclient.Client) Backend {
	return &httpBackend{api: api}
}

func (b *httpBackend) List(ctx context.Context, status intake.Status, p pagination.Params) (*Page, error) {
	q := p.Query()
	if status != "" {
		q.Set("status", string(status))
	}
	var out Page
	err := b.api.Do(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Path:     "/api/v1/admin/intakes",
		Query:    q,
		Auth:     true,
		Fallback: fallbackList,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []Submission{}
	}
	return &out, nil
}

func (b *httpBackend) Process(ctx context.Context, id uuid.UUID, note string) (*intake.StatusRecord, error) {
	var out intake.StatusRecord
	err := b.api.Do(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Path:     "/api/v1/admin/intakes/" + id.String() + "/process",
		Auth:     true,
		JSON:     ProcessRequest{Note: note},
		Fallback: fallbackProcess,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
