package intake

import (
	"context"

	"github.com/google/uuid"
)

// Backend is the upstream intake API.
type Backend interface {
	Submit(ctx context.Context, p *Payload) (*SubmitResponse, error)
	Update(ctx context.Context, id string, p *Payload) (*SubmitResponse, error)
	Status(ctx context.Context, id uuid.UUID) (*StatusRecord, error)
	Details(ctx context.Context, id string) (*Draft, error)
}
