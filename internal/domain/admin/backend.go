package admin

import (
	"context"

	"github.com/google/uuid"

	"github.com/smhs/intake/internal/domain/intake"
	"github.com/smhs/intake/pkg/pagination"
)

// Backend is the admin side of the intake API.
type Backend interface {
	List(ctx context.Context, status intake.Status, p pagination.Params) (*Page, error)
	Process(ctx context.Context, id uuid.UUID, note string) (*intake.StatusRecord, error)
}
