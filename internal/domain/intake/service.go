package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smhs/intake/internal/platform/apiclient"
	"github.com/smhs/intake/internal/platform/hipaa"
)

var (
	ErrInvalidIdentifier = errors.New("enter a valid submission ID")
	ErrMissingIdentifier = errors.New("a submission identifier is required")
)

// Service runs the stateless intake operations shared by the CLI and the
// HTTP edge.
type Service struct {
	backend   Backend
	validator *Validator
	limits    ImageLimits
	logger    zerolog.Logger
}

func NewService(backend Backend, v *Validator, limits ImageLimits, logger zerolog.Logger) *Service {
	return &Service{backend: backend, validator: v, limits: limits.withDefaults(), logger: logger}
}

// Limits returns the card image limits in effect.
func (s *Service) Limits() ImageLimits { return s.limits }

// Validate checks a draft without touching the network.
func (s *Service) Validate(d *Draft) Result {
	return s.validator.Validate(d)
}

// Submit validates d and sends it. An invalid draft yields *ValidationError
// and no request.
func (s *Service) Submit(ctx context.Context, d *Draft) (*SubmitResponse, error) {
	res := s.validator.Validate(d)
	if !res.Valid() {
		return nil, &ValidationError{Fields: res.Errors}
	}
	return s.SubmitForm(ctx, res.Form)
}

// SubmitForm sends an already validated form.
func (s *Service) SubmitForm(ctx context.Context, f *IntakeForm) (*SubmitResponse, error) {
	p := Serialize(f)
	hipaa.LogPayloadShape(s.logger, "submitting intake form", p.Keys())
	resp, err := s.backend.Submit(ctx, p)
	if err != nil {
		s.logger.Warn().Str("kind", string(apiclient.KindOf(err))).Msg("intake submit failed")
		return nil, err
	}
	s.logger.Info().
		Str("student_uuid", resp.StudentUUID.String()).
		Bool("safety_concern", f.ImmediateSafetyConcern == Yes).
		Msg("intake form submitted")
	return resp, nil
}

// CheckStatus looks up a submission. A 404 is the not-found outcome, not an
// error. A malformed identifier fails without a request.
func (s *Service) CheckStatus(ctx context.Context, raw string) StatusResult {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return StatusResult{Outcome: OutcomeError, Message: "Enter a valid submission ID.", Err: ErrInvalidIdentifier}
	}
	rec, err := s.backend.Status(ctx, id)
	switch {
	case err == nil:
		return StatusResult{Outcome: OutcomeFound, Record: rec}
	case errors.Is(err, apiclient.ErrNotFound):
		return StatusResult{Outcome: OutcomeNotFound, Message: "No submission was found with that ID."}
	default:
		s.logger.Debug().Err(err).Msg("status lookup failed")
		return StatusResult{Outcome: OutcomeError, Message: apiclient.Message(err), Err: err}
	}
}

// LoadForEdit fetches a stored submission as an editable draft.
func (s *Service) LoadForEdit(ctx context.Context, id string) (*Draft, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMissingIdentifier
	}
	d, err := s.backend.Details(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load intake %s: %w", id, err)
	}
	return d, nil
}

// Update validates d with the same rules as Submit and replaces the stored
// submission.
func (s *Service) Update(ctx context.Context, id string, d *Draft) (*SubmitResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMissingIdentifier
	}
	res := s.validator.Validate(d)
	if !res.Valid() {
		return nil, &ValidationError{Fields: res.Errors}
	}
	p := Serialize(res.Form)
	hipaa.LogPayloadShape(s.logger, "updating intake form", p.Keys())
	resp, err := s.backend.Update(ctx, id, p)
	if err != nil {
		return nil, fmt.Errorf("update intake %s: %w", id, err)
	}
	return resp, nil
}
