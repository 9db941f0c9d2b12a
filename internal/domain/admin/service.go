package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/smhs/intake/internal/domain/intake"
	"github.com/smhs/intake/pkg/pagination"
)

// MaxNoteLength bounds the processing note, in characters.
const MaxNoteLength = 2000

const defaultWorkers = 4

// MaxSummaryItems caps how many submissions Summary reads, whatever total the
// upstream reports.
const MaxSummaryItems = 50000

var (
	ErrInvalidStatus     = errors.New("unknown submission status")
	ErrInvalidIdentifier = errors.New("invalid submission identifier")
	ErrNoteTooLong       = fmt.Errorf("note must be at most %d characters", MaxNoteLength)
)

type Service struct {
	backend Backend
	logger  zerolog.Logger
	workers int
}

func NewService(backend Backend, logger zerolog.Logger) *Service {
	return &Service{backend: backend, logger: logger, workers: defaultWorkers}
}

// SetConcurrency sets how many list pages Summary fetches at once.
func (s *Service) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	s.workers = n
}

// List returns one page of submissions, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, p pagination.Params) (*Page, error) {
	st := intake.Status(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.backend.List(ctx, st, p.Normalize())
}

// Process marks the submission identified by raw as processed.
func (s *Service) Process(ctx context.Context, raw, note string) (*intake.StatusRecord, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrInvalidIdentifier
	}
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return nil, ErrNoteTooLong
	}
	rec, err := s.backend.Process(ctx, id, note)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("student_uuid", id.String()).Str("status", string(rec.Status)).Msg("submission processed")
	return rec, nil
}

// Summary loads every submission and aggregates it for the dashboard. The
// first page gives the total; the remaining pages are fetched concurrently.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	first := pagination.Params{Limit: pagination.MaxLimit}
	page, err := s.backend.List(ctx, "", first)
	if err != nil {
		return nil, err
	}

	total := page.Total
	switch {
	case total < len(page.Items):
		total = len(page.Items)
	case total > MaxSummaryItems:
		s.logger.Warn().Int("total", total).Int("cap", MaxSummaryItems).Msg("dashboard summary truncated")
		total = MaxSummaryItems
	}

	rest := first.Remaining(total)
	pages := make([][]Submission, len(rest))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, p := range rest {
		g.Go(func() error {
			pg, err := s.backend.List(gctx, "", p)
			if err != nil {
				return fmt.Errorf("load submissions at offset %d: %w", p.Offset, err)
			}
			pages[i] = pg.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Rows can shift between pages while they are being read.
	seen := make(map[uuid.UUID]bool, total)
	items := make([]Submission, 0, total)
	for _, batch := range append([][]Submission{page.Items}, pages...) {
		for _, it := range batch {
			if seen[it.StudentUUID] {
				continue
			}
			seen[it.StudentUUID] = true
			items = append(items, it)
		}
	}

	sum := Summarize(items)
	s.logger.Debug().Int("total", sum.Total).Int("pages", len(rest)+1).Msg("dashboard summary built")
	return &sum, nil
}
