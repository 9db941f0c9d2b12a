package intake

import (
	"context"
	"errors"
	"sync"
)

// ErrSubmissionInFlight is returned when Submit is called while an earlier
// attempt has not finished.
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

// SubmitState is the lifecycle of one Submitter.
type SubmitState string

const (
	SubmitIdle       SubmitState = "idle"
	SubmitSubmitting SubmitState = "submitting"
	SubmitSucceeded  SubmitState = "succeeded"
	SubmitFailed     SubmitState = "failed"
)

// Submission is a snapshot of a Submitter.
type Submission struct {
	State    SubmitState
	Attempt  int
	Response *SubmitResponse
	Err      error
}

// Submitter drives one user's submission: idle, submitting, then succeeded
// or failed. Only one attempt may be outstanding. A failed attempt can be
// retried; submitting again after success starts a fresh attempt.
type Submitter struct {
	svc *Service

	mu       sync.Mutex
	state    SubmitState
	attempt  int
	response *SubmitResponse
	err      error
}

func NewSubmitter(svc *Service) *Submitter {
	return &Submitter{svc: svc, state: SubmitIdle}
}

// Submit validates d and, when valid, sends it. Validation failures return
// *ValidationError and leave the state untouched.
func (s *Submitter) Submit(ctx context.Context, d *Draft) (*SubmitResponse, error) {
	s.mu.Lock()
	if s.state == SubmitSubmitting {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	res := s.svc.Validate(d)
	if !res.Valid() {
		s.mu.Unlock()
		return nil, &ValidationError{Fields: res.Errors}
	}
	s.state = SubmitSubmitting
	s.attempt++
	s.response, s.err = nil, nil
	s.mu.Unlock()

	resp, err := s.svc.SubmitForm(ctx, res.Form)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state, s.err = SubmitFailed, err
		return nil, err
	}
	s.state, s.response = SubmitSucceeded, resp
	return resp, nil
}

// Snapshot returns the current state.
func (s *Submitter) Snapshot() Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Submission{State: s.state, Attempt: s.attempt, Response: s.response, Err: s.err}
}

// Reset returns a finished Submitter to idle. It has no effect while an
// attempt is in flight.
func (s *Submitter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SubmitSubmitting {
		return
	}
	s.state, s.response, s.err = SubmitIdle, nil, nil
}
