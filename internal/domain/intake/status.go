package intake

import (
	"context"
	"sync"
)

// Outcome of a status lookup. NotFound and Error are distinct: the first
// means the API answered that no such submission exists.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
)

// StatusResult is what a lookup produced.
type StatusResult struct {
	Outcome Outcome       `json:"outcome"`
	Record  *StatusRecord `json:"record,omitempty"`
	Message string        `json:"message,omitempty"`
	Err     error         `json:"-"`
	// Stale is set when a newer lookup started before this one finished.
	Stale bool `json:"-"`
}

// CheckState is the lifecycle of a StatusChecker.
type CheckState string

const (
	CheckIdle     CheckState = "idle"
	CheckChecking CheckState = "checking"
	CheckDone     CheckState = "done"
)

// StatusChecker holds the latest lookup for one user. Each call is numbered;
// a response for a superseded call never replaces the current result.
type StatusChecker struct {
	svc *Service

	mu      sync.Mutex
	seq     uint64
	state   CheckState
	current *StatusResult
}

func NewStatusChecker(svc *Service) *StatusChecker {
	return &StatusChecker{svc: svc, state: CheckIdle}
}

// Check runs a lookup for raw and returns its result. The result is marked
// Stale if another Check started meanwhile.
func (c *StatusChecker) Check(ctx context.Context, raw string) StatusResult {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.state = CheckChecking
	c.mu.Unlock()

	res := c.svc.CheckStatus(ctx, raw)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		res.Stale = true
		return res
	}
	c.state = CheckDone
	c.current = &res
	return res
}

// State returns the lifecycle state and the latest current result.
func (c *StatusChecker) State() (CheckState, *StatusResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return c.state, nil
	}
	cp := *c.current
	return c.state, &cp
}
