package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a workflow definition violates a
	// structural invariant (non-contiguous step order, zero quorum, unknown
	// rule). Invalid definitions are never persisted.
	ErrValidation = errors.New("invalid workflow definition")

	// ErrDuplicateRequest is returned when a document already has an open
	// approval request. Callers should fetch and reuse the existing one.
	ErrDuplicateRequest = errors.New("document already has an open approval request")

	// ErrRequestNotActionable is returned when acting on a request that does
	// not exist or has already reached a terminal state.
	ErrRequestNotActionable = errors.New("request is not actionable")

	// ErrNotEligibleApprover is returned when the actor is not in the frozen
	// approver set of the request's current step.
	ErrNotEligibleApprover = errors.New("actor is not an eligible approver for the current step")

	// ErrDuplicateAction is returned when an approver has already voted at
	// the current step. The earlier vote stands; nothing is double-counted.
	ErrDuplicateAction = errors.New("actor has already voted at this step")

	// ErrWorkflowNotFound is returned when a workflow definition lookup misses.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRequestNotFound is returned when a request lookup misses.
	ErrRequestNotFound = errors.New("approval request not found")
)

// DuplicateRequestError carries the id of the existing open request so the
// caller can reuse it. errors.Is(err, ErrDuplicateRequest) matches it.
type DuplicateRequestError struct {
	ExistingID string
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("document already has an open approval request (id=%s)", e.ExistingID)
}

func (e *DuplicateRequestError) Unwrap() error {
	return ErrDuplicateRequest
}
