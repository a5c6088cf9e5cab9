// Package workflow implements the approval workflow engine: selecting the
// applicable workflow for a document, opening a request against a frozen step
// snapshot, gating approver actions, evaluating quorum, and pushing terminal
// outcomes back to the owning document.
package workflow

import (
	"context"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
)

// DocumentAttributes are the matching-relevant fields of a document,
// fetched from the document store when a request is opened
type DocumentAttributes struct {
	Amount   float64
	Currency string
	Category string
	OwnerID  string
}

// Outcome is the terminal result pushed back onto a document
type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)

// EventKind identifies a notification event
type EventKind string

const (
	EventRequestOpened    EventKind = "request_opened"
	EventStepAdvanced     EventKind = "step_advanced"
	EventRequestApproved  EventKind = "request_approved"
	EventRequestRejected  EventKind = "request_rejected"
	EventRequestCancelled EventKind = "request_cancelled"
)

// Directory resolves an approver rule into a concrete set of user ids.
// Called exactly once per step, at request instantiation.
type Directory interface {
	ResolveApprovers(ctx context.Context, rule models.ApproverRule, companyID, documentOwnerID string) ([]string, error)
}

// DocumentStore is the engine's view of the owning document services.
// SetApprovalOutcome must be idempotent: the sync may be re-driven by the
// reconciler after a partial failure.
type DocumentStore interface {
	GetDocumentAttributes(ctx context.Context, companyID string, ref models.DocumentRef) (*DocumentAttributes, error)
	SetApprovalOutcome(ctx context.Context, companyID string, ref models.DocumentRef, outcome Outcome) error
}

// AuditRecorder persists an audit trail entry. Failures are logged by
// callers and never roll back the approval transaction.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditEntry describes one audited transition
type AuditEntry struct {
	CompanyID  string
	EntityType string
	EntityID   string
	Action     string
	ActorID    string
	Before     string
	After      string
}

// NotificationDispatcher delivers approval events to users. Fire-and-forget:
// delivery failures must not affect the approval transaction.
type NotificationDispatcher interface {
	Notify(ctx context.Context, userIDs []string, requestID string, kind EventKind) error
}

// CurrencyConverter converts document amounts into the company's base
// currency so threshold matching cannot be bypassed by invoicing in a
// weaker currency
type CurrencyConverter interface {
	ToBase(amount float64, currency string) (float64, error)
}
