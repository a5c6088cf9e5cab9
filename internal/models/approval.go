package models

import (
	"fmt"
	"strings"
	"time"
)

// DocumentType identifies the kind of financial document under approval
type DocumentType string

const (
	DocumentTypeExpense       DocumentType = "expense"
	DocumentTypeSalesInvoice  DocumentType = "sales_invoice"
	DocumentTypePurchaseOrder DocumentType = "purchase_order"
)

var validDocumentTypes = map[DocumentType]bool{
	DocumentTypeExpense:       true,
	DocumentTypeSalesInvoice:  true,
	DocumentTypePurchaseOrder: true,
}

// IsValid returns true if the document type is supported
func (d DocumentType) IsValid() bool {
	return validDocumentTypes[d]
}

// String returns the string representation of the document type
func (d DocumentType) String() string {
	return string(d)
}

// RequestStatus represents the lifecycle state of an approval request
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
)

var terminalStatuses = map[RequestStatus]bool{
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
}

// IsTerminal returns true if no further actions are accepted in this status
func (s RequestStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// String returns the string representation of the status
func (s RequestStatus) String() string {
	return string(s)
}

// Decision is a single approver action on a request
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionComment Decision = "comment"
)

// IsValid returns true if the decision is one of the supported kinds
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject || d == DecisionComment
}

// IsVote returns true if the decision counts against the per-step uniqueness
// constraint (comments do not)
func (d Decision) IsVote() bool {
	return d == DecisionApprove || d == DecisionReject
}

// ConcurrencyMode controls how a step's quorum may be collected
type ConcurrencyMode string

const (
	ConcurrencyParallel   ConcurrencyMode = "parallel"
	ConcurrencySequential ConcurrencyMode = "sequential"
)

// IsValid returns true if the mode is supported. Sequential steps are modeled
// as quorum-1 steps and share the parallel evaluation path.
func (m ConcurrencyMode) IsValid() bool {
	return m == ConcurrencyParallel || m == ConcurrencySequential
}

// ApproverRule is a closed tagged variant naming who may act on a step:
// a specific user ("user:<id>"), everyone holding a role ("role:<name>"),
// or the document owner's manager ("manager"). Rules are resolved to concrete
// user ids exactly once, at request instantiation.
type ApproverRule string

const (
	// RuleManager resolves to the document owner's manager
	RuleManager ApproverRule = "manager"

	ruleUserPrefix = "user:"
	ruleRolePrefix = "role:"
)

// UserRule builds a rule naming one specific user
func UserRule(userID string) ApproverRule {
	return ApproverRule(ruleUserPrefix + userID)
}

// RoleRule builds a rule naming everyone holding a role
func RoleRule(role string) ApproverRule {
	return ApproverRule(ruleRolePrefix + role)
}

// UserID returns the user id for a user rule, or "" if it is not one
func (r ApproverRule) UserID() string {
	if strings.HasPrefix(string(r), ruleUserPrefix) {
		return strings.TrimPrefix(string(r), ruleUserPrefix)
	}
	return ""
}

// Role returns the role name for a role rule, or "" if it is not one
func (r ApproverRule) Role() string {
	if strings.HasPrefix(string(r), ruleRolePrefix) {
		return strings.TrimPrefix(string(r), ruleRolePrefix)
	}
	return ""
}

// IsValid returns true if the rule belongs to the closed set of resolvable rules
func (r ApproverRule) IsValid() bool {
	if r == RuleManager {
		return true
	}
	if id := r.UserID(); id != "" {
		return true
	}
	if role := r.Role(); role != "" {
		return true
	}
	return false
}

// ApprovalWorkflow is a tenant-scoped approval template. MinAmount is the
// matching threshold in the company's base currency; a nil threshold makes
// the workflow the catch-all default for its document type.
type ApprovalWorkflow struct {
	ID           string                  `json:"id"`
	CompanyID    string                  `json:"company_id"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	DocumentType DocumentType            `json:"document_type"`
	MinAmount    *float64                `json:"min_amount,omitempty"`
	Currency     string                  `json:"currency,omitempty"`
	Category     string                  `json:"category,omitempty"`
	Priority     int                     `json:"priority"`
	IsActive     bool                    `json:"is_active"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
	Steps        []*ApprovalWorkflowStep `json:"steps,omitempty"`
}

// ApprovalWorkflowStep is one stage of a workflow definition. Step orders are
// dense within a workflow: 0..N-1 with no gaps.
type ApprovalWorkflowStep struct {
	ID                string          `json:"id"`
	WorkflowID        string          `json:"workflow_id"`
	StepOrder         int             `json:"step_order"`
	ApproverRule      ApproverRule    `json:"approver_rule"`
	RequiredApprovals int             `json:"required_approvals"`
	ConcurrencyMode   ConcurrencyMode `json:"concurrency_mode"`
	CreatedAt         time.Time       `json:"created_at"`
}

// StepSnapshot is the frozen form of a workflow step stored inside a request.
// ApproverIDs is the eligible set resolved at instantiation time; later role
// or org-chart changes never alter it.
type StepSnapshot struct {
	StepOrder         int             `json:"step_order"`
	ApproverRule      ApproverRule    `json:"approver_rule"`
	RequiredApprovals int             `json:"required_approvals"`
	ConcurrencyMode   ConcurrencyMode `json:"concurrency_mode"`
	ApproverIDs       []string        `json:"approver_ids"`
}

// IsEligible returns true if the actor belongs to the frozen approver set
func (s *StepSnapshot) IsEligible(actorID string) bool {
	for _, id := range s.ApproverIDs {
		if id == actorID {
			return true
		}
	}
	return false
}

// ApprovalRequest is one live approval cycle bound to a single document
type ApprovalRequest struct {
	ID               string         `json:"id"`
	CompanyID        string         `json:"company_id"`
	DocumentType     DocumentType   `json:"document_type"`
	DocumentID       string         `json:"document_id"`
	WorkflowID       string         `json:"workflow_id"`
	RequesterID      string         `json:"requester_id,omitempty"`
	Steps            []StepSnapshot `json:"steps"`
	CurrentStepIndex int            `json:"current_step_index"`
	Status           RequestStatus  `json:"status"`
	DocumentSynced   bool           `json:"document_synced"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DecidedAt        *time.Time     `json:"decided_at,omitempty"`
}

// CurrentStep returns the snapshot step the request is waiting on, or nil
// when the request is already terminal or malformed
func (r *ApprovalRequest) CurrentStep() *StepSnapshot {
	if r.CurrentStepIndex < 0 || r.CurrentStepIndex >= len(r.Steps) {
		return nil
	}
	return &r.Steps[r.CurrentStepIndex]
}

// IsLastStep returns true if the current step is the final one
func (r *ApprovalRequest) IsLastStep() bool {
	return r.CurrentStepIndex == len(r.Steps)-1
}

// ApprovalRequestAction is one row of the append-only approver decision ledger
type ApprovalRequestAction struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	StepIndex int       `json:"step_index"`
	ActorID   string    `json:"actor_id"`
	Decision  Decision  `json:"decision"`
	Comment   string    `json:"comment,omitempty"`
	ActedAt   time.Time `json:"acted_at"`
}

// DocumentRef identifies a document across the engine's external interfaces
type DocumentRef struct {
	Type DocumentType `json:"document_type"`
	ID   string       `json:"document_id"`
}

// String renders the reference for logs and error messages
func (d DocumentRef) String() string {
	return fmt.Sprintf("%s/%s", d.Type, d.ID)
}
