package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"github.com/edrees2022/log-and-ledger-sub005/internal/repository"
)

// Engine is the front door of the approval subsystem: it wires the selector,
// instantiator and gate together and answers read queries about requests.
type Engine struct {
	selector     *Selector
	instantiator *Instantiator
	gate         *Gate
	documents    DocumentStore
	requestRepo  *repository.RequestRepository
	actionRepo   *repository.ActionRepository
	logger       *zap.Logger
}

// NewEngine creates the approval engine facade
func NewEngine(
	selector *Selector,
	instantiator *Instantiator,
	gate *Gate,
	documents DocumentStore,
	requestRepo *repository.RequestRepository,
	actionRepo *repository.ActionRepository,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		selector:     selector,
		instantiator: instantiator,
		gate:         gate,
		documents:    documents,
		requestRepo:  requestRepo,
		actionRepo:   actionRepo,
		logger:       logger,
	}
}

// OpenForDocument runs the document-submission flow: fetch the document's
// attributes, pick the applicable workflow, and open a request. A nil request
// with a nil error means no workflow applies and the document is
// auto-approved — that is a normal outcome, not an error.
func (e *Engine) OpenForDocument(ctx context.Context, companyID, requesterID string, ref models.DocumentRef) (*models.ApprovalRequest, error) {
	attrs, err := e.documents.GetDocumentAttributes(ctx, companyID, ref)
	if err != nil {
		return nil, err
	}

	wf, err := e.selector.Select(companyID, ref.Type, attrs)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		e.logger.Info("No approval required for document",
			zap.String("company_id", companyID),
			zap.String("document", ref.String()))
		return nil, nil
	}

	return e.instantiator.Open(ctx, wf, companyID, ref, requesterID, attrs)
}

// Act forwards an approver decision to the action gate
func (e *Engine) Act(ctx context.Context, companyID, requestID, actorID string, decision models.Decision, comment string) (*models.ApprovalRequest, error) {
	return e.gate.Act(ctx, companyID, requestID, actorID, decision, comment)
}

// Cancel forwards a cancellation to the action gate
func (e *Engine) Cancel(ctx context.Context, companyID, requestID, actorID string) (*models.ApprovalRequest, error) {
	return e.gate.Cancel(ctx, companyID, requestID, actorID)
}

// GetRequest returns a request with its full action history
func (e *Engine) GetRequest(companyID, requestID string) (*models.ApprovalRequest, []*models.ApprovalRequestAction, error) {
	req, err := e.requestRepo.GetByIDForCompany(requestID, companyID)
	if err != nil {
		return nil, nil, err
	}
	if req == nil {
		return nil, nil, ErrRequestNotFound
	}

	actions, err := e.actionRepo.ListByRequest(requestID)
	if err != nil {
		return nil, nil, err
	}
	return req, actions, nil
}

// ListRequests returns a tenant's requests, optionally filtered by status
func (e *Engine) ListRequests(companyID string, status models.RequestStatus, limit, offset int) ([]*models.ApprovalRequest, error) {
	return e.requestRepo.ListByCompany(companyID, status, limit, offset)
}

// ListPendingFor returns the open requests whose current step the given user
// may act on
func (e *Engine) ListPendingFor(companyID, actorID string) ([]*models.ApprovalRequest, error) {
	pending, err := e.requestRepo.ListByCompany(companyID, models.StatusPending, 500, 0)
	if err != nil {
		return nil, err
	}

	var actionable []*models.ApprovalRequest
	for _, req := range pending {
		if step := req.CurrentStep(); step != nil && step.IsEligible(actorID) {
			actionable = append(actionable, req)
		}
	}
	return actionable, nil
}
