package workflow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"github.com/edrees2022/log-and-ledger-sub005/internal/repository"
	"github.com/edrees2022/log-and-ledger-sub005/pkg/database"
)

// Instantiator opens approval requests against a frozen copy of the selected
// workflow's steps. Approver rules are resolved exactly once here, so later
// role or org-chart changes never change who may act on an in-flight request.
type Instantiator struct {
	db          *database.DB
	requestRepo *repository.RequestRepository
	directory   Directory
	audit       AuditRecorder
	notifier    NotificationDispatcher
	logger      *zap.Logger
}

// NewInstantiator creates a new request instantiator
func NewInstantiator(
	db *database.DB,
	requestRepo *repository.RequestRepository,
	directory Directory,
	audit AuditRecorder,
	notifier NotificationDispatcher,
	logger *zap.Logger,
) *Instantiator {
	return &Instantiator{
		db:          db,
		requestRepo: requestRepo,
		directory:   directory,
		audit:       audit,
		notifier:    notifier,
		logger:      logger,
	}
}

// Open creates a pending request for the document against the workflow's
// current step list. A document can only carry one open request: a concurrent
// or repeated attempt returns DuplicateRequestError with the existing id.
func (i *Instantiator) Open(
	ctx context.Context,
	wf *models.ApprovalWorkflow,
	companyID string,
	ref models.DocumentRef,
	requesterID string,
	attrs *DocumentAttributes,
) (*models.ApprovalRequest, error) {
	if len(wf.Steps) == 0 {
		return nil, fmt.Errorf("%w: workflow %s has no steps", ErrValidation, wf.ID)
	}

	snapshot, err := i.freezeSteps(ctx, wf, companyID, attrs.OwnerID)
	if err != nil {
		return nil, err
	}

	req := &models.ApprovalRequest{
		ID:               uuid.NewString(),
		CompanyID:        companyID,
		DocumentType:     ref.Type,
		DocumentID:       ref.ID,
		WorkflowID:       wf.ID,
		RequesterID:      requesterID,
		Steps:            snapshot,
		CurrentStepIndex: 0,
		Status:           models.StatusPending,
	}

	err = i.db.WithTransaction(func(tx *sql.Tx) error {
		return i.requestRepo.Create(tx, req)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			// Lost a creation race or the document already has a cycle open.
			existing, lookupErr := i.requestRepo.GetOpenByDocument(ref)
			if lookupErr == nil && existing != nil {
				return nil, &DuplicateRequestError{ExistingID: existing.ID}
			}
			return nil, ErrDuplicateRequest
		}
		return nil, err
	}

	if auditErr := i.audit.Record(ctx, AuditEntry{
		CompanyID:  companyID,
		EntityType: "approval_request",
		EntityID:   req.ID,
		Action:     "request_opened",
		ActorID:    requesterID,
		After:      models.StatusPending.String(),
	}); auditErr != nil {
		i.logger.Warn("Failed to write audit entry", zap.String("request_id", req.ID), zap.Error(auditErr))
	}

	if notifyErr := i.notifier.Notify(ctx, snapshot[0].ApproverIDs, req.ID, EventRequestOpened); notifyErr != nil {
		i.logger.Warn("Failed to notify step-0 approvers",
			zap.String("request_id", req.ID),
			zap.Error(notifyErr))
	}

	i.logger.Info("Approval request opened",
		zap.String("request_id", req.ID),
		zap.String("workflow_id", wf.ID),
		zap.String("document", ref.String()),
		zap.Int("steps", len(snapshot)))

	return req, nil
}

// freezeSteps resolves every step's approver rule into a concrete user-id set
// and copies the step list into its immutable snapshot form
func (i *Instantiator) freezeSteps(
	ctx context.Context,
	wf *models.ApprovalWorkflow,
	companyID, ownerID string,
) ([]models.StepSnapshot, error) {
	snapshot := make([]models.StepSnapshot, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		approvers, err := i.directory.ResolveApprovers(ctx, step.ApproverRule, companyID, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve approvers for step %d: %w", step.StepOrder, err)
		}
		if len(approvers) == 0 {
			return nil, fmt.Errorf("%w: step %d rule %q resolves to no approvers",
				ErrValidation, step.StepOrder, step.ApproverRule)
		}
		if len(approvers) < step.RequiredApprovals {
			return nil, fmt.Errorf("%w: step %d quorum %d exceeds its %d eligible approvers",
				ErrValidation, step.StepOrder, step.RequiredApprovals, len(approvers))
		}
		snapshot = append(snapshot, models.StepSnapshot{
			StepOrder:         step.StepOrder,
			ApproverRule:      step.ApproverRule,
			RequiredApprovals: step.RequiredApprovals,
			ConcurrencyMode:   step.ConcurrencyMode,
			ApproverIDs:       approvers,
		})
	}
	return snapshot, nil
}
