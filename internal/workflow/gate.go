package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"github.com/edrees2022/log-and-ledger-sub005/internal/repository"
	"github.com/edrees2022/log-and-ledger-sub005/pkg/database"
)

// Gate validates and records approver actions. The action insert, quorum
// recount and conditional transition run inside one transaction; the
// transition itself is a compare-and-set keyed on the step index observed at
// validation time, so two approvers racing the quorum-completing vote both
// get their votes recorded while exactly one performs the advance.
type Gate struct {
	db          *database.DB
	requestRepo *repository.RequestRepository
	actionRepo  *repository.ActionRepository
	sync        *DocumentStatusSync
	audit       AuditRecorder
	notifier    NotificationDispatcher
	logger      *zap.Logger
}

// NewGate creates a new action gate
func NewGate(
	db *database.DB,
	requestRepo *repository.RequestRepository,
	actionRepo *repository.ActionRepository,
	sync *DocumentStatusSync,
	audit AuditRecorder,
	notifier NotificationDispatcher,
	logger *zap.Logger,
) *Gate {
	return &Gate{
		db:          db,
		requestRepo: requestRepo,
		actionRepo:  actionRepo,
		sync:        sync,
		audit:       audit,
		notifier:    notifier,
		logger:      logger,
	}
}

// Act records an approver decision on a request and applies the resulting
// state transition, if any. Returns the refreshed request.
func (g *Gate) Act(ctx context.Context, companyID, requestID, actorID string, decision models.Decision, comment string) (*models.ApprovalRequest, error) {
	if !decision.IsValid() {
		return nil, fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}

	req, err := g.requestRepo.GetByIDForCompany(requestID, companyID)
	if err != nil {
		return nil, err
	}
	if req == nil || req.Status != models.StatusPending {
		return nil, ErrRequestNotActionable
	}

	step := req.CurrentStep()
	if step == nil {
		return nil, fmt.Errorf("request %s has no current step: %w", requestID, ErrRequestNotActionable)
	}
	if !step.IsEligible(actorID) {
		return nil, ErrNotEligibleApprover
	}

	if decision.IsVote() {
		voted, err := g.actionRepo.HasVote(nil, requestID, req.CurrentStepIndex, actorID)
		if err != nil {
			return nil, err
		}
		if voted {
			return nil, ErrDuplicateAction
		}
	}

	// The step index observed above is the one the action is taken against.
	// If another transaction advances the step before ours commits, the
	// guarded transition below affects zero rows and only the vote lands.
	observedIndex := req.CurrentStepIndex
	var transition Transition
	var transitioned bool

	err = g.db.WithTransaction(func(tx *sql.Tx) error {
		status, _, err := g.requestRepo.GetState(tx, requestID)
		if err == sql.ErrNoRows {
			return ErrRequestNotActionable
		}
		if err != nil {
			return err
		}
		if status != models.StatusPending {
			return ErrRequestNotActionable
		}

		action := &models.ApprovalRequestAction{
			ID:        uuid.NewString(),
			RequestID: requestID,
			StepIndex: observedIndex,
			ActorID:   actorID,
			Decision:  decision,
			Comment:   comment,
		}
		if err := g.actionRepo.Create(tx, action); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateAction
			}
			return err
		}

		if decision == models.DecisionComment {
			return nil
		}

		approvals := 0
		if decision == models.DecisionApprove {
			approvals, err = g.actionRepo.CountApprovals(tx, requestID, observedIndex)
			if err != nil {
				return err
			}
		}

		transition = Evaluate(req.Steps, observedIndex, approvals, decision)
		switch {
		case transition.Terminal:
			guard := observedIndex
			if transition.Status == models.StatusRejected {
				// Rejection terminates wherever the request currently is.
				guard = -1
			}
			transitioned, err = g.requestRepo.MarkTerminal(tx, requestID, transition.Status, guard, time.Now().UTC())
			return err
		case transition.Advanced:
			transitioned, err = g.requestRepo.AdvanceStep(tx, requestID, observedIndex, transition.NextStepIndex)
			return err
		default:
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	g.recordActionAudit(ctx, req, actorID, decision, observedIndex, transition, transitioned)

	refreshed, err := g.requestRepo.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, ErrRequestNotFound
	}

	if transitioned {
		g.applyTransitionEffects(ctx, refreshed, transition)
	}

	return refreshed, nil
}

// Cancel terminates a pending request, typically because the underlying
// document was deleted or voided. Cancelling an already-decided request is
// rejected, not silently ignored, so callers can tell the two cases apart.
func (g *Gate) Cancel(ctx context.Context, companyID, requestID, actorID string) (*models.ApprovalRequest, error) {
	req, err := g.requestRepo.GetByIDForCompany(requestID, companyID)
	if err != nil {
		return nil, err
	}
	if req == nil || req.Status != models.StatusPending {
		return nil, ErrRequestNotActionable
	}

	var cancelled bool
	err = g.db.WithTransaction(func(tx *sql.Tx) error {
		cancelled, err = g.requestRepo.MarkTerminal(tx, requestID, models.StatusCancelled, -1, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	if !cancelled {
		// Raced against another transition; the request is already terminal.
		return nil, ErrRequestNotActionable
	}

	if auditErr := g.audit.Record(ctx, AuditEntry{
		CompanyID:  req.CompanyID,
		EntityType: "approval_request",
		EntityID:   req.ID,
		Action:     "request_cancelled",
		ActorID:    actorID,
		Before:     models.StatusPending.String(),
		After:      models.StatusCancelled.String(),
	}); auditErr != nil {
		g.logger.Warn("Failed to write audit entry", zap.String("request_id", req.ID), zap.Error(auditErr))
	}

	refreshed, err := g.requestRepo.GetByID(requestID)
	if err != nil {
		return nil, err
	}

	g.sync.Push(ctx, refreshed)

	if step := req.CurrentStep(); step != nil {
		if notifyErr := g.notifier.Notify(ctx, step.ApproverIDs, req.ID, EventRequestCancelled); notifyErr != nil {
			g.logger.Warn("Failed to send cancellation notification",
				zap.String("request_id", req.ID),
				zap.Error(notifyErr))
		}
	}

	g.logger.Info("Approval request cancelled",
		zap.String("request_id", req.ID),
		zap.String("actor_id", actorID))

	return refreshed, nil
}

// recordActionAudit writes the per-action audit entry. Audit failures never
// undo the committed action.
func (g *Gate) recordActionAudit(ctx context.Context, req *models.ApprovalRequest, actorID string, decision models.Decision, stepIndex int, transition Transition, transitioned bool) {
	after := models.StatusPending.String()
	if transitioned && transition.Terminal {
		after = transition.Status.String()
	}
	entry := AuditEntry{
		CompanyID:  req.CompanyID,
		EntityType: "approval_request",
		EntityID:   req.ID,
		Action:     fmt.Sprintf("action_%s_step_%d", decision, stepIndex),
		ActorID:    actorID,
		Before:     models.StatusPending.String(),
		After:      after,
	}
	if err := g.audit.Record(ctx, entry); err != nil {
		g.logger.Warn("Failed to write audit entry",
			zap.String("request_id", req.ID),
			zap.Error(err))
	}
}

// applyTransitionEffects runs the side effects of a committed transition:
// outcome propagation to the document and notifications. All best-effort.
func (g *Gate) applyTransitionEffects(ctx context.Context, req *models.ApprovalRequest, transition Transition) {
	switch {
	case transition.Terminal:
		g.sync.Push(ctx, req)

		kind := EventRequestApproved
		if transition.Status == models.StatusRejected {
			kind = EventRequestRejected
		}
		if req.RequesterID != "" {
			if err := g.notifier.Notify(ctx, []string{req.RequesterID}, req.ID, kind); err != nil {
				g.logger.Warn("Failed to send terminal notification",
					zap.String("request_id", req.ID),
					zap.Error(err))
			}
		}

		g.logger.Info("Approval request decided",
			zap.String("request_id", req.ID),
			zap.String("status", transition.Status.String()))

	case transition.Advanced:
		next := req.CurrentStep()
		if next != nil {
			if err := g.notifier.Notify(ctx, next.ApproverIDs, req.ID, EventStepAdvanced); err != nil {
				g.logger.Warn("Failed to notify next-step approvers",
					zap.String("request_id", req.ID),
					zap.Error(err))
			}
		}

		g.logger.Info("Approval request advanced",
			zap.String("request_id", req.ID),
			zap.Int("current_step_index", req.CurrentStepIndex))
	}
}
