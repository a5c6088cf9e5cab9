package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"github.com/edrees2022/log-and-ledger-sub005/internal/repository"
)

// DocumentStatusSync propagates a request's terminal outcome back onto the
// owning document. The terminal request status is the source of truth; this
// push is best-effort and idempotent so the reconciler can safely re-drive it
// after a delivery failure.
type DocumentStatusSync struct {
	documents   DocumentStore
	requestRepo *repository.RequestRepository
	logger      *zap.Logger
}

// NewDocumentStatusSync creates a new document status sync
func NewDocumentStatusSync(documents DocumentStore, requestRepo *repository.RequestRepository, logger *zap.Logger) *DocumentStatusSync {
	return &DocumentStatusSync{
		documents:   documents,
		requestRepo: requestRepo,
		logger:      logger,
	}
}

// Push delivers the outcome of a terminal request to the document store and
// marks the request synced on success. Failures are logged, never returned
// into the approval transaction.
func (s *DocumentStatusSync) Push(ctx context.Context, req *models.ApprovalRequest) {
	if err := s.Sync(ctx, req); err != nil {
		s.logger.Warn("Failed to sync document outcome, reconciler will retry",
			zap.String("request_id", req.ID),
			zap.String("document", models.DocumentRef{Type: req.DocumentType, ID: req.DocumentID}.String()),
			zap.Error(err))
	}
}

// Sync is the error-returning form of Push, used by the reconciler
func (s *DocumentStatusSync) Sync(ctx context.Context, req *models.ApprovalRequest) error {
	outcome, err := outcomeForStatus(req.Status)
	if err != nil {
		return err
	}

	ref := models.DocumentRef{Type: req.DocumentType, ID: req.DocumentID}
	if err := s.documents.SetApprovalOutcome(ctx, req.CompanyID, ref, outcome); err != nil {
		return fmt.Errorf("failed to set approval outcome: %w", err)
	}

	if err := s.requestRepo.MarkDocumentSynced(req.ID); err != nil {
		return err
	}

	s.logger.Info("Document outcome synced",
		zap.String("request_id", req.ID),
		zap.String("document", ref.String()),
		zap.String("outcome", string(outcome)))
	return nil
}

func outcomeForStatus(status models.RequestStatus) (Outcome, error) {
	switch status {
	case models.StatusApproved:
		return OutcomeApproved, nil
	case models.StatusRejected:
		return OutcomeRejected, nil
	case models.StatusCancelled:
		return OutcomeCancelled, nil
	default:
		return "", fmt.Errorf("request status %q is not terminal", status)
	}
}
