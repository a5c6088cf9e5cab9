// Package documents adapts the engine's document-store interface onto the
// local documents table. The real expense/invoice/purchase-order services own
// these rows; the engine reads matching attributes and writes outcomes.
package documents

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"github.com/edrees2022/log-and-ledger-sub005/internal/workflow"
)

// ErrDocumentNotFound is returned when the referenced document does not exist
var ErrDocumentNotFound = fmt.Errorf("document not found")

// SQLStore implements workflow.DocumentStore over the documents table
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLStore creates a new document store adapter
func NewSQLStore(db *sql.DB, logger *zap.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: logger,
	}
}

// GetDocumentAttributes fetches the matching-relevant fields of a document
func (s *SQLStore) GetDocumentAttributes(ctx context.Context, companyID string, ref models.DocumentRef) (*workflow.DocumentAttributes, error) {
	query := `
		SELECT amount, currency, category, owner_id
		FROM documents
		WHERE document_type = ? AND id = ? AND company_id = ?
	`

	var attrs workflow.DocumentAttributes
	err := s.db.QueryRowContext(ctx, query, ref.Type, ref.ID, companyID).Scan(
		&attrs.Amount,
		&attrs.Currency,
		&attrs.Category,
		&attrs.OwnerID,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, ref)
	}
	if err != nil {
		s.logger.Error("Failed to get document attributes",
			zap.String("document", ref.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get document attributes: %w", err)
	}
	return &attrs, nil
}

// SetApprovalOutcome writes the approval outcome onto the document. A plain
// status UPDATE, so retries are harmless: approved documents become postable,
// rejected ones re-open for edit, cancelled ones fall back to draft.
func (s *SQLStore) SetApprovalOutcome(ctx context.Context, companyID string, ref models.DocumentRef, outcome workflow.Outcome) error {
	status := documentStatusFor(outcome)

	query := `
		UPDATE documents
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE document_type = ? AND id = ? AND company_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, status, ref.Type, ref.ID, companyID)
	if err != nil {
		return fmt.Errorf("failed to set approval outcome: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, ref)
	}
	return nil
}

// GetStatus reads a document's current status, used by the reconciler and tests
func (s *SQLStore) GetStatus(ctx context.Context, companyID string, ref models.DocumentRef) (string, error) {
	query := `SELECT status FROM documents WHERE document_type = ? AND id = ? AND company_id = ?`

	var status string
	err := s.db.QueryRowContext(ctx, query, ref.Type, ref.ID, companyID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get document status: %w", err)
	}
	return status, nil
}

func documentStatusFor(outcome workflow.Outcome) string {
	switch outcome {
	case workflow.OutcomeApproved:
		return "approved"
	case workflow.OutcomeRejected:
		return "rejected"
	default:
		return "draft"
	}
}
