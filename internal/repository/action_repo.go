package repository

import (
	"database/sql"
	"fmt"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"go.uber.org/zap"
)

// ActionRepository handles the append-only approver action ledger.
// Rows are created once and never mutated or deleted.
type ActionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActionRepository creates a new action repository
func NewActionRepository(db *sql.DB, logger *zap.Logger) *ActionRepository {
	return &ActionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an action. The partial unique index rejects a second
// approve/reject by the same actor at the same step; callers translate that
// into a duplicate-action error.
func (r *ActionRepository) Create(tx *sql.Tx, action *models.ApprovalRequestAction) error {
	query := `
		INSERT INTO approval_request_actions (
			id, request_id, step_index, actor_id, decision, comment
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query,
			action.ID, action.RequestID, action.StepIndex,
			action.ActorID, action.Decision, action.Comment)
	} else {
		_, err = r.db.Exec(query,
			action.ID, action.RequestID, action.StepIndex,
			action.ActorID, action.Decision, action.Comment)
	}
	if err != nil {
		return fmt.Errorf("failed to create action: %w", err)
	}
	return nil
}

// HasVote reports whether the actor already approved or rejected at a step
func (r *ActionRepository) HasVote(tx *sql.Tx, requestID string, stepIndex int, actorID string) (bool, error) {
	query := `
		SELECT COUNT(1) FROM approval_request_actions
		WHERE request_id = ? AND step_index = ? AND actor_id = ?
			AND decision IN ('approve', 'reject')
	`

	var count int
	var err error
	if tx != nil {
		err = tx.QueryRow(query, requestID, stepIndex, actorID).Scan(&count)
	} else {
		err = r.db.QueryRow(query, requestID, stepIndex, actorID).Scan(&count)
	}
	if err != nil {
		r.logger.Error("Failed to check existing vote",
			zap.String("request_id", requestID),
			zap.String("actor_id", actorID),
			zap.Error(err))
		return false, fmt.Errorf("failed to check existing vote: %w", err)
	}
	return count > 0, nil
}

// CountApprovals returns the number of distinct approvals recorded at a step
func (r *ActionRepository) CountApprovals(tx *sql.Tx, requestID string, stepIndex int) (int, error) {
	query := `
		SELECT COUNT(DISTINCT actor_id) FROM approval_request_actions
		WHERE request_id = ? AND step_index = ? AND decision = 'approve'
	`

	var count int
	var err error
	if tx != nil {
		err = tx.QueryRow(query, requestID, stepIndex).Scan(&count)
	} else {
		err = r.db.QueryRow(query, requestID, stepIndex).Scan(&count)
	}
	if err != nil {
		r.logger.Error("Failed to count approvals",
			zap.String("request_id", requestID),
			zap.Int("step_index", stepIndex),
			zap.Error(err))
		return 0, fmt.Errorf("failed to count approvals: %w", err)
	}
	return count, nil
}

// ListByRequest retrieves the full action history of a request, oldest first
func (r *ActionRepository) ListByRequest(requestID string) ([]*models.ApprovalRequestAction, error) {
	query := `
		SELECT id, request_id, step_index, actor_id, decision, comment, acted_at
		FROM approval_request_actions
		WHERE request_id = ?
		ORDER BY acted_at ASC, id ASC
	`

	rows, err := r.db.Query(query, requestID)
	if err != nil {
		r.logger.Error("Failed to list actions", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.ApprovalRequestAction
	for rows.Next() {
		var action models.ApprovalRequestAction
		err := rows.Scan(
			&action.ID,
			&action.RequestID,
			&action.StepIndex,
			&action.ActorID,
			&action.Decision,
			&action.Comment,
			&action.ActedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, &action)
	}
	return actions, rows.Err()
}
