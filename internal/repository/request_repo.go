package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"go.uber.org/zap"
)

// RequestRepository handles approval request database operations.
// State transitions (advance, terminate) are compare-and-set updates guarded
// on the observed status and step index, so concurrent actors can never apply
// the same transition twice.
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `
	id, company_id, document_type, document_id, workflow_id, requester_id,
	steps_snapshot, current_step_index, status, document_synced,
	created_at, updated_at, decided_at
`

// Create inserts a new approval request. The partial unique index on open
// requests makes concurrent creation for the same document fail here; callers
// translate that into a duplicate-request error.
func (r *RequestRepository) Create(tx *sql.Tx, req *models.ApprovalRequest) error {
	snapshot, err := json.Marshal(req.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps snapshot: %w", err)
	}

	query := `
		INSERT INTO approval_requests (
			id, company_id, document_type, document_id, workflow_id,
			requester_id, steps_snapshot, current_step_index, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if tx != nil {
		_, err = tx.Exec(query,
			req.ID, req.CompanyID, req.DocumentType, req.DocumentID, req.WorkflowID,
			req.RequesterID, string(snapshot), req.CurrentStepIndex, req.Status)
	} else {
		_, err = r.db.Exec(query,
			req.ID, req.CompanyID, req.DocumentType, req.DocumentID, req.WorkflowID,
			req.RequesterID, string(snapshot), req.CurrentStepIndex, req.Status)
	}
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by id, or nil when not found
func (r *RequestRepository) GetByID(id string) (*models.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE id = ?`
	return r.getOne(query, id)
}

// GetByIDForCompany retrieves a request scoped to a tenant, or nil
func (r *RequestRepository) GetByIDForCompany(id, companyID string) (*models.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE id = ? AND company_id = ?`
	return r.getOne(query, id, companyID)
}

// GetOpenByDocument retrieves the single pending request for a document, or nil
func (r *RequestRepository) GetOpenByDocument(ref models.DocumentRef) (*models.ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE document_type = ? AND document_id = ? AND status = 'pending'
	`
	return r.getOne(query, ref.Type, ref.ID)
}

// GetState reads a request's status and step index inside a transaction
func (r *RequestRepository) GetState(tx *sql.Tx, id string) (models.RequestStatus, int, error) {
	query := `SELECT status, current_step_index FROM approval_requests WHERE id = ?`

	var status models.RequestStatus
	var stepIndex int
	var err error
	if tx != nil {
		err = tx.QueryRow(query, id).Scan(&status, &stepIndex)
	} else {
		err = r.db.QueryRow(query, id).Scan(&status, &stepIndex)
	}
	if err == sql.ErrNoRows {
		return "", 0, sql.ErrNoRows
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read request state: %w", err)
	}
	return status, stepIndex, nil
}

// AdvanceStep moves a pending request from one step to the next. Returns
// false when another transaction already advanced or terminated the request:
// the caller's vote still stands but no transition happened here.
func (r *RequestRepository) AdvanceStep(tx *sql.Tx, id string, fromIndex, toIndex int) (bool, error) {
	query := `
		UPDATE approval_requests
		SET current_step_index = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending' AND current_step_index = ?
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, toIndex, id, fromIndex)
	} else {
		result, err = r.db.Exec(query, toIndex, id, fromIndex)
	}
	if err != nil {
		r.logger.Error("Failed to advance request step", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to advance request step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkTerminal moves a pending request into a terminal status. Guarded the
// same way as AdvanceStep; when guardStepIndex is >= 0 the transition also
// requires the request to still be waiting on that step.
func (r *RequestRepository) MarkTerminal(tx *sql.Tx, id string, status models.RequestStatus, guardStepIndex int, decidedAt time.Time) (bool, error) {
	query := `
		UPDATE approval_requests
		SET status = ?, decided_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'
	`
	args := []interface{}{status, decidedAt, id}
	if guardStepIndex >= 0 {
		query += ` AND current_step_index = ?`
		args = append(args, guardStepIndex)
	}

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, args...)
	} else {
		result, err = r.db.Exec(query, args...)
	}
	if err != nil {
		r.logger.Error("Failed to terminate request",
			zap.String("id", id),
			zap.String("status", status.String()),
			zap.Error(err))
		return false, fmt.Errorf("failed to terminate request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkDocumentSynced records that the terminal outcome reached the document store
func (r *RequestRepository) MarkDocumentSynced(id string) error {
	query := `UPDATE approval_requests SET document_synced = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.Exec(query, id); err != nil {
		r.logger.Error("Failed to mark request synced", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark request synced: %w", err)
	}
	return nil
}

// ListByCompany retrieves requests for a tenant, newest first. status may be
// empty to list all.
func (r *RequestRepository) ListByCompany(companyID string, status models.RequestStatus, limit, offset int) ([]*models.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE company_id = ?`
	args := []interface{}{companyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return r.list(query, args...)
}

// ListUnsynced retrieves terminal requests whose outcome has not yet been
// pushed to the document store. Used by the reconciler.
func (r *RequestRepository) ListUnsynced(limit int) ([]*models.ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE status != 'pending' AND document_synced = 0
		ORDER BY decided_at ASC
		LIMIT ?
	`
	return r.list(query, limit)
}

func (r *RequestRepository) getOne(query string, args ...interface{}) (*models.ApprovalRequest, error) {
	req, err := r.scanRequest(r.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

func (r *RequestRepository) list(query string, args ...interface{}) ([]*models.ApprovalRequest, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.ApprovalRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *RequestRepository) scanRequest(row rowScanner) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	var snapshot string
	var decidedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.CompanyID,
		&req.DocumentType,
		&req.DocumentID,
		&req.WorkflowID,
		&req.RequesterID,
		&snapshot,
		&req.CurrentStepIndex,
		&req.Status,
		&req.DocumentSynced,
		&req.CreatedAt,
		&req.UpdatedAt,
		&decidedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(snapshot), &req.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps snapshot: %w", err)
	}
	if decidedAt.Valid {
		req.DecidedAt = &decidedAt.Time
	}
	return &req, nil
}
