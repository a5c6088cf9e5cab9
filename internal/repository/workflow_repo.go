package repository

import (
	"database/sql"
	"fmt"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"go.uber.org/zap"
)

// WorkflowRepository handles approval workflow definition database operations
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) *WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a workflow and its steps
func (r *WorkflowRepository) Create(tx *sql.Tx, wf *models.ApprovalWorkflow) error {
	query := `
		INSERT INTO approval_workflows (
			id, company_id, name, description, document_type,
			min_amount, currency, category, priority, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var minAmount interface{}
	if wf.MinAmount != nil {
		minAmount = *wf.MinAmount
	}

	var err error
	if tx != nil {
		_, err = tx.Exec(query,
			wf.ID, wf.CompanyID, wf.Name, wf.Description, wf.DocumentType,
			minAmount, wf.Currency, wf.Category, wf.Priority, wf.IsActive)
	} else {
		_, err = r.db.Exec(query,
			wf.ID, wf.CompanyID, wf.Name, wf.Description, wf.DocumentType,
			minAmount, wf.Currency, wf.Category, wf.Priority, wf.IsActive)
	}
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.String("id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	stepQuery := `
		INSERT INTO approval_workflow_steps (
			id, workflow_id, step_order, approver_rule, required_approvals, concurrency_mode
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, step := range wf.Steps {
		if tx != nil {
			_, err = tx.Exec(stepQuery,
				step.ID, wf.ID, step.StepOrder, step.ApproverRule,
				step.RequiredApprovals, step.ConcurrencyMode)
		} else {
			_, err = r.db.Exec(stepQuery,
				step.ID, wf.ID, step.StepOrder, step.ApproverRule,
				step.RequiredApprovals, step.ConcurrencyMode)
		}
		if err != nil {
			r.logger.Error("Failed to create workflow step",
				zap.String("workflow_id", wf.ID),
				zap.Int("step_order", step.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create workflow step %d: %w", step.StepOrder, err)
		}
		step.WorkflowID = wf.ID
	}

	return nil
}

const workflowColumns = `
	id, company_id, name, description, document_type,
	min_amount, currency, category, priority, is_active,
	created_at, updated_at
`

// GetByID retrieves a workflow with its steps, or nil when not found
func (r *WorkflowRepository) GetByID(id, companyID string) (*models.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE id = ? AND company_id = ?`

	wf, err := r.scanWorkflow(r.db.QueryRow(query, id, companyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if err := r.loadSteps(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// ListActive retrieves all active workflows for a tenant and document type,
// steps included, ordered by priority descending
func (r *WorkflowRepository) ListActive(companyID string, docType models.DocumentType) ([]*models.ApprovalWorkflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE company_id = ? AND document_type = ? AND is_active = 1
		ORDER BY priority DESC, min_amount ASC
	`
	return r.list(query, companyID, docType)
}

// ListByCompany retrieves all workflows for a tenant, steps included
func (r *WorkflowRepository) ListByCompany(companyID string) ([]*models.ApprovalWorkflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE company_id = ?
		ORDER BY document_type, priority DESC
	`
	return r.list(query, companyID)
}

// Deactivate soft-deactivates a workflow. Definitions referenced by requests
// are never hard-deleted.
func (r *WorkflowRepository) Deactivate(id, companyID string) (bool, error) {
	query := `
		UPDATE approval_workflows
		SET is_active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND company_id = ? AND is_active = 1
	`
	result, err := r.db.Exec(query, id, companyID)
	if err != nil {
		r.logger.Error("Failed to deactivate workflow", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to deactivate workflow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// HasActiveCatchAll reports whether the tenant already has an active
// threshold-less workflow for the document type
func (r *WorkflowRepository) HasActiveCatchAll(companyID string, docType models.DocumentType) (bool, error) {
	query := `
		SELECT COUNT(1) FROM approval_workflows
		WHERE company_id = ? AND document_type = ? AND is_active = 1 AND min_amount IS NULL
	`
	var count int
	if err := r.db.QueryRow(query, companyID, docType).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count catch-all workflows: %w", err)
	}
	return count > 0, nil
}

func (r *WorkflowRepository) list(query string, args ...interface{}) ([]*models.ApprovalWorkflow, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.ApprovalWorkflow
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, wf := range workflows {
		if err := r.loadSteps(wf); err != nil {
			return nil, err
		}
	}
	return workflows, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.ApprovalWorkflow, error) {
	var wf models.ApprovalWorkflow
	var minAmount sql.NullFloat64

	err := row.Scan(
		&wf.ID,
		&wf.CompanyID,
		&wf.Name,
		&wf.Description,
		&wf.DocumentType,
		&minAmount,
		&wf.Currency,
		&wf.Category,
		&wf.Priority,
		&wf.IsActive,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if minAmount.Valid {
		wf.MinAmount = &minAmount.Float64
	}
	return &wf, nil
}

// loadSteps fills a workflow's ordered step list
func (r *WorkflowRepository) loadSteps(wf *models.ApprovalWorkflow) error {
	query := `
		SELECT id, workflow_id, step_order, approver_rule, required_approvals, concurrency_mode, created_at
		FROM approval_workflow_steps
		WHERE workflow_id = ?
		ORDER BY step_order ASC
	`
	rows, err := r.db.Query(query, wf.ID)
	if err != nil {
		r.logger.Error("Failed to load workflow steps", zap.String("workflow_id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to load workflow steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step models.ApprovalWorkflowStep
		err := rows.Scan(
			&step.ID,
			&step.WorkflowID,
			&step.StepOrder,
			&step.ApproverRule,
			&step.RequiredApprovals,
			&step.ConcurrencyMode,
			&step.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan workflow step: %w", err)
		}
		wf.Steps = append(wf.Steps, &step)
	}
	return rows.Err()
}
