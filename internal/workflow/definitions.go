package workflow

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"github.com/edrees2022/log-and-ledger-sub005/internal/repository"
	"github.com/edrees2022/log-and-ledger-sub005/pkg/database"
)

// DefinitionInput is the admin payload for creating a workflow definition
type DefinitionInput struct {
	Name         string                `json:"name" validate:"required,max=200"`
	Description  string                `json:"description" validate:"max=2000"`
	DocumentType models.DocumentType   `json:"document_type" validate:"required,oneof=expense sales_invoice purchase_order"`
	MinAmount    *float64              `json:"min_amount" validate:"omitempty,gte=0"`
	Currency     string                `json:"currency" validate:"omitempty,len=3"`
	Category     string                `json:"category" validate:"max=200"`
	Priority     int                   `json:"priority" validate:"gte=0"`
	Steps        []DefinitionStepInput `json:"steps" validate:"required,min=1,dive"`
}

// DefinitionStepInput is one step of the admin payload
type DefinitionStepInput struct {
	StepOrder         int                    `json:"step_order" validate:"gte=0"`
	ApproverRule      models.ApproverRule    `json:"approver_rule" validate:"required"`
	RequiredApprovals int                    `json:"required_approvals" validate:"required,gte=1"`
	ConcurrencyMode   models.ConcurrencyMode `json:"concurrency_mode" validate:"omitempty,oneof=parallel sequential"`
}

// DefinitionService persists workflow definitions after enforcing structural
// invariants. Invalid definitions are rejected before any row is written.
type DefinitionService struct {
	db       *database.DB
	repo     *repository.WorkflowRepository
	validate *validator.Validate
	logger   *zap.Logger
}

// NewDefinitionService creates a new definition service
func NewDefinitionService(db *database.DB, repo *repository.WorkflowRepository, logger *zap.Logger) *DefinitionService {
	return &DefinitionService{
		db:       db,
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
	}
}

// Create validates and persists a workflow with its steps
func (s *DefinitionService) Create(companyID string, input *DefinitionInput) (*models.ApprovalWorkflow, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := validateSteps(input.Steps); err != nil {
		return nil, err
	}

	// The catch-all slot (no threshold) is unique per tenant and document
	// type. The partial unique index backstops this check under concurrency.
	if input.MinAmount == nil {
		exists, err := s.repo.HasActiveCatchAll(companyID, input.DocumentType)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: an active catch-all workflow already exists for %s",
				ErrValidation, input.DocumentType)
		}
	}

	// Steps are stored and evaluated in step order, whatever order the
	// payload listed them in.
	steps := make([]DefinitionStepInput, len(input.Steps))
	copy(steps, input.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })

	wf := &models.ApprovalWorkflow{
		ID:           uuid.NewString(),
		CompanyID:    companyID,
		Name:         input.Name,
		Description:  input.Description,
		DocumentType: input.DocumentType,
		MinAmount:    input.MinAmount,
		Currency:     input.Currency,
		Category:     input.Category,
		Priority:     input.Priority,
		IsActive:     true,
	}
	for _, stepInput := range steps {
		mode := stepInput.ConcurrencyMode
		if mode == "" {
			mode = models.ConcurrencyParallel
		}
		required := stepInput.RequiredApprovals
		if mode == models.ConcurrencySequential {
			// Sequential steps carry a quorum of one.
			required = 1
		}
		wf.Steps = append(wf.Steps, &models.ApprovalWorkflowStep{
			ID:                uuid.NewString(),
			StepOrder:         stepInput.StepOrder,
			ApproverRule:      stepInput.ApproverRule,
			RequiredApprovals: required,
			ConcurrencyMode:   mode,
		})
	}

	err := s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.repo.Create(tx, wf)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: an active catch-all workflow already exists for %s",
				ErrValidation, input.DocumentType)
		}
		return nil, err
	}

	s.logger.Info("Workflow definition created",
		zap.String("id", wf.ID),
		zap.String("company_id", companyID),
		zap.String("document_type", wf.DocumentType.String()),
		zap.Int("steps", len(wf.Steps)))

	return wf, nil
}

// Get retrieves a workflow with its steps
func (s *DefinitionService) Get(id, companyID string) (*models.ApprovalWorkflow, error) {
	wf, err := s.repo.GetByID(id, companyID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, ErrWorkflowNotFound
	}
	return wf, nil
}

// List retrieves all of a tenant's workflows
func (s *DefinitionService) List(companyID string) ([]*models.ApprovalWorkflow, error) {
	return s.repo.ListByCompany(companyID)
}

// Deactivate soft-deactivates a workflow; in-flight requests keep their
// frozen snapshots and are unaffected
func (s *DefinitionService) Deactivate(id, companyID string) error {
	ok, err := s.repo.Deactivate(id, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWorkflowNotFound
	}
	s.logger.Info("Workflow definition deactivated", zap.String("id", id))
	return nil
}

// validateSteps enforces the structural step invariants: orders form a dense
// 0..N-1 sequence, quorums are positive, and every rule is resolvable
func validateSteps(steps []DefinitionStepInput) error {
	seen := make(map[int]bool, len(steps))
	for _, step := range steps {
		if step.StepOrder < 0 || step.StepOrder >= len(steps) {
			return fmt.Errorf("%w: step order %d outside 0..%d", ErrValidation, step.StepOrder, len(steps)-1)
		}
		if seen[step.StepOrder] {
			return fmt.Errorf("%w: duplicate step order %d", ErrValidation, step.StepOrder)
		}
		seen[step.StepOrder] = true

		if step.RequiredApprovals < 1 {
			return fmt.Errorf("%w: step %d requires a quorum of at least 1", ErrValidation, step.StepOrder)
		}
		if !step.ApproverRule.IsValid() {
			return fmt.Errorf("%w: step %d has unknown approver rule %q", ErrValidation, step.StepOrder, step.ApproverRule)
		}
	}
	// len(steps) distinct orders inside [0, len) means a dense sequence.
	return nil
}
