package workflow

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"github.com/edrees2022/log-and-ledger-sub005/internal/repository"
)

// Selector picks the single applicable workflow for a document, or none
// (meaning the document bypasses approval entirely)
type Selector struct {
	repo      *repository.WorkflowRepository
	converter CurrencyConverter
	logger    *zap.Logger
}

// NewSelector creates a new workflow selector
func NewSelector(repo *repository.WorkflowRepository, converter CurrencyConverter, logger *zap.Logger) *Selector {
	return &Selector{
		repo:      repo,
		converter: converter,
		logger:    logger,
	}
}

// Select returns the matching workflow for the document attributes, or nil
// when no workflow applies. Threshold comparisons always use the
// base-currency amount so a document cannot dodge approval by being priced
// in a weaker currency.
func (s *Selector) Select(companyID string, docType models.DocumentType, attrs *DocumentAttributes) (*models.ApprovalWorkflow, error) {
	candidates, err := s.repo.ListActive(companyID, docType)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	baseAmount, err := s.converter.ToBase(attrs.Amount, attrs.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to convert amount to base currency: %w", err)
	}

	var best *models.ApprovalWorkflow
	for _, wf := range candidates {
		if !matches(wf, baseAmount, attrs) {
			continue
		}
		if best == nil || beats(wf, best) {
			best = wf
		}
	}

	if best == nil {
		s.logger.Debug("No workflow matched, document bypasses approval",
			zap.String("company_id", companyID),
			zap.String("document_type", docType.String()),
			zap.Float64("base_amount", baseAmount))
		return nil, nil
	}

	s.logger.Debug("Workflow selected",
		zap.String("workflow_id", best.ID),
		zap.String("document_type", docType.String()),
		zap.Float64("base_amount", baseAmount))
	return best, nil
}

// matches checks a workflow's match rule against the document attributes
func matches(wf *models.ApprovalWorkflow, baseAmount float64, attrs *DocumentAttributes) bool {
	if wf.MinAmount != nil && baseAmount < *wf.MinAmount {
		return false
	}
	if wf.Currency != "" && wf.Currency != attrs.Currency {
		return false
	}
	if wf.Category != "" && wf.Category != attrs.Category {
		return false
	}
	return true
}

// beats returns true when a should be preferred over b: higher priority wins;
// on equal priority the smallest (tightest) threshold wins, and the catch-all
// (no threshold) always loses the tie
func beats(a, b *models.ApprovalWorkflow) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	switch {
	case a.MinAmount == nil:
		return false
	case b.MinAmount == nil:
		return true
	default:
		return *a.MinAmount < *b.MinAmount
	}
}
