// Package audit persists the audit trail of approval transitions.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/workflow"
)

// Recorder writes audit entries to the audit_log table. Appends are
// best-effort from the engine's point of view: callers log failures and never
// roll back the approval transition.
type Recorder struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecorder creates a new audit recorder
func NewRecorder(db *sql.DB, logger *zap.Logger) *Recorder {
	return &Recorder{
		db:     db,
		logger: logger,
	}
}

// Record appends one audit entry
func (r *Recorder) Record(ctx context.Context, entry workflow.AuditEntry) error {
	query := `
		INSERT INTO audit_log (
			company_id, entity_type, entity_id, action, actor_id, before_state, after_state
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.CompanyID, entry.EntityType, entry.EntityID,
		entry.Action, entry.ActorID, entry.Before, entry.After)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Entry is one persisted audit row
type Entry struct {
	ID         int64  `json:"id"`
	CompanyID  string `json:"company_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Action     string `json:"action"`
	ActorID    string `json:"actor_id,omitempty"`
	Before     string `json:"before,omitempty"`
	After      string `json:"after,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// ListByEntity returns the audit trail for one entity, oldest first
func (r *Recorder) ListByEntity(ctx context.Context, entityType, entityID string) ([]*Entry, error) {
	query := `
		SELECT id, company_id, entity_type, entity_id, action, actor_id, before_state, after_state, created_at
		FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		r.logger.Error("Failed to list audit entries",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(&e.ID, &e.CompanyID, &e.EntityType, &e.EntityID,
			&e.Action, &e.ActorID, &e.Before, &e.After, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
