// Package directory resolves approver rules against the user/role directory.
package directory

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
)

// SQLDirectory resolves approver rules from the local users table. In a full
// deployment this adapter fronts the identity service; the engine only ever
// calls it once per step, at request instantiation.
type SQLDirectory struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLDirectory creates a new directory adapter
func NewSQLDirectory(db *sql.DB, logger *zap.Logger) *SQLDirectory {
	return &SQLDirectory{
		db:     db,
		logger: logger,
	}
}

// ResolveApprovers expands an approver rule into concrete user ids
func (d *SQLDirectory) ResolveApprovers(ctx context.Context, rule models.ApproverRule, companyID, documentOwnerID string) ([]string, error) {
	switch {
	case rule == models.RuleManager:
		return d.resolveManager(ctx, companyID, documentOwnerID)
	case rule.UserID() != "":
		return d.resolveUser(ctx, companyID, rule.UserID())
	case rule.Role() != "":
		return d.resolveRole(ctx, companyID, rule.Role())
	default:
		return nil, fmt.Errorf("unknown approver rule %q", rule)
	}
}

func (d *SQLDirectory) resolveUser(ctx context.Context, companyID, userID string) ([]string, error) {
	query := `SELECT id FROM users WHERE id = ? AND company_id = ? AND is_active = 1`

	var id string
	err := d.db.QueryRowContext(ctx, query, userID, companyID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	return []string{id}, nil
}

func (d *SQLDirectory) resolveRole(ctx context.Context, companyID, role string) ([]string, error) {
	query := `SELECT id FROM users WHERE company_id = ? AND role = ? AND is_active = 1 ORDER BY id`

	rows, err := d.db.QueryContext(ctx, query, companyID, role)
	if err != nil {
		d.logger.Error("Failed to resolve role members",
			zap.String("company_id", companyID),
			zap.String("role", role),
			zap.Error(err))
		return nil, fmt.Errorf("failed to resolve role %s: %w", role, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *SQLDirectory) resolveManager(ctx context.Context, companyID, ownerID string) ([]string, error) {
	if ownerID == "" {
		return nil, nil
	}

	query := `
		SELECT m.id FROM users u
		JOIN users m ON m.id = u.manager_id
		WHERE u.id = ? AND u.company_id = ? AND m.is_active = 1
	`
	var managerID string
	err := d.db.QueryRowContext(ctx, query, ownerID, companyID).Scan(&managerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manager of %s: %w", ownerID, err)
	}
	return []string{managerID}, nil
}
