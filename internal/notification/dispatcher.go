// Package notification delivers approval events to users. Delivery is
// fire-and-forget: the engine logs failures and moves on, never tying a
// notification to the approval transaction.
package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/workflow"
)

// LogDispatcher writes notifications to the structured log. The default when
// no external messenger is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a new log-backed dispatcher
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Notify logs the event for each recipient
func (d *LogDispatcher) Notify(ctx context.Context, userIDs []string, requestID string, kind workflow.EventKind) error {
	d.logger.Info("Approval notification",
		zap.Strings("user_ids", userIDs),
		zap.String("request_id", requestID),
		zap.String("event", string(kind)))
	return nil
}
