package notification

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/workflow"
)

// LarkConfig holds Lark messenger configuration
type LarkConfig struct {
	AppID     string
	AppSecret string
}

// LarkDispatcher delivers approval events as Lark direct messages
type LarkDispatcher struct {
	client *lark.Client
	logger *zap.Logger
}

// NewLarkDispatcher creates a new Lark-backed dispatcher
func NewLarkDispatcher(cfg LarkConfig, logger *zap.Logger) *LarkDispatcher {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
	return &LarkDispatcher{
		client: client,
		logger: logger,
	}
}

// Notify sends a text message to each recipient. A failed recipient does not
// stop delivery to the rest; the first error is returned for logging.
func (d *LarkDispatcher) Notify(ctx context.Context, userIDs []string, requestID string, kind workflow.EventKind) error {
	text, err := json.Marshal(map[string]string{
		"text": messageFor(kind, requestID),
	})
	if err != nil {
		return fmt.Errorf("failed to build message content: %w", err)
	}

	var firstErr error
	for _, userID := range userIDs {
		req := larkIm.NewCreateMessageReqBuilder().
			ReceiveIdType("user_id").
			Body(larkIm.NewCreateMessageReqBodyBuilder().
				ReceiveId(userID).
				MsgType("text").
				Content(string(text)).
				Build()).
			Build()

		resp, err := d.client.Im.Message.Create(ctx, req)
		if err != nil {
			d.logger.Error("Failed to send Lark message",
				zap.String("user_id", userID),
				zap.String("request_id", requestID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to send message: %w", err)
			}
			continue
		}
		if !resp.Success() {
			d.logger.Error("Lark API returned failure",
				zap.String("user_id", userID),
				zap.Int("code", resp.Code),
				zap.String("msg", resp.Msg))
			if firstErr == nil {
				firstErr = fmt.Errorf("lark API error: code=%d, msg=%s", resp.Code, resp.Msg)
			}
		}
	}
	return firstErr
}

func messageFor(kind workflow.EventKind, requestID string) string {
	switch kind {
	case workflow.EventRequestOpened:
		return fmt.Sprintf("An approval request (%s) is waiting for your review.", requestID)
	case workflow.EventStepAdvanced:
		return fmt.Sprintf("Approval request %s has reached your step and awaits your review.", requestID)
	case workflow.EventRequestApproved:
		return fmt.Sprintf("Your approval request %s was approved.", requestID)
	case workflow.EventRequestRejected:
		return fmt.Sprintf("Your approval request %s was rejected.", requestID)
	case workflow.EventRequestCancelled:
		return fmt.Sprintf("Approval request %s was cancelled.", requestID)
	default:
		return fmt.Sprintf("Approval request %s was updated.", requestID)
	}
}
