// Package notify delivers user-facing retry notices. Delivery is
// best-effort: a failed send is recorded and logged but never rolls back
// the settle that produced it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/reservepay/retryd/internal/core"
	"github.com/reservepay/retryd/internal/state"
)

// Dispatcher sends one notification and records its delivery status.
type Dispatcher interface {
	Notify(ctx context.Context, n *core.Notification) error
}

// SQSDispatcher publishes notification messages to the platform's
// notification queue and persists one NotificationRecord per notice.
type SQSDispatcher struct {
	sqsClient *sqs.Client
	queueURL  string
	store     state.Store
	logger    *slog.Logger
}

// NewSQSDispatcher creates a dispatcher publishing to queueURL.
func NewSQSDispatcher(client *sqs.Client, queueURL string, store state.Store, logger *slog.Logger) *SQSDispatcher {
	return &SQSDispatcher{
		sqsClient: client,
		queueURL:  queueURL,
		store:     store,
		logger:    logger,
	}
}

func (d *SQSDispatcher) Notify(ctx context.Context, n *core.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	n.DeliveryStatus = core.DeliverySent
	_, sendErr := d.sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if sendErr != nil {
		n.DeliveryStatus = core.DeliveryFailed
		d.logger.Error("notification send failed",
			"item_id", n.ItemID,
			"type", n.Type,
			"error", sendErr,
		)
	}

	if err := d.store.PutNotification(ctx, state.NotificationToRecord(n)); err != nil {
		d.logger.Error("failed to record notification", "item_id", n.ItemID, "error", err)
	}

	return sendErr
}

// LogDispatcher only logs and records notices; used for local
// development and tests.
type LogDispatcher struct {
	store  state.Store
	logger *slog.Logger
}

// NewLogDispatcher creates a log-only dispatcher.
func NewLogDispatcher(store state.Store, logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{store: store, logger: logger}
}

func (d *LogDispatcher) Notify(ctx context.Context, n *core.Notification) error {
	n.DeliveryStatus = core.DeliverySent
	d.logger.Info("retry notification",
		"item_id", n.ItemID,
		"user_id", n.UserID,
		"type", n.Type,
		"attempt", n.AttemptNumber,
		"message", n.Message,
	)
	if err := d.store.PutNotification(ctx, state.NotificationToRecord(n)); err != nil {
		d.logger.Error("failed to record notification", "item_id", n.ItemID, "error", err)
	}
	return nil
}
