package state

import (
	"context"
	"time"

	"github.com/reservepay/retryd/internal/core"
)

// ItemRecord represents a retry queue item stored in the state store
// (DynamoDB).
type ItemRecord struct {
	ID                string            `dynamodbav:"PK"`
	SK                string            `dynamodbav:"SK"`
	PaymentID         string            `dynamodbav:"payment_id"`
	ReservationID     string            `dynamodbav:"reservation_id,omitempty"`
	UserID            string            `dynamodbav:"user_id,omitempty"`
	RetryType         string            `dynamodbav:"retry_type"`
	Status            string            `dynamodbav:"item_status"`
	AttemptNumber     int               `dynamodbav:"attempt_number"`
	MaxAttempts       int               `dynamodbav:"max_attempts"`
	RetryCount        int               `dynamodbav:"retry_count"`
	SuccessCount      int               `dynamodbav:"success_count"`
	NextRetryAt       string            `dynamodbav:"next_retry_at,omitempty"`
	ClaimDeadline     string            `dynamodbav:"claim_deadline,omitempty"`
	LastAttemptAt     string            `dynamodbav:"last_attempt_at,omitempty"`
	LastFailureReason string            `dynamodbav:"last_failure_reason,omitempty"`
	CreatedAt         string            `dynamodbav:"created_at"`
	Metadata          map[string]string `dynamodbav:"metadata,omitempty"`

	// GSI attributes for queries
	GSI1PK string `dynamodbav:"GSI1PK,omitempty"` // STATUS#<status>
	GSI1SK int64  `dynamodbav:"GSI1SK,omitempty"` // due time in ms (next_retry_at for pending, claim_deadline for processing)
	GSI2PK string `dynamodbav:"GSI2PK,omitempty"` // USER#<user_id>
	GSI2SK string `dynamodbav:"GSI2SK,omitempty"` // <created_at>
}

// AttemptRecord represents one execution attempt stored alongside its
// parent item (PK=<item_id>, SK=ATTEMPT#<attempt_id>).
type AttemptRecord struct {
	ItemID           string `dynamodbav:"PK"`
	SK               string `dynamodbav:"SK"`
	AttemptID        string `dynamodbav:"attempt_id"`
	PaymentID        string `dynamodbav:"payment_id"`
	RetryType        string `dynamodbav:"retry_type"`
	AttemptNumber    int    `dynamodbav:"attempt_number"`
	Status           string `dynamodbav:"attempt_status"`
	StartedAt        string `dynamodbav:"started_at"`
	CompletedAt      string `dynamodbav:"completed_at,omitempty"`
	ProcessingTimeMs int64  `dynamodbav:"processing_time_ms,omitempty"`
	FailureReason    string `dynamodbav:"failure_reason,omitempty"`
	FailureCode      string `dynamodbav:"failure_code,omitempty"`
	ProviderResponse string `dynamodbav:"provider_response,omitempty"`

	// GSI3 partitions all finalized attempts by completion time so the
	// analytics aggregator can range-scan a window.
	GSI3PK string `dynamodbav:"GSI3PK,omitempty"` // ATTEMPT
	GSI3SK int64  `dynamodbav:"GSI3SK,omitempty"` // completed_at in ms
}

// AttemptFinal carries the terminal fields written exactly once when an
// attempt finishes.
type AttemptFinal struct {
	Status           string
	CompletedAt      time.Time
	ProcessingTimeMs int64
	FailureReason    string
	FailureCode      string
	ProviderResponse string
}

// PolicyRecord represents a retry policy in the state store
// (PK=POLICY#<retry_type>, SK=POLICY#<name>).
type PolicyRecord struct {
	PK                string  `dynamodbav:"PK"`
	SK                string  `dynamodbav:"SK"`
	RetryType         string  `dynamodbav:"retry_type"`
	Name              string  `dynamodbav:"name"`
	MaxAttempts       int     `dynamodbav:"max_attempts"`
	BaseDelaySeconds  int     `dynamodbav:"base_delay_seconds"`
	MaxDelaySeconds   int     `dynamodbav:"max_delay_seconds"`
	BackoffMultiplier float64 `dynamodbav:"backoff_multiplier"`
	JitterFactor      float64 `dynamodbav:"jitter_factor"`
	IsActive          bool    `dynamodbav:"is_active"`
	Description       string  `dynamodbav:"description,omitempty"`
}

// NotificationRecord represents a user-facing retry notice
// (PK=NOTIFY#<id>, SK=NOTIFY).
type NotificationRecord struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	ID             string `dynamodbav:"notification_id"`
	ItemID         string `dynamodbav:"item_id"`
	UserID         string `dynamodbav:"user_id,omitempty"`
	Type           string `dynamodbav:"notification_type"`
	AttemptNumber  int    `dynamodbav:"attempt_number"`
	Message        string `dynamodbav:"message"`
	DeliveryStatus string `dynamodbav:"delivery_status"`
	CreatedAt      string `dynamodbav:"created_at"`
}

// Store defines the interface for the durable retry state store. All
// status mutations go through its claim/settle primitives, which are
// conditional on the current status (compare-and-swap) so concurrent
// scheduler runs never act on the same item twice.
type Store interface {
	// Item operations
	PutItem(ctx context.Context, record *ItemRecord) error
	GetItem(ctx context.Context, itemID string) (*ItemRecord, error)

	// ClaimDueItems atomically transitions up to limit due pending items
	// to processing and returns them. Items lost to a concurrent claim
	// are skipped, never returned twice.
	ClaimDueItems(ctx context.Context, limit int, now, deadline time.Time) ([]*ItemRecord, error)

	// ClaimItem claims a single item for manual retry. Legal only from
	// pending or failed; returns an invalid_state error otherwise and a
	// conflict error when the CAS loses.
	ClaimItem(ctx context.Context, itemID string, now, deadline time.Time) (*ItemRecord, error)

	// SettleSuccess transitions processing -> completed and increments
	// success_count. A second call is a conflict, never a double
	// increment.
	SettleSuccess(ctx context.Context, itemID string, now time.Time) error

	// SettleRetry reschedules a failed attempt, or marks the item failed
	// terminally when nextAttempt exceeds max_attempts. Returns whether
	// the item is now terminal.
	SettleRetry(ctx context.Context, itemID string, nextAttempt int, delay time.Duration, reason string, now time.Time) (bool, error)

	// ReclaimStuck returns items stuck in processing past their claim
	// deadline back to pending with an unchanged attempt_number.
	ReclaimStuck(ctx context.Context, now time.Time) (int, error)

	ListItemsByUser(ctx context.Context, userID string, limit, offset int) ([]*ItemRecord, error)
	CountDueItems(ctx context.Context, now time.Time) (int, error)

	// Attempt history
	PutAttempt(ctx context.Context, record *AttemptRecord) error
	FinalizeAttempt(ctx context.Context, itemID, attemptID string, final *AttemptFinal) error
	ListAttemptsByItem(ctx context.Context, itemID string) ([]*AttemptRecord, error)
	ListAttemptsByRange(ctx context.Context, from, to time.Time) ([]*AttemptRecord, error)

	// Policy operations
	PutPolicy(ctx context.Context, record *PolicyRecord) error
	GetActivePolicy(ctx context.Context, retryType string) (*PolicyRecord, error)
	ListPolicies(ctx context.Context) ([]*PolicyRecord, error)

	// Notifications
	PutNotification(ctx context.Context, record *NotificationRecord) error

	// Health check
	Ping(ctx context.Context) error

	// Close the store
	Close() error
}

// RecordToItem converts an ItemRecord to a core.QueueItem.
func RecordToItem(r *ItemRecord) *core.QueueItem {
	return &core.QueueItem{
		ID:                r.ID,
		PaymentID:         r.PaymentID,
		ReservationID:     r.ReservationID,
		UserID:            r.UserID,
		RetryType:         r.RetryType,
		Status:            r.Status,
		AttemptNumber:     r.AttemptNumber,
		MaxAttempts:       r.MaxAttempts,
		RetryCount:        r.RetryCount,
		SuccessCount:      r.SuccessCount,
		NextRetryAt:       r.NextRetryAt,
		ClaimDeadline:     r.ClaimDeadline,
		LastAttemptAt:     r.LastAttemptAt,
		LastFailureReason: r.LastFailureReason,
		CreatedAt:         r.CreatedAt,
		Metadata:          r.Metadata,
	}
}

// ItemToRecord converts a core.QueueItem to an ItemRecord for storage,
// deriving the GSI key attributes from the item's status.
func ItemToRecord(item *core.QueueItem) *ItemRecord {
	r := &ItemRecord{
		ID:                item.ID,
		SK:                "ITEM",
		PaymentID:         item.PaymentID,
		ReservationID:     item.ReservationID,
		UserID:            item.UserID,
		RetryType:         item.RetryType,
		Status:            item.Status,
		AttemptNumber:     item.AttemptNumber,
		MaxAttempts:       item.MaxAttempts,
		RetryCount:        item.RetryCount,
		SuccessCount:      item.SuccessCount,
		NextRetryAt:       item.NextRetryAt,
		ClaimDeadline:     item.ClaimDeadline,
		LastAttemptAt:     item.LastAttemptAt,
		LastFailureReason: item.LastFailureReason,
		CreatedAt:         item.CreatedAt,
		Metadata:          item.Metadata,
		GSI1PK:            "STATUS#" + item.Status,
		GSI1SK:            dueMillis(item),
	}
	if item.UserID != "" {
		r.GSI2PK = "USER#" + item.UserID
		r.GSI2SK = item.CreatedAt
	}
	return r
}

// dueMillis derives the GSI1 sort key: the moment the scheduler next
// needs to look at the item.
func dueMillis(item *core.QueueItem) int64 {
	switch item.Status {
	case core.StatusPending:
		return timeMillis(item.NextRetryAt)
	case core.StatusProcessing:
		return timeMillis(item.ClaimDeadline)
	default:
		return 0
	}
}

func timeMillis(iso string) int64 {
	if iso == "" {
		return 0
	}
	t, err := core.ParseTime(iso)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// RecordToAttempt converts an AttemptRecord to a core.Attempt.
func RecordToAttempt(r *AttemptRecord) *core.Attempt {
	return &core.Attempt{
		ID:               r.AttemptID,
		ItemID:           r.ItemID,
		PaymentID:        r.PaymentID,
		RetryType:        r.RetryType,
		AttemptNumber:    r.AttemptNumber,
		Status:           r.Status,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		ProcessingTimeMs: r.ProcessingTimeMs,
		FailureReason:    r.FailureReason,
		FailureCode:      r.FailureCode,
		ProviderResponse: r.ProviderResponse,
	}
}

// AttemptToRecord converts a core.Attempt to an AttemptRecord for
// storage.
func AttemptToRecord(a *core.Attempt) *AttemptRecord {
	r := &AttemptRecord{
		ItemID:           a.ItemID,
		SK:               "ATTEMPT#" + a.ID,
		AttemptID:        a.ID,
		PaymentID:        a.PaymentID,
		RetryType:        a.RetryType,
		AttemptNumber:    a.AttemptNumber,
		Status:           a.Status,
		StartedAt:        a.StartedAt,
		CompletedAt:      a.CompletedAt,
		ProcessingTimeMs: a.ProcessingTimeMs,
		FailureReason:    a.FailureReason,
		FailureCode:      a.FailureCode,
		ProviderResponse: a.ProviderResponse,
	}
	if a.CompletedAt != "" {
		r.GSI3PK = "ATTEMPT"
		r.GSI3SK = timeMillis(a.CompletedAt)
	}
	return r
}

// RecordToPolicy converts a PolicyRecord to a core.Policy.
func RecordToPolicy(r *PolicyRecord) *core.Policy {
	return &core.Policy{
		RetryType:         r.RetryType,
		Name:              r.Name,
		MaxAttempts:       r.MaxAttempts,
		BaseDelaySeconds:  r.BaseDelaySeconds,
		MaxDelaySeconds:   r.MaxDelaySeconds,
		BackoffMultiplier: r.BackoffMultiplier,
		JitterFactor:      r.JitterFactor,
		IsActive:          r.IsActive,
		Description:       r.Description,
	}
}

// PolicyToRecord converts a core.Policy to a PolicyRecord for storage.
func PolicyToRecord(p *core.Policy) *PolicyRecord {
	name := p.Name
	if name == "" {
		name = "default"
	}
	return &PolicyRecord{
		PK:                "POLICY#" + p.RetryType,
		SK:                "POLICY#" + name,
		RetryType:         p.RetryType,
		Name:              name,
		MaxAttempts:       p.MaxAttempts,
		BaseDelaySeconds:  p.BaseDelaySeconds,
		MaxDelaySeconds:   p.MaxDelaySeconds,
		BackoffMultiplier: p.BackoffMultiplier,
		JitterFactor:      p.JitterFactor,
		IsActive:          p.IsActive,
		Description:       p.Description,
	}
}

// NotificationToRecord converts a core.Notification for storage.
func NotificationToRecord(n *core.Notification) *NotificationRecord {
	return &NotificationRecord{
		PK:             "NOTIFY#" + n.ID,
		SK:             "NOTIFY",
		ID:             n.ID,
		ItemID:         n.ItemID,
		UserID:         n.UserID,
		Type:           n.Type,
		AttemptNumber:  n.AttemptNumber,
		Message:        n.Message,
		DeliveryStatus: n.DeliveryStatus,
		CreatedAt:      n.CreatedAt,
	}
}
