package core

import "time"

const (
	Version    = "1.2.0"
	TimeFormat = "2006-01-02T15:04:05.000Z"
)

// FormatTime formats a time as ISO 8601 UTC with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses an ISO 8601 UTC timestamp produced by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// NowFormatted returns the current time formatted as ISO 8601 UTC.
func NowFormatted() string {
	return FormatTime(time.Now())
}

// Retry types supported by the scheduler. Every queue item is bound to
// exactly one of these, which selects both the active retry policy and
// the execution handler.
const (
	TypePaymentConfirmation = "payment_confirmation"
	TypeWebhookDelivery     = "webhook_delivery"
	TypeRefundProcessing    = "refund_processing"
	TypeSplitPayment        = "split_payment"
)

// RetryTypes lists all known retry types.
var RetryTypes = []string{
	TypePaymentConfirmation,
	TypeWebhookDelivery,
	TypeRefundProcessing,
	TypeSplitPayment,
}

// IsValidRetryType reports whether s names a known retry type.
func IsValidRetryType(s string) bool {
	for _, t := range RetryTypes {
		if t == s {
			return true
		}
	}
	return false
}

// QueueItem is one queued instance of a failed payment operation awaiting
// re-execution. Items are never deleted; terminal items remain for audit
// and analytics.
type QueueItem struct {
	ID                string            `json:"id"`
	PaymentID         string            `json:"payment_id"`
	ReservationID     string            `json:"reservation_id,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
	RetryType         string            `json:"retry_type"`
	Status            string            `json:"status"`
	AttemptNumber     int               `json:"attempt_number"`
	MaxAttempts       int               `json:"max_attempts"`
	RetryCount        int               `json:"retry_count"`
	SuccessCount      int               `json:"success_count"`
	NextRetryAt       string            `json:"next_retry_at,omitempty"`
	ClaimDeadline     string            `json:"claim_deadline,omitempty"`
	LastAttemptAt     string            `json:"last_attempt_at,omitempty"`
	LastFailureReason string            `json:"last_failure_reason,omitempty"`
	CreatedAt         string            `json:"created_at"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Attempt statuses. An attempt record is created as "processing" and
// finalized exactly once to "success" or "failed"; it is immutable after
// its completed_at is set.
const (
	AttemptProcessing = "processing"
	AttemptSuccess    = "success"
	AttemptFailed     = "failed"
)

// Attempt is the history record for one individual execution of a queue
// item (1:N with QueueItem).
type Attempt struct {
	ID               string `json:"id"`
	ItemID           string `json:"item_id"`
	PaymentID        string `json:"payment_id"`
	RetryType        string `json:"retry_type"`
	AttemptNumber    int    `json:"attempt_number"`
	Status           string `json:"status"`
	StartedAt        string `json:"started_at"`
	CompletedAt      string `json:"completed_at,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
	FailureReason    string `json:"failure_reason,omitempty"`
	FailureCode      string `json:"failure_code,omitempty"`
	ProviderResponse string `json:"provider_response,omitempty"`
}

// Notification types emitted when an attempt settles.
const (
	NotifyRetrySuccess = "retry_success"
	NotifyRetryFailure = "retry_failure"
)

// Notification delivery statuses.
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// Notification is one user-facing notice produced by a settle event.
// Delivery is best-effort and never rolls back the state transition
// that triggered it.
type Notification struct {
	ID             string `json:"id"`
	ItemID         string `json:"item_id"`
	UserID         string `json:"user_id,omitempty"`
	Type           string `json:"type"`
	AttemptNumber  int    `json:"attempt_number"`
	Message        string `json:"message"`
	DeliveryStatus string `json:"delivery_status"`
	CreatedAt      string `json:"created_at"`
}
