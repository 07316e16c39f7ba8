package core

import (
	"context"
	"time"
)

// CreateItemRequest is the input for queuing a failed operation.
type CreateItemRequest struct {
	PaymentID     string            `json:"payment_id"`
	ReservationID string            `json:"reservation_id,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	RetryType     string            `json:"retry_type"`
	FailureReason string            `json:"failure_reason,omitempty"`
	FailureCode   string            `json:"failure_code,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CycleResult reports aggregate counters for one batch cycle.
type CycleResult struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// TypeStats is the per-retry-type analytics breakdown.
type TypeStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// AnalyticsResult aggregates attempt history over a time window.
type AnalyticsResult struct {
	TotalRetries            int                   `json:"total_retries"`
	SuccessfulRetries       int                   `json:"successful_retries"`
	FailedRetries           int                   `json:"failed_retries"`
	SuccessRate             float64               `json:"success_rate"`
	AverageProcessingTimeMs float64               `json:"average_processing_time_ms"`
	ByType                  map[string]*TypeStats `json:"by_type"`
}

// ItemManager handles queue item lifecycle operations.
type ItemManager interface {
	CreateItem(ctx context.Context, req *CreateItemRequest) (*QueueItem, error)
	GetItem(ctx context.Context, itemID string) (*QueueItem, error)
	GetQueueForUser(ctx context.Context, userID string, limit, offset int) ([]*QueueItem, error)
	GetHistory(ctx context.Context, itemID string) ([]*Attempt, error)
}

// CycleRunner executes retry processing.
type CycleRunner interface {
	RunBatchCycle(ctx context.Context) (*CycleResult, error)
	ManualRetry(ctx context.Context, itemID, adminID string) (bool, error)
	Reclaim(ctx context.Context) (int, error)
}

// AnalyticsProvider computes retry statistics.
type AnalyticsProvider interface {
	GetAnalytics(ctx context.Context, from, to time.Time) (*AnalyticsResult, error)
}

// PolicyManager exposes retry policy configuration.
type PolicyManager interface {
	ListPolicies(ctx context.Context) ([]*Policy, error)
}

// Service is the full retry scheduler surface exposed to calling code,
// composing all role-specific interfaces.
type Service interface {
	ItemManager
	CycleRunner
	AnalyticsProvider
	PolicyManager
	Ping(ctx context.Context) error
}
