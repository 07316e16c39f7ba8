// Package analytics computes success/failure statistics over attempt
// history. Read-only; it never mutates retry state.
package analytics

import (
	"context"
	"time"

	"github.com/reservepay/retryd/internal/core"
	"github.com/reservepay/retryd/internal/state"
)

// Aggregator scans finalized attempts in a time window and produces
// totals plus a per-retry-type breakdown.
type Aggregator struct {
	store state.Store
}

// New creates an Aggregator over the given store.
func New(store state.Store) *Aggregator {
	return &Aggregator{store: store}
}

// GetAnalytics computes statistics for attempts completed in [from, to].
// Empty windows produce zero values, never NaN.
func (a *Aggregator) GetAnalytics(ctx context.Context, from, to time.Time) (*core.AnalyticsResult, error) {
	records, err := a.store.ListAttemptsByRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	result := &core.AnalyticsResult{
		ByType: make(map[string]*core.TypeStats),
	}

	var totalElapsedMs int64
	for _, record := range records {
		if record.Status != core.AttemptSuccess && record.Status != core.AttemptFailed {
			continue // still processing; not part of the window's outcomes
		}

		result.TotalRetries++
		totalElapsedMs += record.ProcessingTimeMs

		stats := result.ByType[record.RetryType]
		if stats == nil {
			stats = &core.TypeStats{}
			result.ByType[record.RetryType] = stats
		}
		stats.Total++

		if record.Status == core.AttemptSuccess {
			result.SuccessfulRetries++
			stats.Successful++
		} else {
			result.FailedRetries++
			stats.Failed++
		}
	}

	result.SuccessRate = rate(result.SuccessfulRetries, result.TotalRetries)
	if result.TotalRetries > 0 {
		result.AverageProcessingTimeMs = float64(totalElapsedMs) / float64(result.TotalRetries)
	}
	for _, stats := range result.ByType {
		stats.SuccessRate = rate(stats.Successful, stats.Total)
	}

	return result, nil
}

func rate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}
