// Package processor orchestrates the retry state machine: it claims due
// items, dispatches them to their execution handlers, settles the
// outcomes, and records attempt history and notifications.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reservepay/retryd/internal/analytics"
	"github.com/reservepay/retryd/internal/core"
	"github.com/reservepay/retryd/internal/handler"
	"github.com/reservepay/retryd/internal/metrics"
	"github.com/reservepay/retryd/internal/notify"
	"github.com/reservepay/retryd/internal/state"
)

// Options tune one processor instance.
type Options struct {
	// BatchSize caps the number of items claimed per cycle.
	BatchSize int
	// Workers bounds in-cycle parallelism.
	Workers int
	// ClaimTimeout is how long a claim may stay in processing before the
	// reclaimer hands the item back to pending.
	ClaimTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	out := Options{BatchSize: 10, Workers: 4, ClaimTimeout: 5 * time.Minute}
	if o == nil {
		return out
	}
	if o.BatchSize > 0 {
		out.BatchSize = o.BatchSize
	}
	if o.Workers > 0 {
		out.Workers = o.Workers
	}
	if o.ClaimTimeout > 0 {
		out.ClaimTimeout = o.ClaimTimeout
	}
	return out
}

// Processor implements core.Service. All item mutation flows through the
// store's claim/settle primitives, so two concurrent processors (or a
// cycle racing a manual retry) never execute the same item twice.
type Processor struct {
	store      state.Store
	registry   *handler.Registry
	notifier   notify.Dispatcher
	aggregator *analytics.Aggregator
	logger     *slog.Logger
	opts       Options

	now func() time.Time // injectable for tests
}

// New creates a Processor.
func New(store state.Store, registry *handler.Registry, notifier notify.Dispatcher, logger *slog.Logger, opts *Options) *Processor {
	return &Processor{
		store:      store,
		registry:   registry,
		notifier:   notifier,
		aggregator: analytics.New(store),
		logger:     logger,
		opts:       opts.withDefaults(),
		now:        time.Now,
	}
}

// SeedDefaultPolicies writes the built-in policies for any retry type
// that has no active policy yet.
func (p *Processor) SeedDefaultPolicies(ctx context.Context) error {
	for _, policy := range core.DefaultPolicies() {
		if _, err := p.store.GetActivePolicy(ctx, policy.RetryType); err == nil {
			continue
		} else if !core.IsCode(err, core.ErrCodeConfigError) {
			return err
		}
		if err := p.store.PutPolicy(ctx, state.PolicyToRecord(policy)); err != nil {
			return fmt.Errorf("seed policy for %s: %w", policy.RetryType, err)
		}
		p.logger.Info("seeded default retry policy", "retry_type", policy.RetryType)
	}
	return nil
}

// CreateItem queues a failed operation for automatic retry. The first
// attempt is due immediately.
func (p *Processor) CreateItem(ctx context.Context, req *core.CreateItemRequest) (*core.QueueItem, error) {
	if req.PaymentID == "" {
		return nil, core.NewInvalidRequestError("payment_id is required", nil)
	}
	if !core.IsValidRetryType(req.RetryType) {
		return nil, core.NewConfigError("unknown retry type: "+req.RetryType, map[string]any{
			"retry_type": req.RetryType,
		})
	}

	policyRecord, err := p.store.GetActivePolicy(ctx, req.RetryType)
	if err != nil {
		return nil, err
	}

	now := p.now()
	item := &core.QueueItem{
		ID:                core.NewUUIDv7(),
		PaymentID:         req.PaymentID,
		ReservationID:     req.ReservationID,
		UserID:            req.UserID,
		RetryType:         req.RetryType,
		Status:            core.StatusPending,
		AttemptNumber:     1,
		MaxAttempts:       policyRecord.MaxAttempts,
		NextRetryAt:       core.FormatTime(now),
		LastFailureReason: req.FailureReason,
		CreatedAt:         core.FormatTime(now),
		Metadata:          req.Metadata,
	}

	if err := p.store.PutItem(ctx, state.ItemToRecord(item)); err != nil {
		return nil, err
	}

	metrics.ItemsCreated.WithLabelValues(item.RetryType).Inc()
	p.logger.Info("retry item created",
		"item_id", item.ID,
		"payment_id", item.PaymentID,
		"retry_type", item.RetryType,
		"max_attempts", item.MaxAttempts,
	)
	return item, nil
}

// GetItem returns a single queue item.
func (p *Processor) GetItem(ctx context.Context, itemID string) (*core.QueueItem, error) {
	record, err := p.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return state.RecordToItem(record), nil
}

// GetQueueForUser returns a user's retry items, newest first.
func (p *Processor) GetQueueForUser(ctx context.Context, userID string, limit, offset int) ([]*core.QueueItem, error) {
	if limit <= 0 {
		limit = 20
	}
	records, err := p.store.ListItemsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]*core.QueueItem, 0, len(records))
	for _, record := range records {
		items = append(items, state.RecordToItem(record))
	}
	return items, nil
}

// GetHistory returns every attempt recorded for an item.
func (p *Processor) GetHistory(ctx context.Context, itemID string) ([]*core.Attempt, error) {
	if _, err := p.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	records, err := p.store.ListAttemptsByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	attempts := make([]*core.Attempt, 0, len(records))
	for _, record := range records {
		attempts = append(attempts, state.RecordToAttempt(record))
	}
	return attempts, nil
}

// RunBatchCycle claims one batch of due items and executes them with
// bounded parallelism. One item's failure never aborts the rest of the
// batch; store-level claim errors fail the whole cycle.
func (p *Processor) RunBatchCycle(ctx context.Context) (*core.CycleResult, error) {
	cycleStart := p.now()

	claimed, err := p.store.ClaimDueItems(ctx, p.opts.BatchSize, cycleStart, cycleStart.Add(p.opts.ClaimTimeout))
	if err != nil {
		return nil, fmt.Errorf("claim due items: %w", err)
	}

	result := &core.CycleResult{}
	if len(claimed) == 0 {
		return result, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.opts.Workers)
	)
	for _, record := range claimed {
		wg.Add(1)
		sem <- struct{}{}
		go func(record *state.ItemRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			success := p.executeClaimed(ctx, state.RecordToItem(record))

			mu.Lock()
			result.Processed++
			if success {
				result.Successful++
			} else {
				result.Failed++
			}
			mu.Unlock()
		}(record)
	}
	wg.Wait()

	metrics.CycleDuration.Observe(time.Since(cycleStart).Seconds())
	if backlog, err := p.store.CountDueItems(ctx, p.now()); err == nil {
		metrics.DueBacklog.Set(float64(backlog))
	}

	p.logger.Info("batch cycle finished",
		"processed", result.Processed,
		"successful", result.Successful,
		"failed", result.Failed,
		"duration_ms", time.Since(cycleStart).Milliseconds(),
	)
	return result, nil
}

// ManualRetry claims a single item regardless of its next_retry_at and
// executes it synchronously. Legal only from pending or failed; the
// admin-role check belongs to the caller. Returns the attempt's outcome.
func (p *Processor) ManualRetry(ctx context.Context, itemID, adminID string) (bool, error) {
	now := p.now()
	record, err := p.store.ClaimItem(ctx, itemID, now, now.Add(p.opts.ClaimTimeout))
	if err != nil {
		return false, err
	}

	p.logger.Info("manual retry triggered", "item_id", itemID, "admin_id", adminID)
	success := p.executeClaimed(ctx, state.RecordToItem(record))

	outcome := "failed"
	if success {
		outcome = "success"
	}
	metrics.ManualRetries.WithLabelValues(outcome).Inc()
	return success, nil
}

// Reclaim hands items stuck in processing past their claim deadline back
// to pending with an unchanged attempt number.
func (p *Processor) Reclaim(ctx context.Context) (int, error) {
	reclaimed, err := p.store.ReclaimStuck(ctx, p.now())
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		metrics.ItemsReclaimed.Add(float64(reclaimed))
		p.logger.Warn("reclaimed stuck items", "count", reclaimed)
	}
	return reclaimed, nil
}

// GetAnalytics delegates to the analytics aggregator.
func (p *Processor) GetAnalytics(ctx context.Context, from, to time.Time) (*core.AnalyticsResult, error) {
	return p.aggregator.GetAnalytics(ctx, from, to)
}

// ListPolicies returns all stored retry policies.
func (p *Processor) ListPolicies(ctx context.Context) ([]*core.Policy, error) {
	records, err := p.store.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	policies := make([]*core.Policy, 0, len(records))
	for _, record := range records {
		policies = append(policies, state.RecordToPolicy(record))
	}
	return policies, nil
}

// Ping checks store health.
func (p *Processor) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

// executeClaimed runs one attempt for an item already claimed into
// processing: history record, handler execution, settle, notification.
// Returns true when the handler succeeded and the success was settled.
func (p *Processor) executeClaimed(ctx context.Context, item *core.QueueItem) bool {
	attempt := &core.Attempt{
		ID:            core.NewUUIDv7(),
		ItemID:        item.ID,
		PaymentID:     item.PaymentID,
		RetryType:     item.RetryType,
		AttemptNumber: item.AttemptNumber,
		Status:        core.AttemptProcessing,
		StartedAt:     core.FormatTime(p.now()),
	}
	if err := p.store.PutAttempt(ctx, state.AttemptToRecord(attempt)); err != nil {
		p.logger.Error("failed to record attempt start", "item_id", item.ID, "error", err)
	}

	h, ok := p.registry.Handler(item.RetryType)
	var res handler.Result
	if !ok {
		// The registry covers every known type at startup; an item with
		// an unregistered type can only come from bad stored data.
		res = handler.Result{
			Success:       false,
			FailureReason: "no handler registered for retry type: " + item.RetryType,
			FailureCode:   "config_error",
		}
	} else {
		metrics.InFlight.Inc()
		start := p.now()
		res = h.Execute(ctx, item)
		metrics.InFlight.Dec()
		metrics.AttemptDuration.WithLabelValues(item.RetryType).Observe(time.Since(start).Seconds())
	}
	elapsedMs := p.now().Sub(mustParse(attempt.StartedAt)).Milliseconds()

	if res.Success {
		return p.settleSuccess(ctx, item, attempt, res, elapsedMs)
	}
	p.settleFailure(ctx, item, attempt, res, elapsedMs)
	return false
}

func (p *Processor) settleSuccess(ctx context.Context, item *core.QueueItem, attempt *core.Attempt, res handler.Result, elapsedMs int64) bool {
	now := p.now()
	if err := p.store.SettleSuccess(ctx, item.ID, now); err != nil {
		// Most likely the reclaimer raced us; the attempt result is
		// recorded but the item keeps its current state.
		p.logger.Error("failed to settle success", "item_id", item.ID, "error", err)
		p.finalizeAttempt(ctx, item, attempt, &state.AttemptFinal{
			Status:           core.AttemptSuccess,
			CompletedAt:      now,
			ProcessingTimeMs: elapsedMs,
			ProviderResponse: res.ProviderResponse,
		})
		return false
	}

	p.finalizeAttempt(ctx, item, attempt, &state.AttemptFinal{
		Status:           core.AttemptSuccess,
		CompletedAt:      now,
		ProcessingTimeMs: elapsedMs,
		ProviderResponse: res.ProviderResponse,
	})

	metrics.Attempts.WithLabelValues(item.RetryType, "success").Inc()
	p.logger.Info("retry attempt succeeded",
		"item_id", item.ID,
		"payment_id", item.PaymentID,
		"attempt", item.AttemptNumber,
	)

	p.dispatch(ctx, item, core.NotifyRetrySuccess,
		fmt.Sprintf("Your payment operation succeeded on attempt %d.", item.AttemptNumber))
	return true
}

func (p *Processor) settleFailure(ctx context.Context, item *core.QueueItem, attempt *core.Attempt, res handler.Result, elapsedMs int64) {
	now := p.now()
	nextAttempt := item.AttemptNumber + 1

	delay := p.nextDelay(ctx, item.RetryType, nextAttempt)
	terminal, err := p.store.SettleRetry(ctx, item.ID, nextAttempt, delay, res.FailureReason, now)
	if err != nil {
		p.logger.Error("failed to settle retry", "item_id", item.ID, "error", err)
	}

	p.finalizeAttempt(ctx, item, attempt, &state.AttemptFinal{
		Status:           core.AttemptFailed,
		CompletedAt:      now,
		ProcessingTimeMs: elapsedMs,
		FailureReason:    res.FailureReason,
		FailureCode:      res.FailureCode,
		ProviderResponse: res.ProviderResponse,
	})

	if terminal {
		metrics.Attempts.WithLabelValues(item.RetryType, "exhausted").Inc()
		p.logger.Warn("retry attempts exhausted",
			"item_id", item.ID,
			"payment_id", item.PaymentID,
			"attempts", item.AttemptNumber,
			"reason", res.FailureReason,
		)
		p.dispatch(ctx, item, core.NotifyRetryFailure,
			fmt.Sprintf("Your payment operation failed after %d attempts and will not be retried automatically. Support has been notified.", item.AttemptNumber))
		return
	}

	metrics.Attempts.WithLabelValues(item.RetryType, "rescheduled").Inc()
	p.logger.Info("retry attempt failed, rescheduled",
		"item_id", item.ID,
		"payment_id", item.PaymentID,
		"attempt", item.AttemptNumber,
		"next_attempt", nextAttempt,
		"delay_seconds", int(delay.Seconds()),
		"reason", res.FailureReason,
	)
	p.dispatch(ctx, item, core.NotifyRetryFailure,
		fmt.Sprintf("Your payment operation failed on attempt %d. It will be retried automatically.", item.AttemptNumber))
}

// nextDelay computes the backoff for the next attempt from the active
// policy. A missing policy falls back to the built-in default so a
// settle is never blocked on configuration.
func (p *Processor) nextDelay(ctx context.Context, retryType string, nextAttempt int) time.Duration {
	policyRecord, err := p.store.GetActivePolicy(ctx, retryType)
	if err != nil {
		p.logger.Error("no active policy at settle time, using defaults", "retry_type", retryType, "error", err)
		for _, d := range core.DefaultPolicies() {
			if d.RetryType == retryType {
				return core.ComputeDelay(d, nextAttempt)
			}
		}
		return time.Minute
	}
	return core.ComputeDelay(state.RecordToPolicy(policyRecord), nextAttempt)
}

func (p *Processor) finalizeAttempt(ctx context.Context, item *core.QueueItem, attempt *core.Attempt, final *state.AttemptFinal) {
	if err := p.store.FinalizeAttempt(ctx, item.ID, attempt.ID, final); err != nil {
		p.logger.Error("failed to finalize attempt", "item_id", item.ID, "attempt_id", attempt.ID, "error", err)
	}
}

// dispatch sends a notification best-effort. Delivery failure never
// affects the settle that triggered it.
func (p *Processor) dispatch(ctx context.Context, item *core.QueueItem, notifyType, message string) {
	n := &core.Notification{
		ID:             core.NewUUIDv7(),
		ItemID:         item.ID,
		UserID:         item.UserID,
		Type:           notifyType,
		AttemptNumber:  item.AttemptNumber,
		Message:        message,
		DeliveryStatus: core.DeliveryPending,
		CreatedAt:      core.FormatTime(p.now()),
	}
	if err := p.notifier.Notify(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues(core.DeliveryFailed).Inc()
		return
	}
	metrics.Notifications.WithLabelValues(core.DeliverySent).Inc()
}

func mustParse(iso string) time.Time {
	t, err := core.ParseTime(iso)
	if err != nil {
		return time.Time{}
	}
	return t
}
