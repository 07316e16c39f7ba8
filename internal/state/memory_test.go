package state

import (
	"context"
	"testing"
	"time"

	"github.com/reservepay/retryd/internal/core"
)

func seedPendingItem(t *testing.T, store *MemoryStore, id string, due time.Time) {
	t.Helper()
	item := &core.QueueItem{
		ID:            id,
		PaymentID:     "pay-" + id,
		UserID:        "user-1",
		RetryType:     core.TypeWebhookDelivery,
		Status:        core.StatusPending,
		AttemptNumber: 1,
		MaxAttempts:   3,
		NextRetryAt:   core.FormatTime(due),
		CreatedAt:     core.FormatTime(due.Add(-time.Minute)),
	}
	if err := store.PutItem(context.Background(), ItemToRecord(item)); err != nil {
		t.Fatalf("PutItem: %v", err)
	}
}

func TestClaimDueItems_OnlyDuePending(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedPendingItem(t, store, "due-1", now.Add(-time.Minute))
	seedPendingItem(t, store, "due-2", now)
	seedPendingItem(t, store, "future", now.Add(time.Minute))

	claimed, err := store.ClaimDueItems(context.Background(), 10, now, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("ClaimDueItems: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d items, want 2", len(claimed))
	}
	for _, record := range claimed {
		if record.Status != core.StatusProcessing {
			t.Errorf("item %s status = %s, want processing", record.ID, record.Status)
		}
		if record.ClaimDeadline == "" {
			t.Errorf("item %s has no claim deadline", record.ID)
		}
	}

	// A second cycle at the same instant finds nothing left to claim.
	again, err := store.ClaimDueItems(context.Background(), 10, now, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("second ClaimDueItems: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second claim returned %d items, want 0", len(again))
	}

	future, _ := store.GetItem(context.Background(), "future")
	if future.Status != core.StatusPending {
		t.Errorf("future item was claimed early: %s", future.Status)
	}
}

func TestClaimDueItems_HonorsLimitOldestFirst(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedPendingItem(t, store, "newest", now.Add(-time.Second))
	seedPendingItem(t, store, "oldest", now.Add(-time.Hour))
	seedPendingItem(t, store, "middle", now.Add(-time.Minute))

	claimed, err := store.ClaimDueItems(context.Background(), 2, now, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("ClaimDueItems: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d items, want 2", len(claimed))
	}
	if claimed[0].ID != "oldest" || claimed[1].ID != "middle" {
		t.Errorf("claim order = %s, %s; want oldest, middle", claimed[0].ID, claimed[1].ID)
	}
}

func TestClaimItem_ManualRetryStates(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	seedPendingItem(t, store, "item-1", now.Add(time.Hour)) // not yet due

	claimed, err := store.ClaimItem(ctx, "item-1", now, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("ClaimItem on pending: %v", err)
	}
	if claimed.Status != core.StatusProcessing {
		t.Errorf("status = %s, want processing", claimed.Status)
	}

	// Already processing: manual retry is rejected, item untouched.
	if _, err := store.ClaimItem(ctx, "item-1", now, now.Add(5*time.Minute)); !core.IsCode(err, core.ErrCodeInvalidState) {
		t.Errorf("ClaimItem on processing returned %v, want invalid_state", err)
	}

	if err := store.SettleSuccess(ctx, "item-1", now); err != nil {
		t.Fatalf("SettleSuccess: %v", err)
	}
	if _, err := store.ClaimItem(ctx, "item-1", now, now.Add(5*time.Minute)); !core.IsCode(err, core.ErrCodeInvalidState) {
		t.Errorf("ClaimItem on completed returned %v, want invalid_state", err)
	}

	if _, err := store.ClaimItem(ctx, "missing", now, now.Add(5*time.Minute)); !core.IsCode(err, core.ErrCodeNotFound) {
		t.Errorf("ClaimItem on missing returned %v, want not_found", err)
	}
}

func TestClaimItem_FailedItemRetryable(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	seedPendingItem(t, store, "item-1", now)
	if _, err := store.ClaimItem(ctx, "item-1", now, now.Add(5*time.Minute)); err != nil {
		t.Fatalf("ClaimItem: %v", err)
	}
	// Exhaust attempts: nextAttempt 4 > max 3 goes terminal.
	terminal, err := store.SettleRetry(ctx, "item-1", 4, time.Minute, "timeout", now)
	if err != nil {
		t.Fatalf("SettleRetry: %v", err)
	}
	if !terminal {
		t.Fatal("expected terminal settle")
	}

	record, _ := store.GetItem(ctx, "item-1")
	if record.Status != core.StatusFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	if record.LastFailureReason != "Max retry attempts reached" {
		t.Errorf("LastFailureReason = %q", record.LastFailureReason)
	}

	// Failed items can be claimed again manually.
	claimed, err := store.ClaimItem(ctx, "item-1", now, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("ClaimItem on failed: %v", err)
	}
	if claimed.Status != core.StatusProcessing {
		t.Errorf("status = %s, want processing", claimed.Status)
	}
}

func TestSettleSuccess_SecondCallConflicts(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	seedPendingItem(t, store, "item-1", now)
	if _, err := store.ClaimDueItems(ctx, 10, now, now.Add(5*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := store.SettleSuccess(ctx, "item-1", now); err != nil {
		t.Fatalf("SettleSuccess: %v", err)
	}

	record, _ := store.GetItem(ctx, "item-1")
	if record.Status != core.StatusCompleted {
		t.Errorf("status = %s, want completed", record.Status)
	}
	if record.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", record.SuccessCount)
	}
	if record.ClaimDeadline != "" {
		t.Errorf("claim deadline not cleared: %q", record.ClaimDeadline)
	}

	if err := store.SettleSuccess(ctx, "item-1", now); !core.IsCode(err, core.ErrCodeConflict) {
		t.Errorf("second SettleSuccess returned %v, want conflict", err)
	}
	record, _ = store.GetItem(ctx, "item-1")
	if record.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d after rejected settle, want 1", record.SuccessCount)
	}
}

func TestSettleRetry_ReschedulesWithDelay(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	seedPendingItem(t, store, "item-1", now)
	if _, err := store.ClaimDueItems(ctx, 10, now, now.Add(5*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	terminal, err := store.SettleRetry(ctx, "item-1", 2, 90*time.Second, "provider 503", now)
	if err != nil {
		t.Fatalf("SettleRetry: %v", err)
	}
	if terminal {
		t.Fatal("attempt 2 of 3 should not be terminal")
	}

	record, _ := store.GetItem(ctx, "item-1")
	if record.Status != core.StatusPending {
		t.Errorf("status = %s, want pending", record.Status)
	}
	if record.AttemptNumber != 2 {
		t.Errorf("AttemptNumber = %d, want 2", record.AttemptNumber)
	}
	if record.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", record.RetryCount)
	}
	if record.LastFailureReason != "provider 503" {
		t.Errorf("LastFailureReason = %q", record.LastFailureReason)
	}
	wantDue := core.FormatTime(now.Add(90 * time.Second))
	if record.NextRetryAt != wantDue {
		t.Errorf("NextRetryAt = %q, want %q", record.NextRetryAt, wantDue)
	}

	// Settling twice loses the CAS: the item is no longer processing.
	if _, err := store.SettleRetry(ctx, "item-1", 2, time.Minute, "again", now); !core.IsCode(err, core.ErrCodeConflict) {
		t.Errorf("second SettleRetry returned %v, want conflict", err)
	}
}

func TestReclaimStuck(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	seedPendingItem(t, store, "stuck", now.Add(-10*time.Minute))
	seedPendingItem(t, store, "healthy", now.Add(-10*time.Minute))

	// "stuck" was claimed long ago and its deadline passed; "healthy" was
	// claimed just now.
	if _, err := store.ClaimItem(ctx, "stuck", now.Add(-10*time.Minute), now.Add(-5*time.Minute)); err != nil {
		t.Fatalf("claim stuck: %v", err)
	}
	if _, err := store.ClaimItem(ctx, "healthy", now, now.Add(5*time.Minute)); err != nil {
		t.Fatalf("claim healthy: %v", err)
	}

	reclaimed, err := store.ReclaimStuck(ctx, now)
	if err != nil {
		t.Fatalf("ReclaimStuck: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed %d, want 1", reclaimed)
	}

	stuck, _ := store.GetItem(ctx, "stuck")
	if stuck.Status != core.StatusPending {
		t.Errorf("stuck status = %s, want pending", stuck.Status)
	}
	if stuck.AttemptNumber != 1 {
		t.Errorf("reclaim changed attempt number: %d", stuck.AttemptNumber)
	}
	healthy, _ := store.GetItem(ctx, "healthy")
	if healthy.Status != core.StatusProcessing {
		t.Errorf("healthy item was reclaimed: %s", healthy.Status)
	}
}

func TestCountDueItems(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedPendingItem(t, store, "due", now.Add(-time.Minute))
	seedPendingItem(t, store, "future", now.Add(time.Minute))

	count, err := store.CountDueItems(context.Background(), now)
	if err != nil {
		t.Fatalf("CountDueItems: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestListItemsByUser_Pagination(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		item := &core.QueueItem{
			ID:          string(rune('a' + i)),
			PaymentID:   "pay",
			UserID:      "user-1",
			RetryType:   core.TypeWebhookDelivery,
			Status:      core.StatusPending,
			NextRetryAt: core.FormatTime(now),
			CreatedAt:   core.FormatTime(now.Add(time.Duration(i) * time.Minute)),
		}
		if err := store.PutItem(ctx, ItemToRecord(item)); err != nil {
			t.Fatalf("PutItem: %v", err)
		}
	}

	page, err := store.ListItemsByUser(ctx, "user-1", 2, 1)
	if err != nil {
		t.Fatalf("ListItemsByUser: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	// Newest first: created at +4m is skipped by offset 1.
	if page[0].ID != "d" || page[1].ID != "c" {
		t.Errorf("page = %s, %s; want d, c", page[0].ID, page[1].ID)
	}

	empty, err := store.ListItemsByUser(ctx, "user-1", 10, 99)
	if err != nil {
		t.Fatalf("ListItemsByUser offset past end: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty page, got %d", len(empty))
	}
}

func TestFinalizeAttempt_Immutable(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	record := &AttemptRecord{
		ItemID:        "item-1",
		SK:            "ATTEMPT#att-1",
		AttemptID:     "att-1",
		PaymentID:     "pay-1",
		RetryType:     core.TypeWebhookDelivery,
		AttemptNumber: 1,
		Status:        core.AttemptProcessing,
		StartedAt:     core.FormatTime(now),
	}
	if err := store.PutAttempt(ctx, record); err != nil {
		t.Fatalf("PutAttempt: %v", err)
	}

	final := &AttemptFinal{
		Status:           core.AttemptFailed,
		CompletedAt:      now.Add(2 * time.Second),
		ProcessingTimeMs: 2000,
		FailureReason:    "timeout",
		FailureCode:      "provider_timeout",
	}
	if err := store.FinalizeAttempt(ctx, "item-1", "att-1", final); err != nil {
		t.Fatalf("FinalizeAttempt: %v", err)
	}

	attempts, _ := store.ListAttemptsByItem(ctx, "item-1")
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}
	if attempts[0].Status != core.AttemptFailed || attempts[0].ProcessingTimeMs != 2000 {
		t.Errorf("finalized attempt = %+v", attempts[0])
	}

	// A finalized attempt never changes again.
	if err := store.FinalizeAttempt(ctx, "item-1", "att-1", final); !core.IsCode(err, core.ErrCodeConflict) {
		t.Errorf("second FinalizeAttempt returned %v, want conflict", err)
	}
	if err := store.FinalizeAttempt(ctx, "item-1", "missing", final); !core.IsCode(err, core.ErrCodeNotFound) {
		t.Errorf("FinalizeAttempt on missing returned %v, want not_found", err)
	}
}

func TestListAttemptsByRange(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i, offset := range []time.Duration{-2 * time.Hour, -time.Hour, -time.Minute, time.Hour} {
		completed := base.Add(offset)
		a := &core.Attempt{
			ID:          string(rune('a' + i)),
			ItemID:      "item-1",
			RetryType:   core.TypeWebhookDelivery,
			Status:      core.AttemptSuccess,
			StartedAt:   core.FormatTime(completed.Add(-time.Second)),
			CompletedAt: core.FormatTime(completed),
		}
		if err := store.PutAttempt(ctx, AttemptToRecord(a)); err != nil {
			t.Fatalf("PutAttempt: %v", err)
		}
	}

	got, err := store.ListAttemptsByRange(ctx, base.Add(-90*time.Minute), base)
	if err != nil {
		t.Fatalf("ListAttemptsByRange: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d attempts, want 2", len(got))
	}
	if got[0].AttemptID != "b" || got[1].AttemptID != "c" {
		t.Errorf("range = %s, %s; want b, c", got[0].AttemptID, got[1].AttemptID)
	}
}

func TestGetActivePolicy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, p := range core.DefaultPolicies() {
		if err := store.PutPolicy(ctx, PolicyToRecord(p)); err != nil {
			t.Fatalf("PutPolicy: %v", err)
		}
	}
	// An inactive variant must never be returned.
	inactive := &core.Policy{
		RetryType:         core.TypeWebhookDelivery,
		Name:              "slow",
		MaxAttempts:       2,
		BaseDelaySeconds:  600,
		MaxDelaySeconds:   7200,
		BackoffMultiplier: 2.0,
		IsActive:          false,
	}
	if err := store.PutPolicy(ctx, PolicyToRecord(inactive)); err != nil {
		t.Fatalf("PutPolicy: %v", err)
	}

	got, err := store.GetActivePolicy(ctx, core.TypeWebhookDelivery)
	if err != nil {
		t.Fatalf("GetActivePolicy: %v", err)
	}
	if got.Name != "default" || got.MaxAttempts != 8 {
		t.Errorf("active policy = %+v", got)
	}

	if _, err := store.GetActivePolicy(ctx, "unseeded_type"); !core.IsCode(err, core.ErrCodeConfigError) {
		t.Errorf("missing policy returned %v, want config_error", err)
	}

	policies, err := store.ListPolicies(ctx)
	if err != nil {
		t.Fatalf("ListPolicies: %v", err)
	}
	if len(policies) != 5 {
		t.Errorf("ListPolicies = %d, want 5", len(policies))
	}
}
