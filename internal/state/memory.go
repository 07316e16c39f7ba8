package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reservepay/retryd/internal/core"
)

// MemoryStore is an in-process Store used for tests and local
// development. It enforces the same compare-and-swap claim/settle
// semantics as the DynamoDB store, guarded by a single mutex.
type MemoryStore struct {
	mu            sync.Mutex
	items         map[string]*ItemRecord
	attempts      map[string][]*AttemptRecord // item ID -> attempts in creation order
	policies      map[string][]*PolicyRecord  // retry type -> named policies
	notifications []*NotificationRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]*ItemRecord),
		attempts: make(map[string][]*AttemptRecord),
		policies: make(map[string][]*PolicyRecord),
	}
}

func (s *MemoryStore) PutItem(ctx context.Context, record *ItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	s.items[record.ID] = &cp
	return nil
}

func (s *MemoryStore) GetItem(ctx context.Context, itemID string) (*ItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.items[itemID]
	if !ok {
		return nil, core.NewNotFoundError("retry_item", itemID)
	}
	cp := *record
	return &cp, nil
}

func (s *MemoryStore) ClaimDueItems(ctx context.Context, limit int, now, deadline time.Time) ([]*ItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	due := make([]*ItemRecord, 0)
	for _, record := range s.items {
		if record.Status == core.StatusPending && record.GSI1SK <= nowMs {
			due = append(due, record)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].GSI1SK < due[j].GSI1SK })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*ItemRecord, 0, len(due))
	for _, record := range due {
		s.claimLocked(record, now, deadline)
		cp := *record
		claimed = append(claimed, &cp)
	}

	return claimed, nil
}

func (s *MemoryStore) ClaimItem(ctx context.Context, itemID string, now, deadline time.Time) (*ItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.items[itemID]
	if !ok {
		return nil, core.NewNotFoundError("retry_item", itemID)
	}
	if !core.IsManuallyRetryable(record.Status) {
		return nil, core.NewInvalidStateError(itemID, record.Status)
	}

	record.NextRetryAt = core.FormatTime(now)
	s.claimLocked(record, now, deadline)
	cp := *record
	return &cp, nil
}

func (s *MemoryStore) claimLocked(record *ItemRecord, now, deadline time.Time) {
	record.Status = core.StatusProcessing
	record.ClaimDeadline = core.FormatTime(deadline)
	record.LastAttemptAt = core.FormatTime(now)
	record.GSI1PK = "STATUS#" + core.StatusProcessing
	record.GSI1SK = deadline.UnixMilli()
}

func (s *MemoryStore) SettleSuccess(ctx context.Context, itemID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.items[itemID]
	if !ok {
		return core.NewNotFoundError("retry_item", itemID)
	}
	if record.Status != core.StatusProcessing {
		return core.NewConflictError("item is not processing", map[string]any{"item_id": itemID})
	}

	record.Status = core.StatusCompleted
	record.SuccessCount++
	record.LastAttemptAt = core.FormatTime(now)
	record.ClaimDeadline = ""
	record.GSI1PK = "STATUS#" + core.StatusCompleted
	record.GSI1SK = 0
	return nil
}

func (s *MemoryStore) SettleRetry(ctx context.Context, itemID string, nextAttempt int, delay time.Duration, reason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.items[itemID]
	if !ok {
		return false, core.NewNotFoundError("retry_item", itemID)
	}
	if record.Status != core.StatusProcessing {
		return false, core.NewConflictError("item is not processing", map[string]any{"item_id": itemID})
	}

	if nextAttempt > record.MaxAttempts {
		record.Status = core.StatusFailed
		record.LastFailureReason = "Max retry attempts reached"
		record.ClaimDeadline = ""
		record.GSI1PK = "STATUS#" + core.StatusFailed
		record.GSI1SK = 0
		return true, nil
	}

	nextRetryAt := now.Add(delay)
	record.Status = core.StatusPending
	record.AttemptNumber = nextAttempt
	record.RetryCount++
	record.NextRetryAt = core.FormatTime(nextRetryAt)
	record.LastFailureReason = reason
	record.ClaimDeadline = ""
	record.GSI1PK = "STATUS#" + core.StatusPending
	record.GSI1SK = nextRetryAt.UnixMilli()
	return false, nil
}

func (s *MemoryStore) ReclaimStuck(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	reclaimed := 0
	for _, record := range s.items {
		if record.Status != core.StatusProcessing || record.GSI1SK > nowMs {
			continue
		}
		dueMs := timeMillis(record.NextRetryAt)
		if dueMs == 0 {
			dueMs = nowMs
		}
		record.Status = core.StatusPending
		record.ClaimDeadline = ""
		record.GSI1PK = "STATUS#" + core.StatusPending
		record.GSI1SK = dueMs
		reclaimed++
	}

	return reclaimed, nil
}

func (s *MemoryStore) ListItemsByUser(ctx context.Context, userID string, limit, offset int) ([]*ItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*ItemRecord, 0)
	for _, record := range s.items {
		if record.UserID == userID {
			cp := *record
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt > matched[j].CreatedAt })

	if offset >= len(matched) {
		return []*ItemRecord{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) CountDueItems(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	count := 0
	for _, record := range s.items {
		if record.Status == core.StatusPending && record.GSI1SK <= nowMs {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) PutAttempt(ctx context.Context, record *AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	s.attempts[record.ItemID] = append(s.attempts[record.ItemID], &cp)
	return nil
}

func (s *MemoryStore) FinalizeAttempt(ctx context.Context, itemID, attemptID string, final *AttemptFinal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.attempts[itemID] {
		if record.AttemptID != attemptID {
			continue
		}
		if record.Status != core.AttemptProcessing {
			return core.NewConflictError("attempt already finalized", map[string]any{"attempt_id": attemptID})
		}
		record.Status = final.Status
		record.CompletedAt = core.FormatTime(final.CompletedAt)
		record.ProcessingTimeMs = final.ProcessingTimeMs
		record.FailureReason = final.FailureReason
		record.FailureCode = final.FailureCode
		record.ProviderResponse = final.ProviderResponse
		record.GSI3PK = "ATTEMPT"
		record.GSI3SK = final.CompletedAt.UnixMilli()
		return nil
	}

	return core.NewNotFoundError("attempt", attemptID)
}

func (s *MemoryStore) ListAttemptsByItem(ctx context.Context, itemID string) ([]*AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*AttemptRecord, 0, len(s.attempts[itemID]))
	for _, record := range s.attempts[itemID] {
		cp := *record
		records = append(records, &cp)
	}
	return records, nil
}

func (s *MemoryStore) ListAttemptsByRange(ctx context.Context, from, to time.Time) ([]*AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromMs, toMs := from.UnixMilli(), to.UnixMilli()
	records := make([]*AttemptRecord, 0)
	for _, itemAttempts := range s.attempts {
		for _, record := range itemAttempts {
			if record.GSI3PK == "ATTEMPT" && record.GSI3SK >= fromMs && record.GSI3SK <= toMs {
				cp := *record
				records = append(records, &cp)
			}
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].GSI3SK < records[j].GSI3SK })
	return records, nil
}

func (s *MemoryStore) PutPolicy(ctx context.Context, record *PolicyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	existing := s.policies[record.RetryType]
	for i, p := range existing {
		if p.Name == record.Name {
			existing[i] = &cp
			return nil
		}
	}
	s.policies[record.RetryType] = append(existing, &cp)
	return nil
}

func (s *MemoryStore) GetActivePolicy(ctx context.Context, retryType string) (*PolicyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.policies[retryType] {
		if record.IsActive {
			cp := *record
			return &cp, nil
		}
	}
	return nil, core.NewConfigError("no active retry policy for type: "+retryType, map[string]any{
		"retry_type": retryType,
	})
}

func (s *MemoryStore) ListPolicies(ctx context.Context) ([]*PolicyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*PolicyRecord, 0)
	for _, typed := range s.policies {
		for _, record := range typed {
			cp := *record
			records = append(records, &cp)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].PK+records[i].SK < records[j].PK+records[j].SK })
	return records, nil
}

func (s *MemoryStore) PutNotification(ctx context.Context, record *NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	s.notifications = append(s.notifications, &cp)
	return nil
}

// Notifications returns a snapshot of stored notifications (test helper).
func (s *MemoryStore) Notifications() []*NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*NotificationRecord, 0, len(s.notifications))
	for _, record := range s.notifications {
		cp := *record
		out = append(out, &cp)
	}
	return out
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
