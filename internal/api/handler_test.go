package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reservepay/retryd/internal/core"
)

// mockService implements core.Service for testing.
type mockService struct {
	createFunc      func(ctx context.Context, req *core.CreateItemRequest) (*core.QueueItem, error)
	getFunc         func(ctx context.Context, itemID string) (*core.QueueItem, error)
	queueFunc       func(ctx context.Context, userID string, limit, offset int) ([]*core.QueueItem, error)
	historyFunc     func(ctx context.Context, itemID string) ([]*core.Attempt, error)
	cycleFunc       func(ctx context.Context) (*core.CycleResult, error)
	manualRetryFunc func(ctx context.Context, itemID, adminID string) (bool, error)
	analyticsFunc   func(ctx context.Context, from, to time.Time) (*core.AnalyticsResult, error)
	pingFunc        func(ctx context.Context) error
}

func (m *mockService) CreateItem(ctx context.Context, req *core.CreateItemRequest) (*core.QueueItem, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return &core.QueueItem{ID: "test-item-id", PaymentID: req.PaymentID, RetryType: req.RetryType, Status: core.StatusPending}, nil
}
func (m *mockService) GetItem(ctx context.Context, itemID string) (*core.QueueItem, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, itemID)
	}
	return nil, core.NewNotFoundError("retry_item", itemID)
}
func (m *mockService) GetQueueForUser(ctx context.Context, userID string, limit, offset int) ([]*core.QueueItem, error) {
	if m.queueFunc != nil {
		return m.queueFunc(ctx, userID, limit, offset)
	}
	return []*core.QueueItem{}, nil
}
func (m *mockService) GetHistory(ctx context.Context, itemID string) ([]*core.Attempt, error) {
	if m.historyFunc != nil {
		return m.historyFunc(ctx, itemID)
	}
	return []*core.Attempt{}, nil
}
func (m *mockService) RunBatchCycle(ctx context.Context) (*core.CycleResult, error) {
	if m.cycleFunc != nil {
		return m.cycleFunc(ctx)
	}
	return &core.CycleResult{}, nil
}
func (m *mockService) ManualRetry(ctx context.Context, itemID, adminID string) (bool, error) {
	if m.manualRetryFunc != nil {
		return m.manualRetryFunc(ctx, itemID, adminID)
	}
	return true, nil
}
func (m *mockService) Reclaim(ctx context.Context) (int, error) { return 0, nil }
func (m *mockService) GetAnalytics(ctx context.Context, from, to time.Time) (*core.AnalyticsResult, error) {
	if m.analyticsFunc != nil {
		return m.analyticsFunc(ctx, from, to)
	}
	return &core.AnalyticsResult{ByType: map[string]*core.TypeStats{}}, nil
}
func (m *mockService) ListPolicies(ctx context.Context) ([]*core.Policy, error) {
	return core.DefaultPolicies(), nil
}
func (m *mockService) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

func newTestRouter(service core.Service) http.Handler {
	r := chi.NewRouter()
	itemHandler := NewItemHandler(service)
	analyticsHandler := NewAnalyticsHandler(service)
	systemHandler := NewSystemHandler(service)

	r.Get("/retry/v1/health", systemHandler.Health)
	r.Get("/retry/v1/policies", systemHandler.Policies)
	r.Post("/retry/v1/items", itemHandler.Create)
	r.Get("/retry/v1/items", itemHandler.List)
	r.Get("/retry/v1/items/{id}", itemHandler.Get)
	r.Get("/retry/v1/items/{id}/history", itemHandler.History)
	r.Get("/retry/v1/analytics", analyticsHandler.Get)
	r.Post("/retry/v1/items/{id}/retry", itemHandler.ManualRetry)
	r.Post("/retry/v1/cycle", itemHandler.RunCycle)
	return r
}

func TestCreateItem_Created(t *testing.T) {
	router := newTestRouter(&mockService{})

	body, _ := json.Marshal(map[string]string{
		"payment_id": "pay-1",
		"retry_type": core.TypeWebhookDelivery,
	})
	req := httptest.NewRequest(http.MethodPost, "/retry/v1/items", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/retry/v1/items/test-item-id" {
		t.Errorf("Location = %q", loc)
	}

	var resp struct {
		Item *core.QueueItem `json:"item"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Item.PaymentID != "pay-1" || resp.Item.Status != core.StatusPending {
		t.Errorf("item = %+v", resp.Item)
	}
}

func TestCreateItem_BadJSON(t *testing.T) {
	router := newTestRouter(&mockService{})

	req := httptest.NewRequest(http.MethodPost, "/retry/v1/items", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateItem_ServiceErrorMapped(t *testing.T) {
	service := &mockService{
		createFunc: func(ctx context.Context, req *core.CreateItemRequest) (*core.QueueItem, error) {
			return nil, core.NewConfigError("unknown retry type: email_delivery", nil)
		},
	}
	router := newTestRouter(service)

	body, _ := json.Marshal(map[string]string{"payment_id": "pay-1", "retry_type": "email_delivery"})
	req := httptest.NewRequest(http.MethodPost, "/retry/v1/items", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error.Code != core.ErrCodeConfigError {
		t.Errorf("error code = %q", resp.Error.Code)
	}
}

func TestGetItem_NotFound(t *testing.T) {
	router := newTestRouter(&mockService{})

	req := httptest.NewRequest(http.MethodGet, "/retry/v1/items/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetItem_Found(t *testing.T) {
	service := &mockService{
		getFunc: func(ctx context.Context, itemID string) (*core.QueueItem, error) {
			return &core.QueueItem{ID: itemID, Status: core.StatusCompleted}, nil
		},
	}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/retry/v1/items/item-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Item *core.QueueItem `json:"item"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Item.ID != "item-1" {
		t.Errorf("item = %+v", resp.Item)
	}
}

func TestListItems_RequiresUserID(t *testing.T) {
	router := newTestRouter(&mockService{})

	req := httptest.NewRequest(http.MethodGet, "/retry/v1/items", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListItems_PassesPagination(t *testing.T) {
	var gotUser string
	var gotLimit, gotOffset int
	service := &mockService{
		queueFunc: func(ctx context.Context, userID string, limit, offset int) ([]*core.QueueItem, error) {
			gotUser, gotLimit, gotOffset = userID, limit, offset
			return []*core.QueueItem{{ID: "item-1"}}, nil
		},
	}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/retry/v1/items?user_id=user-1&limit=5&offset=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser != "user-1" || gotLimit != 5 || gotOffset != 10 {
		t.Errorf("service called with %s/%d/%d", gotUser, gotLimit, gotOffset)
	}
}

func TestManualRetry_PassesAdminID(t *testing.T) {
	var gotItem, gotAdmin string
	service := &mockService{
		manualRetryFunc: func(ctx context.Context, itemID, adminID string) (bool, error) {
			gotItem, gotAdmin = itemID, adminID
			return true, nil
		},
	}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/retry/v1/items/item-1/retry", nil)
	req.Header.Set("X-Admin-Id", "admin-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if gotItem != "item-1" || gotAdmin != "admin-7" {
		t.Errorf("service called with %s/%s", gotItem, gotAdmin)
	}

	var resp struct {
		ItemID  string `json:"item_id"`
		Success bool   `json:"success"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ItemID != "item-1" || !resp.Success {
		t.Errorf("response = %+v", resp)
	}
}

func TestManualRetry_InvalidStateIsConflict(t *testing.T) {
	service := &mockService{
		manualRetryFunc: func(ctx context.Context, itemID, adminID string) (bool, error) {
			return false, core.NewInvalidStateError(itemID, core.StatusProcessing)
		},
	}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/retry/v1/items/item-1/retry", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRunCycle(t *testing.T) {
	service := &mockService{
		cycleFunc: func(ctx context.Context) (*core.CycleResult, error) {
			return &core.CycleResult{Processed: 3, Successful: 2, Failed: 1}, nil
		},
	}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/retry/v1/cycle", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Cycle *core.CycleResult `json:"cycle"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Cycle.Processed != 3 || resp.Cycle.Successful != 2 || resp.Cycle.Failed != 1 {
		t.Errorf("cycle = %+v", resp.Cycle)
	}
}

func TestAnalytics_WindowPassedThrough(t *testing.T) {
	var gotFrom, gotTo time.Time
	service := &mockService{
		analyticsFunc: func(ctx context.Context, from, to time.Time) (*core.AnalyticsResult, error) {
			gotFrom, gotTo = from, to
			return &core.AnalyticsResult{SuccessRate: 70, TotalRetries: 10, ByType: map[string]*core.TypeStats{}}, nil
		},
	}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/retry/v1/analytics?from=2026-03-01T00:00:00.000Z&to=2026-03-02T00:00:00.000Z", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if !gotFrom.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v", gotFrom)
	}
	if !gotTo.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("to = %v", gotTo)
	}

	var resp struct {
		Analytics *core.AnalyticsResult `json:"analytics"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Analytics.SuccessRate != 70 {
		t.Errorf("analytics = %+v", resp.Analytics)
	}
}

func TestAnalytics_InvalidWindow(t *testing.T) {
	router := newTestRouter(&mockService{})

	tests := []struct {
		name string
		url  string
	}{
		{"bad from", "/retry/v1/analytics?from=yesterday"},
		{"bad to", "/retry/v1/analytics?to=nope"},
		{"to before from", "/retry/v1/analytics?from=2026-03-02T00:00:00.000Z&to=2026-03-01T00:00:00.000Z"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.url, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&mockService{})

	req := httptest.NewRequest(http.MethodGet, "/retry/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Errorf("health response = %v", resp)
	}
}

func TestHealth_StoreDown(t *testing.T) {
	service := &mockService{
		pingFunc: func(ctx context.Context) error {
			return core.NewInternalError("dynamodb unreachable")
		},
	}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/retry/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestPolicies(t *testing.T) {
	router := newTestRouter(&mockService{})

	req := httptest.NewRequest(http.MethodGet, "/retry/v1/policies", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Policies []*core.Policy `json:"policies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Policies) != len(core.RetryTypes) {
		t.Errorf("policies = %d, want %d", len(resp.Policies), len(core.RetryTypes))
	}
}
