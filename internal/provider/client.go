// Package provider implements the HTTP client for the payment service's
// internal provider API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reservepay/retryd/internal/handler"
)

// Client calls the payment service's internal endpoints. Each call is
// bounded by the configured timeout so a stuck provider cannot hold an
// item in processing past its reclaim deadline.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a provider client for the given base URL.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) ConfirmPayment(ctx context.Context, paymentID string) (*handler.ProviderResult, error) {
	return c.post(ctx, "/internal/v1/payments/"+paymentID+"/confirm")
}

func (c *Client) DeliverWebhook(ctx context.Context, paymentID string) (*handler.ProviderResult, error) {
	return c.post(ctx, "/internal/v1/payments/"+paymentID+"/webhook")
}

func (c *Client) ProcessRefund(ctx context.Context, paymentID string) (*handler.ProviderResult, error) {
	return c.post(ctx, "/internal/v1/payments/"+paymentID+"/refund")
}

func (c *Client) ProcessSplitPayment(ctx context.Context, paymentID string) (*handler.ProviderResult, error) {
	return c.post(ctx, "/internal/v1/payments/"+paymentID+"/split")
}

func (c *Client) post(ctx context.Context, path string) (*handler.ProviderResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	var result handler.ProviderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode provider response (status %d): %w", resp.StatusCode, err)
	}
	result.RawResponse = string(body)

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		result.Success = false
		if result.FailureReason == "" {
			result.FailureReason = fmt.Sprintf("provider returned status %d", resp.StatusCode)
		}
		if result.FailureCode == "" {
			result.FailureCode = "provider_rejected"
		}
	}

	return &result, nil
}
