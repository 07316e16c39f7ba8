// Package handler contains the per-retry-type execution strategies. Each
// handler is a thin adapter over the payment provider client: it converts
// provider outcomes and errors into a structured Result and never lets an
// error escape, so the processor's bookkeeping always runs.
package handler

import (
	"context"
	"fmt"

	"github.com/reservepay/retryd/internal/core"
)

// ProviderClient is the external payment-provider collaborator. Calls
// are expected to be bounded by their own timeouts; any returned error
// is treated the same as a returned-false outcome.
type ProviderClient interface {
	ConfirmPayment(ctx context.Context, paymentID string) (*ProviderResult, error)
	DeliverWebhook(ctx context.Context, paymentID string) (*ProviderResult, error)
	ProcessRefund(ctx context.Context, paymentID string) (*ProviderResult, error)
	ProcessSplitPayment(ctx context.Context, paymentID string) (*ProviderResult, error)
}

// ProviderResult is the provider's answer to a single call.
type ProviderResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	RawResponse   string `json:"raw_response,omitempty"`
}

// Result is the structured outcome of one handler execution.
type Result struct {
	Success          bool
	TransactionID    string
	FailureReason    string
	FailureCode      string
	ProviderResponse string
}

// Handler executes one retry attempt for a claimed queue item.
type Handler interface {
	Execute(ctx context.Context, item *core.QueueItem) Result
}

type providerCall func(ctx context.Context, client ProviderClient, paymentID string) (*ProviderResult, error)

// adapter wraps a single provider call with the catch-everything failure
// conversion shared by all retry types.
type adapter struct {
	client ProviderClient
	call   providerCall
}

func (a *adapter) Execute(ctx context.Context, item *core.QueueItem) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Success:       false,
				FailureReason: fmt.Sprintf("handler panic: %v", r),
				FailureCode:   "handler_panic",
			}
		}
	}()

	pr, err := a.call(ctx, a.client, item.PaymentID)
	if err != nil {
		return Result{
			Success:       false,
			FailureReason: err.Error(),
			FailureCode:   "provider_error",
		}
	}
	if pr == nil {
		return Result{
			Success:       false,
			FailureReason: "provider returned no result",
			FailureCode:   "provider_error",
		}
	}

	res = Result{
		Success:          pr.Success,
		TransactionID:    pr.TransactionID,
		FailureReason:    pr.FailureReason,
		FailureCode:      pr.FailureCode,
		ProviderResponse: pr.RawResponse,
	}
	if !res.Success && res.FailureReason == "" {
		res.FailureReason = "provider declined the operation"
	}
	return res
}

// NewPaymentConfirmationHandler executes payment confirmation retries.
func NewPaymentConfirmationHandler(client ProviderClient) Handler {
	return &adapter{client: client, call: func(ctx context.Context, c ProviderClient, id string) (*ProviderResult, error) {
		return c.ConfirmPayment(ctx, id)
	}}
}

// NewWebhookDeliveryHandler executes webhook delivery retries.
func NewWebhookDeliveryHandler(client ProviderClient) Handler {
	return &adapter{client: client, call: func(ctx context.Context, c ProviderClient, id string) (*ProviderResult, error) {
		return c.DeliverWebhook(ctx, id)
	}}
}

// NewRefundProcessingHandler executes refund retries.
func NewRefundProcessingHandler(client ProviderClient) Handler {
	return &adapter{client: client, call: func(ctx context.Context, c ProviderClient, id string) (*ProviderResult, error) {
		return c.ProcessRefund(ctx, id)
	}}
}

// NewSplitPaymentHandler executes split payment settlement retries.
func NewSplitPaymentHandler(client ProviderClient) Handler {
	return &adapter{client: client, call: func(ctx context.Context, c ProviderClient, id string) (*ProviderResult, error) {
		return c.ProcessSplitPayment(ctx, id)
	}}
}
