package handler

import (
	"github.com/reservepay/retryd/internal/core"
)

// Registry maps retry types to their execution handlers. It is built
// once at startup; an unknown retry type is a configuration error, not
// a per-item runtime condition.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry covering every known retry type from
// the given provider client.
func NewRegistry(client ProviderClient) (*Registry, error) {
	r := &Registry{handlers: map[string]Handler{
		core.TypePaymentConfirmation: NewPaymentConfirmationHandler(client),
		core.TypeWebhookDelivery:     NewWebhookDeliveryHandler(client),
		core.TypeRefundProcessing:    NewRefundProcessingHandler(client),
		core.TypeSplitPayment:        NewSplitPaymentHandler(client),
	}}
	return r, r.validate()
}

// NewRegistryFromMap builds a registry from an explicit handler map.
// New retry types are added by registration here, not by editing a
// dispatch switch.
func NewRegistryFromMap(handlers map[string]Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for t, h := range handlers {
		r.handlers[t] = h
	}
	return r, r.validate()
}

func (r *Registry) validate() error {
	for _, t := range core.RetryTypes {
		if r.handlers[t] == nil {
			return core.NewConfigError("no handler registered for retry type: "+t, map[string]any{
				"retry_type": t,
			})
		}
	}
	return nil
}

// Handler returns the handler for a retry type.
func (r *Registry) Handler(retryType string) (Handler, bool) {
	h, ok := r.handlers[retryType]
	return h, ok
}
