package core

// Policy defines how failed operations of one retry type are rescheduled.
// Multiple named policies may exist per type, but exactly one is active
// at a time; the active policy is resolved when an item is created and
// its max_attempts is frozen onto the item.
type Policy struct {
	RetryType         string  `json:"retry_type"`
	Name              string  `json:"name,omitempty"`
	MaxAttempts       int     `json:"max_attempts"`
	BaseDelaySeconds  int     `json:"base_delay_seconds"`
	MaxDelaySeconds   int     `json:"max_delay_seconds"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	JitterFactor      float64 `json:"jitter_factor"`
	IsActive          bool    `json:"is_active"`
	Description       string  `json:"description,omitempty"`
}

// DefaultPolicies returns the built-in active policy for each retry type.
// These are seeded into the store at startup when no policy exists yet.
func DefaultPolicies() []*Policy {
	return []*Policy{
		{
			RetryType:         TypePaymentConfirmation,
			Name:              "default",
			MaxAttempts:       5,
			BaseDelaySeconds:  30,
			MaxDelaySeconds:   1800,
			BackoffMultiplier: 2.0,
			JitterFactor:      0.2,
			IsActive:          true,
			Description:       "Payment confirmation against the provider",
		},
		{
			RetryType:         TypeWebhookDelivery,
			Name:              "default",
			MaxAttempts:       8,
			BaseDelaySeconds:  10,
			MaxDelaySeconds:   3600,
			BackoffMultiplier: 2.0,
			JitterFactor:      0.3,
			IsActive:          true,
			Description:       "Webhook delivery to shop endpoints",
		},
		{
			RetryType:         TypeRefundProcessing,
			Name:              "default",
			MaxAttempts:       5,
			BaseDelaySeconds:  60,
			MaxDelaySeconds:   7200,
			BackoffMultiplier: 2.0,
			JitterFactor:      0.2,
			IsActive:          true,
			Description:       "Refund processing against the provider",
		},
		{
			RetryType:         TypeSplitPayment,
			Name:              "default",
			MaxAttempts:       4,
			BaseDelaySeconds:  30,
			MaxDelaySeconds:   1800,
			BackoffMultiplier: 2.0,
			JitterFactor:      0.2,
			IsActive:          true,
			Description:       "Split payment settlement between shop owners",
		},
	}
}

// Validate checks the policy for values the backoff calculator cannot
// work with.
func (p *Policy) Validate() *RetryError {
	if !IsValidRetryType(p.RetryType) {
		return NewConfigError("unknown retry type: "+p.RetryType, nil)
	}
	if p.MaxAttempts < 1 {
		return NewValidationError("max_attempts must be at least 1", nil)
	}
	if p.BaseDelaySeconds < 1 {
		return NewValidationError("base_delay_seconds must be at least 1", nil)
	}
	if p.MaxDelaySeconds < p.BaseDelaySeconds {
		return NewValidationError("max_delay_seconds must be >= base_delay_seconds", nil)
	}
	if p.BackoffMultiplier < 1 {
		return NewValidationError("backoff_multiplier must be at least 1", nil)
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		return NewValidationError("jitter_factor must be between 0 and 1", nil)
	}
	return nil
}
