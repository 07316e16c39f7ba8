package core

import (
	"math"
	"math/rand"
	"time"
)

// ComputeDelay computes the delay before the given attempt based on the
// retry policy. attempt is the ordinal of the *next* attempt (already
// incremented by the caller).
//
// The raw delay grows exponentially (base * multiplier^(attempt-1)) and
// is capped at the policy's max delay. Symmetric jitter of up to
// +/- jitter_factor/2 of the raw delay is applied so that items that
// failed at the same moment do not hammer the provider in lockstep. The
// result is always between 1 second and the policy's max delay.
func ComputeDelay(policy *Policy, attempt int) time.Duration {
	return computeDelay(policy, attempt, rand.Float64)
}

// computeDelay is the rand-injectable implementation backing
// ComputeDelay; tests pass a fixed randFn to pin the jitter.
func computeDelay(policy *Policy, attempt int, randFn func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := float64(policy.BaseDelaySeconds)
	if base < 1 {
		base = 1
	}
	multiplier := policy.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 2.0
	}
	maxDelay := float64(policy.MaxDelaySeconds)
	if maxDelay < base {
		maxDelay = base
	}

	raw := base * math.Pow(multiplier, float64(attempt-1))
	if raw > maxDelay {
		raw = maxDelay
	}

	jitter := 0.0
	if policy.JitterFactor > 0 {
		jitter = raw * policy.JitterFactor * (randFn() - 0.5)
	}

	seconds := math.Floor(raw + jitter)
	if seconds < 1 {
		seconds = 1
	}
	if seconds > maxDelay {
		seconds = maxDelay
	}

	return time.Duration(seconds) * time.Second
}
