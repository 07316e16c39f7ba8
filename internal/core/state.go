package core

// Queue item statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// validTransitions defines the allowed status transitions for a queue
// item. Only pending <-> processing is reversible; completed is terminal
// and failed can only be re-entered via a manual retry claim.
var validTransitions = map[string][]string{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusPending, StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {StatusProcessing}, // manual retry only
}

// IsValidTransition checks if a status transition is allowed.
func IsValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus returns true if the scheduler will never act on the
// item again on its own. Failed items stay eligible for manual retry.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// IsManuallyRetryable returns true if an operator may claim the item for
// an immediate retry.
func IsManuallyRetryable(status string) bool {
	return status == StatusPending || status == StatusFailed
}
