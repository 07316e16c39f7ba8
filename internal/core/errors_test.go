package core

import (
	"errors"
	"testing"
	"time"
)

func TestRetryErrorCodes(t *testing.T) {
	tests := []struct {
		err       *RetryError
		code      string
		retryable bool
	}{
		{NewInvalidRequestError("bad", nil), ErrCodeInvalidRequest, false},
		{NewValidationError("bad", nil), ErrCodeValidationError, false},
		{NewNotFoundError("retry_item", "x"), ErrCodeNotFound, false},
		{NewInvalidStateError("x", StatusCompleted), ErrCodeInvalidState, false},
		{NewConflictError("lost cas", nil), ErrCodeConflict, true},
		{NewConfigError("no policy", nil), ErrCodeConfigError, false},
		{NewInternalError("boom"), ErrCodeInternalError, true},
	}

	for _, tt := range tests {
		if tt.err.Code != tt.code {
			t.Errorf("code = %q, want %q", tt.err.Code, tt.code)
		}
		if tt.err.Retryable != tt.retryable {
			t.Errorf("%s: retryable = %v, want %v", tt.code, tt.err.Retryable, tt.retryable)
		}
		if tt.err.Error() == "" {
			t.Errorf("%s: empty error string", tt.code)
		}
	}
}

func TestIsCode(t *testing.T) {
	err := NewConflictError("lost cas", nil)
	if !IsCode(err, ErrCodeConflict) {
		t.Error("IsCode missed matching code")
	}
	if IsCode(err, ErrCodeNotFound) {
		t.Error("IsCode matched wrong code")
	}
	if IsCode(errors.New("plain"), ErrCodeConflict) {
		t.Error("IsCode matched a non-RetryError")
	}
	if IsCode(nil, ErrCodeConflict) {
		t.Error("IsCode matched nil")
	}
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 45, 123_000_000, time.UTC)

	formatted := FormatTime(ts)
	if formatted != "2026-03-01T12:30:45.123Z" {
		t.Errorf("FormatTime = %q", formatted)
	}

	parsed, err := ParseTime(formatted)
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !parsed.Equal(ts) {
		t.Errorf("round trip changed time: %v != %v", parsed, ts)
	}

	if _, err := ParseTime("not a timestamp"); err == nil {
		t.Error("ParseTime accepted garbage")
	}
}
