package heartbeat

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestVerdictMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{TimeoutError{Since: 250 * time.Millisecond}, "no accepted beat for 250ms"},
		{WindowError{Min: 90 * time.Millisecond, Max: 110 * time.Millisecond, Actual: 150 * time.Millisecond},
			"beat spacing 150ms outside window [90ms, 110ms]"},
		{OutOfOrderError{Expected: Rising, Actual: Falling}, "expected RISING edge, got FALLING"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestVerdictsMatchWithErrorsAs(t *testing.T) {
	var timeout TimeoutError
	err := fmt.Errorf("supervising: %w", TimeoutError{Since: time.Second})
	if !errors.As(err, &timeout) {
		t.Fatal("wrapped timeout verdict should match with errors.As")
	}
	if timeout.Since != time.Second {
		t.Errorf("expected Since=1s, got %v", timeout.Since)
	}

	var window WindowError
	if errors.As(err, &window) {
		t.Error("timeout verdict should not match as a window verdict")
	}
}

func TestIsVerdict(t *testing.T) {
	verdicts := []error{
		TimeoutError{Since: time.Second},
		WindowError{Min: 1, Max: 2, Actual: 3},
		OutOfOrderError{Expected: Rising, Actual: Falling},
		fmt.Errorf("wrapped: %w", TimeoutError{}),
	}
	for _, err := range verdicts {
		if !IsVerdict(err) {
			t.Errorf("IsVerdict(%v) = false, want true", err)
		}
	}

	if IsVerdict(nil) {
		t.Error("IsVerdict(nil) = true, want false")
	}
	if IsVerdict(errors.New("socket closed")) {
		t.Error("IsVerdict should not match transport errors")
	}
}
