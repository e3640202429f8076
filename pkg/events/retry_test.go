package events

import (
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_NextRetryDelay(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      time.Second,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
	})

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := policy.NextRetryDelay(tt.attempts); got != tt.want {
			t.Errorf("NextRetryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{MaxAttempts: 2})
	err := errors.New("failed")

	if !policy.ShouldRetry(1, err) {
		t.Error("expected retry after first failure")
	}
	if policy.ShouldRetry(2, err) {
		t.Error("expected no retry at max attempts")
	}
	if policy.ShouldRetry(1, nil) {
		t.Error("expected no retry without error")
	}
}

func TestNewRetryPolicy_Defaults(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{})
	if policy.config != DefaultRetryConfig() {
		t.Errorf("expected defaults, got %+v", policy.config)
	}
}
