package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Decide(t *testing.T) {
	var policy RetryPolicy

	tests := []struct {
		name     string
		attempts int
		max      int
		expected Status
	}{
		{"first of three", 1, 3, StatusPending},
		{"second of three", 2, 3, StatusPending},
		{"last of three", 3, 3, StatusFailed},
		{"single attempt", 1, 1, StatusFailed},
		{"over the ceiling", 4, 3, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &Item{Attempts: tt.attempts, MaxAttempts: tt.max}
			assert.Equal(t, tt.expected, policy.Decide(item))
		})
	}
}
