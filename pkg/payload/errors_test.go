package payload

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{name: "client error should not retry", errorClass: ErrorClassClient, expected: false},
		{name: "server error should retry", errorClass: ErrorClassServer, expected: true},
		{name: "network error should retry", errorClass: ErrorClassNetwork, expected: true},
		{name: "empty error class should not retry", errorClass: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shouldRetry(tt.errorClass))
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	withCause := &APIError{StatusCode: 0, Class: ErrorClassNetwork, Message: "request failed", Err: errors.New("connection refused")}
	assert.Equal(t, "payload network error (status 0): request failed: connection refused", withCause.Error())

	plain := &APIError{StatusCode: 502, Class: ErrorClassServer, Message: "502 Bad Gateway"}
	assert.Equal(t, "payload server error (status 502): 502 Bad Gateway", plain.Error())
}

func TestAPIError_Is(t *testing.T) {
	notFound := fmt.Errorf("fetch: %w", &APIError{StatusCode: 404, Class: ErrorClassClient})
	assert.ErrorIs(t, notFound, ErrNotFound)

	forbidden := &APIError{StatusCode: 403, Class: ErrorClassClient}
	assert.NotErrorIs(t, forbidden, ErrNotFound)
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, ErrorClassClient, classifyStatus(404))
	assert.Equal(t, ErrorClassServer, classifyStatus(503))
	assert.Equal(t, ErrorClass(""), classifyStatus(200))
}

func TestRetryWithBackoff(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2}
	logger := zerolog.Nop()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), cfg, logger, func() error {
			calls++
			if calls < 3 {
				return &APIError{StatusCode: 503, Class: ErrorClassServer}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), cfg, logger, func() error {
			calls++
			return &APIError{StatusCode: 400, Class: ErrorClassClient}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("does not retry unclassified errors", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), cfg, logger, func() error {
			calls++
			return errors.New("decode failed")
		})
		assert.EqualError(t, err, "decode failed")
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), cfg, logger, func() error {
			calls++
			return &APIError{Class: ErrorClassNetwork, Message: "request failed"}
		})
		assert.ErrorIs(t, err, ErrRetryExhausted)
		assert.Equal(t, 4, calls)

		var apiErr *APIError
		assert.ErrorAs(t, err, &apiErr)
	})
}
