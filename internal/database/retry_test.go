package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		maxRetries: 3,
		baseDelay:  time.Millisecond,
		maxDelay:   5 * time.Millisecond,
		multiplier: 2,
	}
}

func TestRetry_SucceedsAfterConnectionErrors(t *testing.T) {
	attempts := 0
	err := fastRetryer().Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnApplicationError(t *testing.T) {
	attempts := 0
	err := fastRetryer().Retry(context.Background(), func() error {
		attempts++
		return errors.New("authentication failed")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestRetry_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastRetryer().Retry(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelay_CapsAtMax(t *testing.T) {
	r := fastRetryer()
	assert.Equal(t, time.Millisecond, r.calculateDelay(0))
	assert.Equal(t, 5*time.Millisecond, r.calculateDelay(10))
}

func TestRedactDBURL(t *testing.T) {
	assert.Equal(t, "ws://root:xxxxx@localhost:8000/rpc", redactDBURL("ws://root:secret@localhost:8000/rpc"))
	assert.Equal(t, "invalid-url", redactDBURL("://bad"))
}
