package index

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	logger := slog.Default()

	t.Run("first attempt succeeds", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), logger, func() error {
			attempts++
			return nil
		}, 3, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("eventual success", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), logger, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("badger conflict")
			}
			return nil
		}, 5, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns last error", func(t *testing.T) {
		attempts := 0
		persistent := errors.New("disk full")
		err := retryWithBackoff(context.Background(), logger, func() error {
			attempts++
			return persistent
		}, 3, time.Millisecond)
		assert.Equal(t, persistent, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("cancellation stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		err := retryWithBackoff(ctx, logger, func() error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("badger conflict")
		}, 10, time.Millisecond)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, attempts)
	})

	t.Run("delays grow", func(t *testing.T) {
		var delays []time.Duration
		last := time.Now()
		attempts := 0
		err := retryWithBackoff(context.Background(), logger, func() error {
			attempts++
			if attempts > 1 {
				delays = append(delays, time.Since(last))
			}
			last = time.Now()
			if attempts < 4 {
				return errors.New("badger conflict")
			}
			return nil
		}, 5, 10*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, delays, 3)
		assert.Greater(t, delays[2], delays[0])
	})

	for _, n := range []int{0, -1} {
		attempts := 0
		err := retryWithBackoff(context.Background(), logger, func() error {
			attempts++
			return nil
		}, n, time.Millisecond)
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Zero(t, attempts)
	}
}
