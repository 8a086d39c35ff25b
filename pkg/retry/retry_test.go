package retry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

func testCtx(t *testing.T) context.Context {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return logger.WithContext(context.Background())
}

func TestDelay(t *testing.T) {
	cfg := Config{
		BaseDelay:  100 * time.Millisecond,
		Multiplier: 2.0,
		MaxDelay:   time.Second,
	}

	assert.Equal(t, 100*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Delay(2))
	assert.Equal(t, 400*time.Millisecond, cfg.Delay(3))
	assert.Equal(t, 800*time.Millisecond, cfg.Delay(4))

	// Capped at MaxDelay
	assert.Equal(t, time.Second, cfg.Delay(5))
	assert.Equal(t, time.Second, cfg.Delay(10))
}

func TestDo(t *testing.T) {
	tests := []struct {
		name         string
		failures     int  // number of transient failures before success
		fatal        bool // fail with a non-retryable error
		maxAttempts  int
		wantAttempts int
		wantErr      bool
		wantExhaust  bool
	}{
		{
			name:         "first_attempt_succeeds",
			failures:     0,
			maxAttempts:  3,
			wantAttempts: 1,
		},
		{
			name:         "two_timeouts_then_success",
			failures:     2,
			maxAttempts:  3,
			wantAttempts: 3,
		},
		{
			name:         "retries_exhausted",
			failures:     5,
			maxAttempts:  3,
			wantAttempts: 3,
			wantErr:      true,
			wantExhaust:  true,
		},
		{
			name:         "fatal_error_not_retried",
			fatal:        true,
			maxAttempts:  3,
			wantAttempts: 1,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				MaxAttempts: tt.maxAttempts,
				BaseDelay:   time.Millisecond,
				Multiplier:  2.0,
				ShouldRetry: func(err error) bool { return errors.Is(err, errTransient) },
			}

			calls := 0
			attempts, err := Do(testCtx(t), cfg, "test_op", func(ctx context.Context) error {
				calls++
				if tt.fatal {
					return errFatal
				}
				if calls <= tt.failures {
					return errTransient
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Equal(t, tt.wantAttempts, calls)

			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)

			var exhausted *ExhaustedError
			if tt.wantExhaust {
				require.ErrorAs(t, err, &exhausted)
				assert.Equal(t, tt.maxAttempts, exhausted.Attempts)
				assert.ErrorIs(t, err, errTransient)
			} else {
				assert.ErrorIs(t, err, errFatal)
			}
		})
	}
}

func TestDoValue(t *testing.T) {
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		ShouldRetry: func(err error) bool { return true },
	}

	calls := 0
	v, attempts, err := DoValue(testCtx(t), cfg, "fetch", func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errTransient
		}
		return "payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
	assert.Equal(t, 2, attempts)
}

func TestDoContextCanceledDuringBackoff(t *testing.T) {
	cfg := Config{
		MaxAttempts: 5,
		BaseDelay:   time.Hour, // never actually waited out
		ShouldRetry: func(err error) bool { return true },
	}

	ctx, cancel := context.WithCancel(testCtx(t))
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, cfg, "slow_op", func(ctx context.Context) error {
		calls++
		return errTransient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
