// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// ⚙️ Config controls how an operation is retried
type Config struct {
	MaxAttempts int               // Total attempts including the first one
	BaseDelay   time.Duration     // Delay before the second attempt
	Multiplier  float64           // Backoff multiplier applied per attempt
	MaxDelay    time.Duration     // Upper bound for any single delay
	ShouldRetry func(error) bool  // Classifies an error as retryable; nil means never retry
}

// 🏭 DefaultConfig returns a conservative retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Second,
	}
}

// Delay returns the backoff delay applied after the given 1-based attempt.
// The delay grows as BaseDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := c.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(c.BaseDelay) * math.Pow(mult, float64(attempt-1)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// ❌ ExhaustedError wraps the last error once all attempts are spent
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// 🏃 Do runs op with retry/backoff according to cfg. Non-retryable errors
// propagate immediately; retryable errors are retried until MaxAttempts is
// reached, then returned wrapped in an ExhaustedError. One log event is
// emitted per failed attempt so callers do not need to log the same detail.
func Do(ctx context.Context, cfg Config, name string, op func(ctx context.Context) error) (int, error) {
	_, attempts, err := DoValue(ctx, cfg, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return attempts, err
}

// 🏃 DoValue is Do for operations that return a value alongside the error.
// It reports the number of attempts actually made.
func DoValue[T any](ctx context.Context, cfg Config, name string, op func(ctx context.Context) (T, error)) (T, int, error) {
	logger := zerolog.Ctx(ctx)

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug().
					Str("op", name).
					Int("attempt", attempt).
					Msg("operation succeeded after retry")
			}
			return v, attempt, nil
		}
		lastErr = err

		if cfg.ShouldRetry == nil || !cfg.ShouldRetry(err) {
			logger.Debug().
				Str("op", name).
				Int("attempt", attempt).
				Err(err).
				Msg("operation failed with non-retryable error")
			return zero, attempt, errors.Errorf("%s: %w", name, err)
		}

		if attempt == maxAttempts {
			break
		}

		delay := cfg.Delay(attempt)
		logger.Warn().
			Str("op", name).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("delay", delay).
			Err(err).
			Msg("operation failed, retrying")

		select {
		case <-ctx.Done():
			return zero, attempt, errors.Errorf("%s: canceled while waiting to retry: %w", name, ctx.Err())
		case <-time.After(delay):
		}
	}

	logger.Error().
		Str("op", name).
		Int("attempts", maxAttempts).
		Err(lastErr).
		Msg("operation failed, retries exhausted")

	return zero, maxAttempts, &ExhaustedError{Op: name, Attempts: maxAttempts, Last: lastErr}
}
