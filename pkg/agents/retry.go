// Copyright 2026 MadSpark Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agents

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/types"
)

// RetryConfig controls exponential backoff around agent calls.
type RetryConfig struct {
	// MaxAttempts is the total attempt count, default 3.
	MaxAttempts int
	// BaseDelay is the first backoff, default 500ms.
	BaseDelay time.Duration
	// Factor multiplies the delay each attempt, default 2.0.
	Factor float64
	// Jitter is the random fraction applied to each delay, default 0.2.
	Jitter float64
}

// DefaultRetryConfig returns the standard 3-attempt backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Factor:      2.0,
		Jitter:      0.2,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.Factor <= 0 {
		c.Factor = 2.0
	}
	if c.Jitter < 0 {
		c.Jitter = 0.2
	}
	return c
}

// CallWithRetry runs fn with exponential backoff on transient failures.
// Validation, schema, and batch-shape errors propagate immediately, as does
// context cancellation.
func CallWithRetry[T any](ctx context.Context, cfg RetryConfig, logger *zap.Logger, name string, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	var zero T
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryableError(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := jittered(delay, cfg.Jitter)
		logger.Warn("agent call failed, retrying",
			zap.String("call", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
		delay = time.Duration(float64(delay) * cfg.Factor)
	}
	return zero, lastErr
}

// retryableError reports whether a retry could plausibly succeed.
func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var cfgErr *types.ConfigError
	if errors.As(err, &cfgErr) {
		return false
	}
	var schemaErr *types.SchemaValidationError
	if errors.As(err, &schemaErr) {
		return false
	}
	var mismatch *types.BatchLengthMismatchError
	if errors.As(err, &mismatch) {
		return false
	}
	return true
}

func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * jitter
	return time.Duration(float64(d) * (1 + spread))
}
