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

package batch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/types"
)

// BatchFn runs one batched call over all items, returning the per-item
// results and the call's token count.
type BatchFn[T any] func(ctx context.Context) ([]T, int, error)

// PerItemFn runs the degraded single-item call for item i.
type PerItemFn[T any] func(ctx context.Context, i int) (T, int, error)

// PlaceholderFn builds the substitute result for item i when even the
// per-item call failed. Implementations tag the result with the error and
// an "N/A (…)" formatted field.
type PlaceholderFn[T any] func(i int, err error) T

// WithFallback runs a batched call and degrades to per-item calls when the
// batch fails or returns the wrong number of results. inputs holds the
// per-item input texts; it sets the expected result count and lets the
// monitor estimate tokens for zero-usage providers. The returned slice
// always has exactly len(inputs) entries, each either a real result or a
// placeholder, so callers can address results by index unconditionally.
func WithFallback[T any](
	ctx context.Context,
	m *Monitor,
	logger *zap.Logger,
	batchType string,
	inputs []string,
	batchFn BatchFn[T],
	perItemFn PerItemFn[T],
	placeholderFn PlaceholderFn[T],
) []T {
	if logger == nil {
		logger = zap.NewNop()
	}
	items := len(inputs)
	estimateText := strings.Join(inputs, "\n")

	span := m.StartBatchCall(batchType, items)
	results, tokens, err := batchFn(ctx)
	if err == nil && len(results) != items {
		err = &types.BatchLengthMismatchError{Function: batchType, Want: items, Got: len(results)}
	}
	if err == nil {
		m.EndBatchCall(span, EndOptions{Success: true, TokensUsed: tokens, EstimateText: estimateText})
		return results
	}

	m.EndBatchCall(span, EndOptions{
		Success:      false,
		TokensUsed:   tokens,
		ErrorMessage: err.Error(),
		FallbackUsed: true,
	})
	logger.Warn("[DEGRADED MODE] batch call failed, falling back to per-item calls",
		zap.String("batch_type", batchType),
		zap.Int("items", items),
		zap.Error(err))

	fallbackSpan := m.StartBatchCall(batchType+"_fallback", items)
	out := make([]T, items)
	fallbackTokens := 0
	failures := 0
	for i := 0; i < items; i++ {
		result, tokens, itemErr := callSafely(ctx, perItemFn, i)
		if itemErr != nil {
			failures++
			logger.Warn("[DEGRADED MODE] per-item call failed, substituting placeholder",
				zap.String("batch_type", batchType),
				zap.Int("item", i),
				zap.Error(itemErr))
			out[i] = placeholderFn(i, itemErr)
			continue
		}
		fallbackTokens += tokens
		out[i] = result
	}

	m.EndBatchCall(fallbackSpan, EndOptions{
		Success:      failures < items,
		TokensUsed:   fallbackTokens,
		ErrorMessage: fallbackError(failures, items),
		EstimateText: estimateText,
	})
	return out
}

// callSafely shields the fallback loop from panics in a per-item call; a
// panicking item degrades to a placeholder instead of killing the batch.
func callSafely[T any](ctx context.Context, fn PerItemFn[T], i int) (result T, tokens int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("per-item call panicked: %v", r)
		}
	}()
	return fn(ctx, i)
}

func fallbackError(failures, items int) string {
	if failures == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d per-item calls failed", failures, items)
}
