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

package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madspark-labs/madspark/pkg/cache"
	"github.com/madspark-labs/madspark/pkg/types"
)

type fakeProvider struct {
	name      string
	model     string
	available bool
	payload   any
	err       error
	calls     atomic.Int64
	tokens    int
}

var _ types.LLMProvider = (*fakeProvider)(nil)

func (f *fakeProvider) GenerateStructured(_ context.Context, _ *types.StructuredRequest) (any, *types.LLMResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.payload, f.response(), nil
}

func (f *fakeProvider) Generate(_ context.Context, _ string, _ float64) (*types.LLMResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.response(), nil
}

func (f *fakeProvider) response() *types.LLMResponse {
	return &types.LLMResponse{
		Text:       "ok",
		Provider:   f.name,
		Model:      f.model,
		TokensUsed: f.tokens,
		LatencyMS:  5,
		Timestamp:  time.Now(),
	}
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) Model() string                    { return f.model }
func (f *fakeProvider) Available(_ context.Context) bool { return f.available }

func newTestRouter(t *testing.T, local, remote types.LLMProvider, fallback bool) *Router {
	t.Helper()
	return New(Config{
		Provider:        "local",
		FallbackEnabled: fallback,
		Local:           local,
		Remote:          remote,
	})
}

func TestPrimarySuccess(t *testing.T) {
	local := &fakeProvider{name: "ollama", model: "m", available: true,
		payload: map[string]any{"score": float64(8)}, tokens: 40}
	r := newTestRouter(t, local, nil, false)

	payload, resp, err := r.GenerateStructured(context.Background(), &types.StructuredRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"score": float64(8)}, payload)
	assert.Equal(t, "ollama", resp.Provider)

	m := r.Metrics()
	assert.Equal(t, int64(1), m.TotalRequests)
	assert.Equal(t, int64(1), m.LocalCalls)
	assert.Equal(t, int64(0), m.RemoteCalls)
	assert.Equal(t, int64(40), m.TotalTokens)
}

func TestFallbackOnUnavailablePrimary(t *testing.T) {
	local := &fakeProvider{name: "ollama", model: "m", available: true,
		err: &types.ProviderUnavailableError{Provider: "ollama", Err: errors.New("connection refused")}}
	remote := &fakeProvider{name: "anthropic", model: "claude", available: true,
		payload: map[string]any{"ok": true}}
	r := newTestRouter(t, local, remote, true)

	payload, resp, err := r.GenerateStructured(context.Background(), &types.StructuredRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, payload)
	assert.Equal(t, "anthropic", resp.Provider)

	m := r.Metrics()
	assert.Equal(t, int64(1), m.FallbackTriggers)
	assert.Equal(t, int64(1), m.RemoteCalls)
}

func TestNoFallbackWhenDisabled(t *testing.T) {
	local := &fakeProvider{name: "ollama", model: "m", available: true,
		err: &types.ProviderUnavailableError{Provider: "ollama"}}
	remote := &fakeProvider{name: "anthropic", model: "claude", available: true,
		payload: map[string]any{}}
	r := newTestRouter(t, local, remote, false)

	_, _, err := r.GenerateStructured(context.Background(), &types.StructuredRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, int64(0), remote.calls.Load())
}

func TestAllProvidersFailAggregatesErrors(t *testing.T) {
	local := &fakeProvider{name: "ollama", model: "m", available: true,
		err: &types.ProviderUnavailableError{Provider: "ollama", Err: errors.New("down")}}
	remote := &fakeProvider{name: "anthropic", model: "claude", available: true,
		err: &types.ProviderUnavailableError{Provider: "anthropic", Err: errors.New("overloaded")}}
	r := newTestRouter(t, local, remote, true)

	_, _, err := r.GenerateStructured(context.Background(), &types.StructuredRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama")
	assert.Contains(t, err.Error(), "anthropic")
}

func TestSchemaViolationTriggersFallback(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"score"},
		"properties": map[string]any{
			"score": map[string]any{"type": "number"},
		},
	}
	local := &fakeProvider{name: "ollama", model: "m", available: true,
		payload: map[string]any{"wrong": "shape"}}
	remote := &fakeProvider{name: "anthropic", model: "claude", available: true,
		payload: map[string]any{"score": float64(7)}}
	r := newTestRouter(t, local, remote, true)

	payload, _, err := r.GenerateStructured(context.Background(), &types.StructuredRequest{
		Prompt: "p", SchemaName: "eval", Schema: schema,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(7), payload.(map[string]any)["score"])
	assert.Equal(t, int64(1), r.Metrics().FallbackTriggers)
}

func TestCacheHitSkipsProvider(t *testing.T) {
	c, err := cache.New(cache.Config{Dir: t.TempDir(), TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	local := &fakeProvider{name: "ollama", model: "m", available: true,
		payload: map[string]any{"v": float64(1)}, tokens: 10}
	r := New(Config{Provider: "local", Local: local, Cache: c, CacheTTL: time.Hour, FallbackEnabled: false})

	req := &types.StructuredRequest{Prompt: "same prompt", Temperature: 0.5}
	_, first, err := r.GenerateStructured(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	payload, second, err := r.GenerateStructured(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, map[string]any{"v": float64(1)}, payload)
	assert.Equal(t, int64(1), local.calls.Load())
	assert.Equal(t, int64(1), r.Metrics().CacheHits)
}

func TestFallbackResponseCachedUnderServingProvider(t *testing.T) {
	c, err := cache.New(cache.Config{Dir: t.TempDir(), TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	req := &types.StructuredRequest{Prompt: "same prompt", Temperature: 0.3}
	remote := &fakeProvider{name: "anthropic", model: "claude", available: true,
		payload: map[string]any{"from": "remote"}}
	downPrimary := func() *fakeProvider {
		return &fakeProvider{name: "ollama", model: "m", available: true,
			err: &types.ProviderUnavailableError{Provider: "ollama", Err: errors.New("down")}}
	}
	withCache := func(local *fakeProvider) *Router {
		return New(Config{Provider: "local", Local: local, Remote: remote,
			FallbackEnabled: true, Cache: c, CacheTTL: time.Hour})
	}

	// First call falls back and caches the secondary's response.
	payload, _, err := withCache(downPrimary()).GenerateStructured(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "remote", payload.(map[string]any)["from"])
	assert.Equal(t, int64(1), remote.calls.Load())

	// While the primary stays down, the fallback response is reused from
	// the cache without another remote call.
	r2 := withCache(downPrimary())
	payload, resp, err := r2.GenerateStructured(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "remote", payload.(map[string]any)["from"])
	assert.True(t, resp.Cached)
	assert.Equal(t, int64(1), remote.calls.Load())

	// A recovered primary must not see the secondary's cached response.
	up := &fakeProvider{name: "ollama", model: "m", available: true,
		payload: map[string]any{"from": "local"}}
	payload, resp, err = withCache(up).GenerateStructured(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "local", payload.(map[string]any)["from"])
	assert.False(t, resp.Cached)
	assert.Equal(t, int64(1), up.calls.Load())
}

func TestMetricsIsolationBetweenRouters(t *testing.T) {
	mk := func() *Router {
		return newTestRouter(t, &fakeProvider{name: "ollama", model: "m", available: true,
			payload: map[string]any{}}, nil, false)
	}
	r1, r2 := mk(), mk()

	for i := 0; i < 3; i++ {
		_, _, err := r1.GenerateStructured(context.Background(), &types.StructuredRequest{Prompt: "p"})
		require.NoError(t, err)
	}

	assert.Equal(t, int64(3), r1.Metrics().TotalRequests)
	assert.Equal(t, int64(0), r2.Metrics().TotalRequests)
}

func TestDegradesToMockWhenNothingReachable(t *testing.T) {
	local := &fakeProvider{name: "ollama", model: "m", available: false,
		err: &types.ProviderUnavailableError{Provider: "ollama"}}
	r := New(Config{Provider: "local", Local: local})

	assert.Equal(t, "mock", r.Primary().Name())

	payload, resp, err := r.GenerateStructured(context.Background(), &types.StructuredRequest{
		Prompt:     "1. solar benches",
		SchemaName: "evaluation_list",
	})
	require.NoError(t, err)
	assert.NotNil(t, payload)
	assert.Zero(t, resp.TokensUsed)
}
