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

// Package llm routes LLM calls to a primary provider with optional fallback
// to a secondary, consulting the response cache first. Metrics live on the
// router instance, so concurrent workflows with their own routers never
// share counters.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/cache"
	"github.com/madspark-labs/madspark/pkg/config"
	"github.com/madspark-labs/madspark/pkg/llm/anthropic"
	"github.com/madspark-labs/madspark/pkg/llm/mock"
	"github.com/madspark-labs/madspark/pkg/llm/ollama"
	"github.com/madspark-labs/madspark/pkg/types"
)

// Config holds router construction options.
type Config struct {
	// Provider is auto, local, remote, or mock. Auto prefers the local
	// provider when it is healthy.
	Provider string
	// ModelTier is fast, balanced, or quality.
	ModelTier string
	// FallbackEnabled lets a failed primary call retry on the secondary.
	FallbackEnabled bool

	// Cache is the response cache; nil disables caching.
	Cache *cache.Cache
	// CacheTTL is the entry lifetime for stored responses.
	CacheTTL time.Duration

	// Local and Remote override the constructed providers. Used by tests
	// and by request-scoped HTTP handlers.
	Local  types.LLMProvider
	Remote types.LLMProvider

	// Settings supplies provider credentials and hosts. Nil uses the
	// process-wide config.
	Settings *config.Settings

	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Metrics is a snapshot of one router's counters.
type Metrics struct {
	TotalRequests    int64   `json:"total_requests"`
	LocalCalls       int64   `json:"local_calls"`
	RemoteCalls      int64   `json:"remote_calls"`
	CacheHits        int64   `json:"cache_hits"`
	FallbackTriggers int64   `json:"fallback_triggers"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
}

// Router selects providers and enforces fallback.
type Router struct {
	primary   types.LLMProvider
	secondary types.LLMProvider
	cache     *cache.Cache
	cacheTTL  time.Duration
	logger    *zap.Logger

	mu             sync.Mutex
	totalRequests  int64
	localCalls     int64
	remoteCalls    int64
	cacheHits      int64
	fallbacks      int64
	totalTokens    int64
	totalCost      float64
	totalLatencyMS int64
	servedCalls    int64
}

// New builds a router from configuration. Provider selection:
//
//	local:  ollama primary, anthropic secondary (when fallback is on).
//	remote: anthropic primary, ollama secondary.
//	auto:   ollama when healthy, otherwise anthropic.
//	mock:   mock only.
//
// When neither real provider can serve, the router degrades to the mock
// provider rather than failing construction.
func New(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Load()
	}
	if cfg.Provider == "" {
		cfg.Provider = settings.Provider
	}
	if cfg.ModelTier == "" {
		cfg.ModelTier = settings.ModelTier
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = settings.CacheTTL
	}

	local := cfg.Local
	if local == nil {
		local = ollama.New(ollama.Config{
			Host:      settings.OllamaHost,
			Model:     settings.OllamaModel,
			ModelTier: cfg.ModelTier,
			Logger:    cfg.Logger,
		})
	}

	remote := cfg.Remote
	if remote == nil {
		client, err := anthropic.New(anthropic.Config{
			APIKey:    settings.AnthropicAPIKey,
			Model:     settings.AnthropicModel,
			ModelTier: cfg.ModelTier,
			Logger:    cfg.Logger,
		})
		if err != nil {
			cfg.Logger.Warn("remote provider unavailable", zap.Error(err))
		} else {
			remote = client
		}
	}

	r := &Router{
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	switch cfg.Provider {
	case config.ProviderMock:
		r.primary = mock.New()
	case config.ProviderLocal:
		r.primary = local
		r.secondary = remote
	case config.ProviderRemote:
		if remote != nil {
			r.primary = remote
			r.secondary = local
		} else {
			r.primary = local
		}
	default: // auto
		if local.Available(probeCtx) {
			r.primary = local
			r.secondary = remote
		} else if remote != nil {
			r.primary = remote
			r.secondary = local
		} else {
			r.primary = local
		}
	}

	if !cfg.FallbackEnabled {
		r.secondary = nil
	}

	// Degrade to mock when nothing real can serve.
	if r.primary == nil || (r.primary.Name() == "ollama" && r.secondary == nil && !r.primary.Available(probeCtx)) {
		cfg.Logger.Warn("no LLM provider reachable, degrading to mock mode")
		r.primary = mock.New()
		r.secondary = nil
	}

	cfg.Logger.Info("router configured",
		zap.String("primary", r.primary.Name()),
		zap.String("primary_model", r.primary.Model()),
		zap.Bool("fallback", r.secondary != nil),
		zap.Bool("cache", r.cache != nil))
	return r
}

// Primary returns the selected primary provider.
func (r *Router) Primary() types.LLMProvider { return r.primary }

// GenerateStructured serves one structured call: cache lookup, primary
// provider, schema validation, then fallback to the secondary on
// recoverable failure. Responses are cached under the provider that served
// them, so a recovered primary is asked fresh instead of replaying the
// secondary's output. All provider failures are combined into the returned
// error.
func (r *Router) GenerateStructured(ctx context.Context, req *types.StructuredRequest) (any, *types.LLMResponse, error) {
	r.countRequest()

	key := cache.MakeKey(req, r.primary.Name(), r.primary.Model())
	if payload, resp, ok := r.cache.Get(key); ok {
		r.countHit(resp)
		return payload, resp, nil
	}

	payload, resp, err := r.callStructured(ctx, r.primary, req)
	if err == nil {
		r.store(key, payload, resp)
		return payload, resp, nil
	}

	if r.secondary == nil || !recoverable(err) {
		return nil, nil, fmt.Errorf("provider %s: %w", r.primary.Name(), err)
	}

	r.countFallback()
	r.logger.Warn("primary provider failed, trying fallback",
		zap.String("primary", r.primary.Name()),
		zap.String("fallback", r.secondary.Name()),
		zap.Error(err))

	fbKey := cache.MakeKey(req, r.secondary.Name(), r.secondary.Model())
	if payload2, resp2, ok := r.cache.Get(fbKey); ok {
		r.countHit(resp2)
		return payload2, resp2, nil
	}

	payload2, resp2, err2 := r.callStructured(ctx, r.secondary, req)
	if err2 == nil {
		r.store(fbKey, payload2, resp2)
		return payload2, resp2, nil
	}

	return nil, nil, multierr.Combine(
		fmt.Errorf("provider %s: %w", r.primary.Name(), err),
		fmt.Errorf("provider %s: %w", r.secondary.Name(), err2),
	)
}

// Generate serves one plain-text call with the same cache and fallback
// semantics. Plain calls are keyed as a degenerate structured request.
func (r *Router) Generate(ctx context.Context, prompt string, temperature float64) (*types.LLMResponse, error) {
	r.countRequest()

	keyReq := &types.StructuredRequest{Prompt: prompt, SchemaName: "plain_text", Temperature: temperature}
	key := cache.MakeKey(keyReq, r.primary.Name(), r.primary.Model())
	if _, resp, ok := r.cache.Get(key); ok {
		r.countHit(resp)
		return resp, nil
	}

	resp, err := r.primary.Generate(ctx, prompt, temperature)
	if err == nil {
		r.account(r.primary, resp)
		_ = r.cache.Set(key, map[string]any{}, resp, r.cacheTTL)
		return resp, nil
	}

	if r.secondary == nil || !recoverable(err) {
		return nil, fmt.Errorf("provider %s: %w", r.primary.Name(), err)
	}

	r.countFallback()
	fbKey := cache.MakeKey(keyReq, r.secondary.Name(), r.secondary.Model())
	if _, resp2, ok := r.cache.Get(fbKey); ok {
		r.countHit(resp2)
		return resp2, nil
	}
	resp2, err2 := r.secondary.Generate(ctx, prompt, temperature)
	if err2 == nil {
		r.account(r.secondary, resp2)
		_ = r.cache.Set(fbKey, map[string]any{}, resp2, r.cacheTTL)
		return resp2, nil
	}
	return nil, multierr.Combine(
		fmt.Errorf("provider %s: %w", r.primary.Name(), err),
		fmt.Errorf("provider %s: %w", r.secondary.Name(), err2),
	)
}

// Metrics returns a snapshot of this router's counters.
func (r *Router) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := Metrics{
		TotalRequests:    r.totalRequests,
		LocalCalls:       r.localCalls,
		RemoteCalls:      r.remoteCalls,
		CacheHits:        r.cacheHits,
		FallbackTriggers: r.fallbacks,
		TotalTokens:      r.totalTokens,
		TotalCost:        r.totalCost,
	}
	if r.servedCalls > 0 {
		m.AvgLatencyMS = float64(r.totalLatencyMS) / float64(r.servedCalls)
	}
	if r.totalRequests > 0 {
		m.CacheHitRate = float64(r.cacheHits) / float64(r.totalRequests)
	}
	return m
}

func (r *Router) callStructured(ctx context.Context, p types.LLMProvider, req *types.StructuredRequest) (any, *types.LLMResponse, error) {
	payload, resp, err := p.GenerateStructured(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if err := validatePayload(req, payload); err != nil {
		return nil, nil, err
	}
	r.account(p, resp)
	return payload, resp, nil
}

func (r *Router) store(key string, payload any, resp *types.LLMResponse) {
	if err := r.cache.Set(key, payload, resp, r.cacheTTL); err != nil {
		r.logger.Warn("cache store failed", zap.Error(err))
	}
}

func (r *Router) countRequest() {
	r.mu.Lock()
	r.totalRequests++
	r.mu.Unlock()
}

func (r *Router) countHit(resp *types.LLMResponse) {
	r.mu.Lock()
	r.cacheHits++
	r.mu.Unlock()
	r.logger.Debug("cache hit", zap.String("provider", resp.Provider))
}

func (r *Router) countFallback() {
	r.mu.Lock()
	r.fallbacks++
	r.mu.Unlock()
}

func (r *Router) account(p types.LLMProvider, resp *types.LLMResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch p.Name() {
	case "anthropic":
		r.remoteCalls++
	default:
		r.localCalls++
	}
	if resp != nil {
		r.totalTokens += int64(resp.TokensUsed)
		r.totalCost += resp.Cost
		r.totalLatencyMS += resp.LatencyMS
		r.servedCalls++
	}
}

// recoverable classifies errors the fallback provider may succeed on:
// provider outages, schema mismatches, empty responses, and timeouts.
// Configuration and validation errors are permanent.
func recoverable(err error) bool {
	var unavailable *types.ProviderUnavailableError
	if errors.As(err, &unavailable) {
		return true
	}
	var schemaErr *types.SchemaValidationError
	if errors.As(err, &schemaErr) {
		return true
	}
	if errors.Is(err, types.ErrEmptyResponse) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
