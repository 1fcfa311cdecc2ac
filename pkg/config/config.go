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

// Package config loads MadSpark settings from environment variables. The
// environment is read once at startup; the resulting Settings value is
// immutable afterwards and can be reset for tests.
package config

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Provider selection values.
const (
	ProviderAuto   = "auto"
	ProviderLocal  = "local"
	ProviderRemote = "remote"
	ProviderMock   = "mock"
)

// Model tiers.
const (
	TierFast     = "fast"
	TierBalanced = "balanced"
	TierQuality  = "quality"
)

// Settings is the resolved configuration.
type Settings struct {
	// Provider is auto, local, remote, or mock.
	Provider string
	// ModelTier is fast, balanced, or quality.
	ModelTier string
	// FallbackEnabled lets the router try the secondary provider when the
	// primary fails.
	FallbackEnabled bool

	CacheEnabled   bool
	CacheTTL       time.Duration
	CacheMaxSizeMB int
	CacheDir       string

	// OllamaHost is the local provider's base URL.
	OllamaHost string
	// OllamaModel overrides the tier-derived local model.
	OllamaModel string

	// AnthropicAPIKey is the remote provider's credential. Empty or
	// placeholder keys disable the remote provider.
	AnthropicAPIKey string
	// AnthropicModel overrides the tier-derived remote model.
	AnthropicModel string

	// BatchLogPath is where the batch monitor appends JSONL records.
	// Empty disables persistence.
	BatchLogPath string

	// WorkflowTimeout bounds one orchestrator run.
	WorkflowTimeout time.Duration
}

var (
	mu       sync.Mutex
	settings *Settings
)

// Load returns the process-wide settings, reading the environment on first
// call.
func Load() *Settings {
	mu.Lock()
	defer mu.Unlock()
	if settings == nil {
		settings = fromEnv()
	}
	return settings
}

// Reset discards the cached settings so the next Load re-reads the
// environment. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	settings = nil
}

func fromEnv() *Settings {
	v := viper.New()
	v.SetEnvPrefix("MADSPARK")
	v.AutomaticEnv()

	v.SetDefault("llm_provider", ProviderAuto)
	v.SetDefault("model_tier", TierBalanced)
	v.SetDefault("fallback_enabled", true)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_ttl", 86400)
	v.SetDefault("cache_max_size_mb", 100)
	v.SetDefault("timeout", 1200)

	// Provider-specific variables keep their conventional names.
	_ = v.BindEnv("ollama_host", "OLLAMA_HOST")
	_ = v.BindEnv("ollama_model", "OLLAMA_MODEL")
	_ = v.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("anthropic_model", "ANTHROPIC_MODEL")
	v.SetDefault("ollama_host", "http://localhost:11434")

	s := &Settings{
		Provider:        normalizeChoice(v.GetString("llm_provider"), ProviderAuto, ProviderAuto, ProviderLocal, ProviderRemote, ProviderMock),
		ModelTier:       normalizeChoice(v.GetString("model_tier"), TierBalanced, TierFast, TierBalanced, TierQuality),
		FallbackEnabled: v.GetBool("fallback_enabled"),
		CacheEnabled:    v.GetBool("cache_enabled"),
		CacheTTL:        time.Duration(v.GetInt("cache_ttl")) * time.Second,
		CacheMaxSizeMB:  v.GetInt("cache_max_size_mb"),
		CacheDir:        v.GetString("cache_dir"),
		OllamaHost:      v.GetString("ollama_host"),
		OllamaModel:     v.GetString("ollama_model"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		AnthropicModel:  v.GetString("anthropic_model"),
		BatchLogPath:    v.GetString("batch_log"),
		WorkflowTimeout: time.Duration(v.GetInt("timeout")) * time.Second,
	}
	if s.CacheTTL <= 0 {
		s.CacheTTL = 24 * time.Hour
	}
	if s.WorkflowTimeout <= 0 {
		s.WorkflowTimeout = 1200 * time.Second
	}
	return s
}

func normalizeChoice(value, fallback string, allowed ...string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	return fallback
}

// placeholderPatterns mark API keys that were never replaced with a real
// credential.
var placeholderPatterns = []string{
	"your-", "replace", "example", "xxx", "placeholder", "api_key_here",
}

// ValidAPIKey reports whether key looks like a real credential. Keys
// shorter than 20 characters or containing placeholder text are rejected.
func ValidAPIKey(key string) bool {
	key = strings.TrimSpace(key)
	if len(key) < 20 {
		return false
	}
	lower := strings.ToLower(key)
	for _, p := range placeholderPatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}
