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

// Package ollama implements the local LLM provider backed by an Ollama
// daemon. Local calls are zero-cost and support image inputs; file and URL
// inputs are referenced textually in the prompt.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/config"
	"github.com/madspark-labs/madspark/pkg/parser"
	"github.com/madspark-labs/madspark/pkg/types"
)

// healthCheckInterval is how long an availability probe result is reused
// before hitting the daemon again.
const healthCheckInterval = 30 * time.Second

// Tier-to-model mapping. The quality tier has no local equivalent and
// downgrades to balanced.
var tierModels = map[string]string{
	config.TierFast:     "llama3.2:3b",
	config.TierBalanced: "llama3.1:8b",
	config.TierQuality:  "llama3.1:8b",
}

// Config holds Ollama client configuration.
type Config struct {
	// Host is the daemon base URL, default http://localhost:11434.
	Host string
	// Model overrides the tier-derived model.
	Model string
	// ModelTier picks a default model when Model is empty.
	ModelTier string
	// Timeout bounds a single HTTP call, default 30s.
	Timeout time.Duration
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Client talks to a local Ollama daemon.
type Client struct {
	host   string
	model  string
	http   *http.Client
	logger *zap.Logger
	parser *parser.Parser

	healthMu  sync.Mutex
	healthy   bool
	checkedAt time.Time
}

var _ types.LLMProvider = (*Client)(nil)

// New creates an Ollama client.
func New(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		if m, ok := tierModels[cfg.ModelTier]; ok {
			cfg.Model = m
		} else {
			cfg.Model = tierModels[config.TierBalanced]
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		host:   strings.TrimSuffix(cfg.Host, "/"),
		model:  cfg.Model,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger,
		parser: parser.New(parser.Config{Logger: cfg.Logger}),
	}
}

// Name returns "ollama".
func (c *Client) Name() string { return "ollama" }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Available probes the daemon's model catalog. The result is cached for 30
// seconds. A model counts as available on exact match or when a catalog
// entry starts with the configured name (tag-qualified variants).
func (c *Client) Available(ctx context.Context) bool {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if time.Since(c.checkedAt) < healthCheckInterval {
		return c.healthy
	}
	c.checkedAt = time.Now()
	c.healthy = c.probe(ctx)
	return c.healthy
}

func (c *Client) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("ollama daemon unreachable", zap.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	for _, m := range tags.Models {
		if m.Name == c.model || strings.HasPrefix(m.Name, c.model) {
			return true
		}
	}
	c.logger.Debug("ollama model not in catalog", zap.String("model", c.model))
	return false
}

// Generate runs one plain-text chat call.
func (c *Client) Generate(ctx context.Context, prompt string, temperature float64) (*types.LLMResponse, error) {
	return c.chat(ctx, chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Options:  chatOptions{Temperature: temperature},
	})
}

// GenerateStructured runs one structured-output call. The JSON schema is
// passed as Ollama's format constraint; the response is parsed through the
// recovery chain since local models still occasionally wrap their JSON.
func (c *Client) GenerateStructured(ctx context.Context, req *types.StructuredRequest) (any, *types.LLMResponse, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemInstruction})
	}
	userMsg := chatMessage{Role: "user", Content: withTextualContext(req)}
	userMsg.Images = req.Images
	messages = append(messages, userMsg)

	var format json.RawMessage
	if req.Schema != nil {
		raw, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, nil, fmt.Errorf("ollama: marshal schema: %w", err)
		}
		format = raw
	} else {
		format = json.RawMessage(`"json"`)
	}

	resp, err := c.chat(ctx, chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Format:   format,
		Options:  chatOptions{Temperature: req.Temperature},
	})
	if err != nil {
		return nil, nil, err
	}

	payload, _, ok := c.parser.Parse(resp.Text)
	if !ok {
		return nil, resp, fmt.Errorf("ollama: %w", types.ErrEmptyResponse)
	}
	return payload, resp, nil
}

func (c *Client) chat(ctx context.Context, body chatRequest) (*types.LLMResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &types.ProviderUnavailableError{Provider: "ollama", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &types.ProviderUnavailableError{
			Provider: "ollama",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if out.Message.Content == "" {
		return nil, fmt.Errorf("ollama: %w", types.ErrEmptyResponse)
	}

	return &types.LLMResponse{
		Text:       out.Message.Content,
		Provider:   "ollama",
		Model:      c.model,
		TokensUsed: out.PromptEvalCount + out.EvalCount,
		LatencyMS:  time.Since(start).Milliseconds(),
		Cost:       0,
		Timestamp:  time.Now(),
	}, nil
}

// withTextualContext appends file and URL references to the prompt since the
// local provider cannot ingest them natively.
func withTextualContext(req *types.StructuredRequest) string {
	if len(req.Files) == 0 && len(req.URLs) == 0 {
		return req.Prompt
	}
	var sb strings.Builder
	sb.WriteString(req.Prompt)
	if len(req.Files) > 0 {
		sb.WriteString("\n\nReferenced files: ")
		sb.WriteString(strings.Join(req.Files, ", "))
	}
	if len(req.URLs) > 0 {
		sb.WriteString("\n\nReferenced URLs: ")
		sb.WriteString(strings.Join(req.URLs, ", "))
	}
	return sb.String()
}

// Ollama API types.

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  chatOptions     `json:"options"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}
