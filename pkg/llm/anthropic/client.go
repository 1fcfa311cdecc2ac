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

// Package anthropic implements the remote LLM provider backed by the
// Anthropic Messages API. Remote calls are paid and support all input
// modalities.
package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/config"
	"github.com/madspark-labs/madspark/pkg/parser"
	"github.com/madspark-labs/madspark/pkg/types"
)

// Tier-to-model mapping.
var tierModels = map[string]string{
	config.TierFast:     "claude-3-5-haiku-latest",
	config.TierBalanced: "claude-sonnet-4-5",
	config.TierQuality:  "claude-opus-4-1",
}

// Per-million-token prices used for cost estimation, keyed by model family.
type pricing struct {
	inputUSD  float64
	outputUSD float64
}

var modelPricing = map[string]pricing{
	"haiku":  {0.80, 4.00},
	"sonnet": {3.00, 15.00},
	"opus":   {15.00, 75.00},
}

// Config holds Anthropic client configuration.
type Config struct {
	// APIKey is required. Placeholder keys are rejected at construction.
	APIKey string
	// Model overrides the tier-derived model.
	Model string
	// ModelTier picks a default model when Model is empty.
	ModelTier string
	// MaxTokens caps response length, default 4096.
	MaxTokens int
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Client calls the Anthropic Messages API.
type Client struct {
	client    sdk.Client
	model     string
	maxTokens int
	logger    *zap.Logger
	parser    *parser.Parser
}

var _ types.LLMProvider = (*Client)(nil)

// New creates an Anthropic client. Keys that are too short or contain
// placeholder text are rejected so a misconfigured remote provider fails at
// startup rather than on the first paid call.
func New(cfg Config) (*Client, error) {
	if !config.ValidAPIKey(cfg.APIKey) {
		return nil, &types.ConfigError{
			Field:  "ANTHROPIC_API_KEY",
			Reason: "missing, too short, or placeholder",
		}
	}
	if cfg.Model == "" {
		if m, ok := tierModels[cfg.ModelTier]; ok {
			cfg.Model = m
		} else {
			cfg.Model = tierModels[config.TierBalanced]
		}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		client:    sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
		parser:    parser.New(parser.Config{Logger: cfg.Logger}),
	}, nil
}

// Name returns "anthropic".
func (c *Client) Name() string { return "anthropic" }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Available reports true: remote availability is only knowable by calling,
// and key validity was checked at construction.
func (c *Client) Available(_ context.Context) bool { return true }

// Generate runs one plain-text call.
func (c *Client) Generate(ctx context.Context, prompt string, temperature float64) (*types.LLMResponse, error) {
	return c.call(ctx, "", []sdk.ContentBlockParamUnion{sdk.NewTextBlock(prompt)}, temperature)
}

// GenerateStructured runs one structured-output call. The schema constraint
// is expressed through the system prompt; the response is parsed through the
// recovery chain.
func (c *Client) GenerateStructured(ctx context.Context, req *types.StructuredRequest) (any, *types.LLMResponse, error) {
	system := req.SystemInstruction
	if req.Schema != nil {
		schemaNote := "Respond with JSON only, no prose, matching the requested structure exactly."
		if system == "" {
			system = schemaNote
		} else {
			system = system + "\n\n" + schemaNote
		}
	}

	resp, err := c.call(ctx, system, c.contentBlocks(req), req.Temperature)
	if err != nil {
		return nil, nil, err
	}

	payload, _, ok := c.parser.Parse(resp.Text)
	if !ok {
		return nil, resp, fmt.Errorf("anthropic: %w", types.ErrEmptyResponse)
	}
	return payload, resp, nil
}

func (c *Client) call(ctx context.Context, system string, blocks []sdk.ContentBlockParamUnion, temperature float64) (*types.LLMResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(blocks...),
		},
		Temperature: sdk.Float(temperature),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &types.ProviderUnavailableError{Provider: "anthropic", Err: err}
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if text == "" {
		return nil, fmt.Errorf("anthropic: %w", types.ErrEmptyResponse)
	}

	in := int(msg.Usage.InputTokens)
	out := int(msg.Usage.OutputTokens)
	return &types.LLMResponse{
		Text:       text,
		Provider:   "anthropic",
		Model:      c.model,
		TokensUsed: in + out,
		LatencyMS:  time.Since(start).Milliseconds(),
		Cost:       c.estimateCost(in, out),
		Timestamp:  time.Now(),
	}, nil
}

func (c *Client) estimateCost(inputTokens, outputTokens int) float64 {
	for family, p := range modelPricing {
		if strings.Contains(c.model, family) {
			return float64(inputTokens)/1e6*p.inputUSD + float64(outputTokens)/1e6*p.outputUSD
		}
	}
	return 0
}

var imageMediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// contentBlocks builds the user message content: the prompt first, then one
// block per attachment. Image paths become base64 image blocks, image URLs
// become URL-sourced image blocks, PDFs become document blocks, other files
// become plain-text document blocks. Unreadable attachments and non-PDF
// URLs degrade to a textual reference so the call still goes out.
func (c *Client) contentBlocks(req *types.StructuredRequest) []sdk.ContentBlockParamUnion {
	blocks := []sdk.ContentBlockParamUnion{sdk.NewTextBlock(req.Prompt)}

	for _, img := range req.Images {
		if isHTTPURL(img) {
			blocks = append(blocks, sdk.NewImageBlock(sdk.URLImageSourceParam{URL: img}))
			continue
		}
		data, err := os.ReadFile(img)
		if err != nil {
			c.logger.Warn("cannot read image attachment", zap.String("path", img), zap.Error(err))
			blocks = append(blocks, sdk.NewTextBlock("Referenced image: "+img))
			continue
		}
		blocks = append(blocks, sdk.NewImageBlockBase64(
			imageMediaType(img), base64.StdEncoding.EncodeToString(data)))
	}

	for _, file := range req.Files {
		data, err := os.ReadFile(file)
		if err != nil {
			c.logger.Warn("cannot read file attachment", zap.String("path", file), zap.Error(err))
			blocks = append(blocks, sdk.NewTextBlock("Referenced file: "+file))
			continue
		}
		if strings.EqualFold(filepath.Ext(file), ".pdf") {
			blocks = append(blocks, sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{
				Data: base64.StdEncoding.EncodeToString(data),
			}))
			continue
		}
		blocks = append(blocks, sdk.NewDocumentBlock(sdk.PlainTextSourceParam{Data: string(data)}))
	}

	for _, u := range req.URLs {
		if strings.HasSuffix(strings.ToLower(u), ".pdf") {
			blocks = append(blocks, sdk.NewDocumentBlock(sdk.URLPDFSourceParam{URL: u}))
			continue
		}
		blocks = append(blocks, sdk.NewTextBlock("Referenced URL: "+u))
	}

	return blocks
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func imageMediaType(path string) string {
	if mt, ok := imageMediaTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "image/png"
}
