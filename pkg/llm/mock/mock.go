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

// Package mock implements the degraded-mode LLM provider. It is selected
// when no real provider is reachable. Responses are deterministic functions
// of the prompt, consume zero tokens, carry the "[DEGRADED MODE]" marker in
// formatted fields, and never fail. Prompt content is echoed into output
// fields so the pipeline preserves the input language end to end.
package mock

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/madspark-labs/madspark/pkg/types"
)

// Marker tags every mock-produced formatted field.
const Marker = "[DEGRADED MODE]"

var itemLine = regexp.MustCompile(`(?m)^\s*\d+[.)]\s`)

// Client is the mock provider.
type Client struct{}

var _ types.LLMProvider = (*Client)(nil)

// New creates a mock provider.
func New() *Client { return &Client{} }

// Name returns "mock".
func (c *Client) Name() string { return "mock" }

// Model returns "mock".
func (c *Client) Model() string { return "mock" }

// Available always reports true.
func (c *Client) Available(_ context.Context) bool { return true }

// Generate echoes the prompt. Prompts requesting delimiter-separated
// inference analyses get one well-formed JSON section per numbered item so
// the inference engine's batch parser finds every section.
func (c *Client) Generate(_ context.Context, prompt string, _ float64) (*types.LLMResponse, error) {
	if strings.Contains(prompt, "ANALYSIS_FOR_IDEA") {
		return response(inferenceSections(prompt)), nil
	}
	return response(Marker + " " + excerpt(prompt)), nil
}

func inferenceSections(prompt string) string {
	n := countItems(prompt)
	echo := jsonEscape(excerpt(prompt))
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "=== ANALYSIS_FOR_IDEA_%d ===\n", i)
		fmt.Fprintf(&sb,
			`{"inference_chain": ["%s premise: %s", "%s deduction"], "conclusion": "%s conclusion: %s", "confidence": 0.75, "improvements": "%s tighten assumptions"}`,
			Marker, echo, Marker, Marker, echo, Marker)
		sb.WriteString("\n")
	}
	return sb.String()
}

func jsonEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return s
}

// GenerateStructured produces a schema-appropriate deterministic payload.
// The shape is selected by SchemaName; unknown schemas get a generic echo
// object. Item counts follow the numbered lines in the prompt.
func (c *Client) GenerateStructured(_ context.Context, req *types.StructuredRequest) (any, *types.LLMResponse, error) {
	n := countItems(req.Prompt)
	echo := excerpt(req.Prompt)

	var payload any
	switch req.SchemaName {
	case "idea_list":
		list := make([]any, 0, 3)
		for i := 0; i < 3; i++ {
			list = append(list, map[string]any{
				"text":  fmt.Sprintf("%s idea %d: %s", Marker, i+1, echo),
				"title": fmt.Sprintf("%s idea %d", Marker, i+1),
			})
		}
		payload = list
	case "evaluation_list":
		list := make([]any, 0, n)
		for i := 0; i < n; i++ {
			list = append(list, map[string]any{
				"score":      float64(5 + i%3),
				"comment":    fmt.Sprintf("%s evaluation %d: %s", Marker, i+1, echo),
				"idea_index": float64(i),
			})
		}
		payload = list
	case "advocacy_list":
		list := make([]any, 0, n)
		for i := 0; i < n; i++ {
			list = append(list, map[string]any{
				"strengths":           []any{map[string]any{"title": Marker, "description": echo}},
				"opportunities":       []any{map[string]any{"title": Marker, "description": echo}},
				"addressing_concerns": []any{map[string]any{"concern": Marker, "response": echo}},
				"idea_index":          float64(i),
			})
		}
		payload = list
	case "skepticism_list":
		list := make([]any, 0, n)
		for i := 0; i < n; i++ {
			list = append(list, map[string]any{
				"critical_flaws":           []any{Marker + " " + echo},
				"risks_challenges":         []any{Marker + " " + echo},
				"questionable_assumptions": []any{Marker + " " + echo},
				"missing_considerations":   []any{Marker + " " + echo},
				"idea_index":               float64(i),
			})
		}
		payload = list
	case "improvement_list":
		list := make([]any, 0, n)
		for i := 0; i < n; i++ {
			list = append(list, map[string]any{
				"improved_title":       fmt.Sprintf("%s improved idea %d", Marker, i+1),
				"improved_description": fmt.Sprintf("%s %s", Marker, echo),
				"key_improvements":     []any{Marker + " refined scope"},
				"idea_index":           float64(i),
			})
		}
		payload = list
	case "dimension_scores_list":
		list := make([]any, 0, n)
		for i := 0; i < n; i++ {
			list = append(list, map[string]any{
				"feasibility":        float64(6),
				"innovation":         float64(6),
				"impact":             float64(6),
				"cost_effectiveness": float64(6),
				"scalability":        float64(6),
				"risk_assessment":    float64(6),
				"timeline":           float64(6),
				"idea_index":         float64(i),
			})
		}
		payload = list
	case "dimension_score":
		payload = map[string]any{
			"score":     float64(6),
			"reasoning": Marker + " " + echo,
		}
	case "dimension_summary":
		payload = map[string]any{
			"evaluation_summary": Marker + " " + echo,
		}
	default:
		payload = map[string]any{
			"formatted": Marker + " " + echo,
			"echo":      echo,
		}
	}

	return payload, response(Marker + " " + echo), nil
}

// countItems counts numbered lines ("1. ..." or "1) ...") in the prompt.
// Prompts without numbering are treated as single-item.
func countItems(prompt string) int {
	n := len(itemLine.FindAllString(prompt, -1))
	if n == 0 {
		return 1
	}
	return n
}

// excerpt bounds the echoed prompt content.
func excerpt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	runes := []rune(prompt)
	if len(runes) > 500 {
		return string(runes[:500])
	}
	return prompt
}

func response(text string) *types.LLMResponse {
	return &types.LLMResponse{
		Text:       text,
		Provider:   "mock",
		Model:      "mock",
		TokensUsed: 0,
		Cost:       0,
		Timestamp:  time.Now(),
	}
}
