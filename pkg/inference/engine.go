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

// Package inference implements the logical-inference engine: LLM-driven
// reasoning analyses of ideas in one of five modes (full, causal,
// constraints, contradiction, implications). Batch analyses ride a single
// LLM call whose response is split on a fixed per-idea delimiter; analysis
// failures degrade to placeholder results instead of propagating.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/agents"
	"github.com/madspark-labs/madspark/pkg/llm"
	"github.com/madspark-labs/madspark/pkg/parser"
	"github.com/madspark-labs/madspark/pkg/types"
)

// UnparseableConclusion marks a section the response parser could not
// recover.
const UnparseableConclusion = "Unable to parse analysis for this idea"

var sectionDelimiter = regexp.MustCompile(`===\s*ANALYSIS_FOR_IDEA_(\d+)\s*===`)

// Config holds engine construction options.
type Config struct {
	// Router is required.
	Router *llm.Router
	// Temperature for analysis calls, default 0.3.
	Temperature float64
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Engine runs logical-inference analyses.
type Engine struct {
	router      *llm.Router
	temperature float64
	logger      *zap.Logger
	parser      *parser.Parser
}

// New creates an inference engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Router == nil {
		return nil, &types.ConfigError{Field: "router", Reason: "logical inference requires an LLM provider"}
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		router:      cfg.Router,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
		parser:      parser.New(parser.Config{Logger: cfg.Logger}),
	}, nil
}

// Analyze runs one analysis for a single idea. Failures come back as a
// placeholder result with zero confidence, never as an error.
func (e *Engine) Analyze(ctx context.Context, idea, topic, contextText string, at types.AnalysisType) *types.InferenceResult {
	results := e.AnalyzeBatch(ctx, []string{idea}, topic, contextText, at)
	return &results[0]
}

// AnalyzeBatch analyses every idea in one LLM call. The response carries
// one delimiter-separated JSON section per idea; ideas whose section is
// missing or unparseable get placeholder results. The returned slice always
// matches the input length.
func (e *Engine) AnalyzeBatch(ctx context.Context, ideas []string, topic, contextText string, at types.AnalysisType) []types.InferenceResult {
	at = normalizeType(at)
	out := make([]types.InferenceResult, len(ideas))

	resp, err := e.router.Generate(ctx, batchPrompt(ideas, topic, contextText, at), e.temperature)
	if err != nil {
		e.logger.Warn("inference call failed, substituting placeholders",
			zap.String("analysis_type", string(at)), zap.Error(err))
		for i := range out {
			out[i] = errorResult(at, i, err)
		}
		return out
	}

	sections := splitSections(resp.Text)
	for i := range ideas {
		section, ok := sections[i+1]
		if !ok {
			out[i] = placeholderResult(at, i)
			continue
		}
		result, ok := e.parseSection(section, at)
		if !ok {
			out[i] = placeholderResult(at, i)
			continue
		}
		result.IdeaIndex = i
		out[i] = *result
	}
	return out
}

// splitSections maps 1-based section numbers to their body text.
func splitSections(text string) map[int]string {
	matches := sectionDelimiter.FindAllStringSubmatchIndex(text, -1)
	sections := make(map[int]string, len(matches))
	for i, m := range matches {
		var num int
		_, _ = fmt.Sscanf(text[m[2]:m[3]], "%d", &num)
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections[num] = strings.TrimSpace(text[m[1]:end])
	}
	return sections
}

func (e *Engine) parseSection(section string, at types.AnalysisType) (*types.InferenceResult, bool) {
	payload, _, ok := e.parser.Parse(section)
	if !ok {
		return nil, false
	}

	obj, ok := firstObject(payload)
	if !ok {
		return nil, false
	}

	var result types.InferenceResult
	if err := decode(obj, &result); err != nil {
		return nil, false
	}
	if len(result.InferenceChain) == 0 || strings.TrimSpace(result.Conclusion) == "" {
		return nil, false
	}

	result.AnalysisType = at
	result.Confidence = clampConfidence(result.Confidence)
	return &result, true
}

// decode round-trips a recovered object through JSON into the result type.
func decode(obj map[string]any, out *types.InferenceResult) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func firstObject(payload any) (map[string]any, bool) {
	switch v := payload.(type) {
	case map[string]any:
		return v, true
	case []any:
		if len(v) > 0 {
			if m, ok := v[0].(map[string]any); ok {
				return m, true
			}
		}
	}
	return nil, false
}

func placeholderResult(at types.AnalysisType, idx int) types.InferenceResult {
	return types.InferenceResult{
		AnalysisType: at,
		Conclusion:   UnparseableConclusion,
		Confidence:   0,
		IdeaIndex:    idx,
	}
}

func errorResult(at types.AnalysisType, idx int, err error) types.InferenceResult {
	return types.InferenceResult{
		AnalysisType: at,
		Conclusion:   err.Error(),
		Error:        err.Error(),
		Confidence:   0,
		IdeaIndex:    idx,
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return math.Round(c*100) / 100
}

func normalizeType(at types.AnalysisType) types.AnalysisType {
	switch at {
	case types.AnalysisFull, types.AnalysisCausal, types.AnalysisConstraints,
		types.AnalysisContradiction, types.AnalysisImplications:
		return at
	default:
		return types.AnalysisFull
	}
}

// Per-type response field guidance appended to the common prompt.
var typeGuidance = map[types.AnalysisType]string{
	types.AnalysisFull:          `"improvements": "<suggested refinements>"`,
	types.AnalysisCausal:        `"causal_chain": [...], "feedback_loops": [...], "root_cause": "..."`,
	types.AnalysisConstraints:   `"constraint_satisfaction": {"<constraint>": <0-1>}, "overall_satisfaction": <0-1>, "trade_offs": [...]`,
	types.AnalysisContradiction: `"contradictions": [{"statement1", "statement2", "severity"}], "resolution": "..."`,
	types.AnalysisImplications:  `"implications": [...], "second_order_effects": [...]`,
}

func batchPrompt(ideas []string, topic, contextText string, at types.AnalysisType) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Perform a %s logical analysis of each idea below.\n\nTopic: %s\nContext: %s\n\nIdeas:\n", at, topic, contextText)
	for i, idea := range ideas {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.ReplaceAll(idea, "\n", " "))
	}
	sb.WriteString("\nFor each idea N, output a section starting with the exact line \"=== ANALYSIS_FOR_IDEA_N ===\" followed by a JSON object with:\n")
	sb.WriteString(`"inference_chain": [<reasoning steps, at least one>], "conclusion": "<non-empty>", "confidence": <0.0-1.0>, `)
	sb.WriteString(typeGuidance[at])
	sb.WriteString("\n\n" + agents.LanguageInstruction)
	return sb.String()
}
