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

// Package evals implements the multi-dimensional idea evaluator: seven
// weighted dimensions scored by the LLM, aggregated into weighted and
// unweighted means with a dispersion interval, plus a short LLM-written
// summary in the input language.
package evals

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/agents"
	"github.com/madspark-labs/madspark/pkg/llm"
	"github.com/madspark-labs/madspark/pkg/types"
)

// Dimensions in canonical order. risk_assessment is the canonical name for
// the safety dimension; safety_score is accepted as an input alias.
var dimensionOrder = []string{
	"feasibility",
	"innovation",
	"impact",
	"cost_effectiveness",
	"scalability",
	"risk_assessment",
	"timeline",
}

// DefaultWeights sum to 1.0.
var DefaultWeights = map[string]float64{
	"feasibility":        0.20,
	"innovation":         0.15,
	"impact":             0.20,
	"cost_effectiveness": 0.10,
	"scalability":        0.15,
	"risk_assessment":    0.10,
	"timeline":           0.10,
}

// Config holds evaluator construction options.
type Config struct {
	// Router is required: the evaluator cannot run without a provider.
	Router *llm.Router
	// Weights defaults to DefaultWeights; must cover every dimension and
	// sum to 1.0 (within rounding).
	Weights map[string]float64
	// MinScore/MaxScore bound each dimension, default [1, 10].
	MinScore float64
	MaxScore float64
	// Temperature for evaluation calls, default 0.3.
	Temperature float64
	// DisableSummaries skips the per-idea summary calls, keeping a batch
	// evaluation at exactly one LLM call.
	DisableSummaries bool
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Evaluator scores ideas across the seven dimensions.
type Evaluator struct {
	router      *llm.Router
	weights     map[string]float64
	minScore    float64
	maxScore    float64
	temperature float64
	summaries   bool
	logger      *zap.Logger
}

// New creates an evaluator. A missing router is a configuration error: set
// ANTHROPIC_API_KEY or run a local Ollama daemon and construct a router
// first.
func New(cfg Config) (*Evaluator, error) {
	if cfg.Router == nil {
		return nil, &types.ConfigError{
			Field:  "router",
			Reason: "multi-dimensional evaluation requires an LLM provider; set ANTHROPIC_API_KEY or start a local Ollama daemon",
		}
	}
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights
	}
	var sum float64
	for _, d := range dimensionOrder {
		w, ok := cfg.Weights[d]
		if !ok {
			return nil, &types.ConfigError{Field: "weights", Reason: fmt.Sprintf("missing dimension %q", d)}
		}
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		return nil, &types.ConfigError{Field: "weights", Reason: fmt.Sprintf("weights sum to %v, want 1.0", sum)}
	}
	if cfg.MaxScore <= cfg.MinScore {
		cfg.MinScore, cfg.MaxScore = 1, 10
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Evaluator{
		router:      cfg.Router,
		weights:     cfg.Weights,
		minScore:    cfg.MinScore,
		maxScore:    cfg.MaxScore,
		temperature: cfg.Temperature,
		summaries:   !cfg.DisableSummaries,
		logger:      cfg.Logger,
	}, nil
}

// EvaluateIdea scores one idea with seven concurrent per-dimension calls
// plus one summary call.
func (e *Evaluator) EvaluateIdea(ctx context.Context, idea, contextText string) (*types.MultiDimEvaluation, error) {
	scores := make(map[string]float64, len(dimensionOrder))
	errs := make([]error, len(dimensionOrder))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, dim := range dimensionOrder {
		wg.Add(1)
		go func(i int, dim string) {
			defer wg.Done()
			score, err := e.scoreDimension(ctx, dim, idea, contextText)
			if err != nil {
				errs[i] = err
				return
			}
			mu.Lock()
			scores[dim] = score
			mu.Unlock()
		}(i, dim)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	eval := e.aggregate(scores, 0)
	if e.summaries {
		summary, err := e.summarize(ctx, idea, contextText, eval)
		if err != nil {
			e.logger.Warn("summary generation failed", zap.Error(err))
		} else {
			eval.EvaluationSummary = summary
		}
	}
	return eval, nil
}

// EvaluateIdeasBatch scores every idea in one batched call, then writes one
// summary per idea. The result list matches the input length and order.
func (e *Evaluator) EvaluateIdeasBatch(ctx context.Context, ideas []string, contextText string) ([]types.MultiDimEvaluation, error) {
	if len(ideas) == 0 {
		return nil, fmt.Errorf("evals: no ideas")
	}

	payload, _, err := e.router.GenerateStructured(ctx, &types.StructuredRequest{
		Prompt:      batchPrompt(ideas, contextText),
		SchemaName:  "dimension_scores_list",
		Schema:      dimensionScoresListSchema(),
		Temperature: e.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("evals: batch call: %w", err)
	}

	rows, ok := payload.([]any)
	if !ok || len(rows) != len(ideas) {
		return nil, &types.BatchLengthMismatchError{
			Function: "evaluate_ideas_batch", Want: len(ideas), Got: len(rows),
		}
	}

	type indexed struct {
		idx    int
		scores map[string]float64
	}
	parsed := make([]indexed, 0, len(rows))
	for pos, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("evals: batch row %d is not an object", pos)
		}
		scores, err := e.extractScores(obj)
		if err != nil {
			return nil, err
		}
		idx := pos
		if v, ok := obj["idea_index"].(float64); ok {
			idx = int(v)
		}
		parsed = append(parsed, indexed{idx: idx, scores: scores})
	}
	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].idx < parsed[j].idx })

	out := make([]types.MultiDimEvaluation, len(parsed))
	for i, p := range parsed {
		eval := e.aggregate(p.scores, i)
		if e.summaries {
			summary, err := e.summarize(ctx, ideas[i], contextText, eval)
			if err != nil {
				e.logger.Warn("summary generation failed",
					zap.Int("idea_index", i), zap.Error(err))
			} else {
				eval.EvaluationSummary = summary
			}
		}
		out[i] = *eval
	}
	return out, nil
}

func (e *Evaluator) scoreDimension(ctx context.Context, dim, idea, contextText string) (float64, error) {
	payload, _, err := e.router.GenerateStructured(ctx, &types.StructuredRequest{
		Prompt:      dimensionPrompt(dim, idea, contextText),
		SchemaName:  "dimension_score",
		Schema:      dimensionScoreSchema(),
		Temperature: e.temperature,
	})
	if err != nil {
		return 0, fmt.Errorf("evals: %s: %w", dim, err)
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("evals: %s: AI returned non-numeric score", dim)
	}
	raw, ok := obj["score"].(float64)
	if !ok {
		return 0, fmt.Errorf("evals: %s: AI returned non-numeric score", dim)
	}
	return e.clamp(raw), nil
}

// extractScores reads the seven dimensions from a batch row, honoring the
// safety_score alias and clamping to the configured range.
func (e *Evaluator) extractScores(obj map[string]any) (map[string]float64, error) {
	scores := make(map[string]float64, len(dimensionOrder))
	for _, dim := range dimensionOrder {
		v, ok := obj[dim]
		if !ok && dim == "risk_assessment" {
			v, ok = obj["safety_score"]
		}
		if !ok {
			return nil, fmt.Errorf("evals: missing dimension %q in response", dim)
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("evals: %s: AI returned non-numeric score", dim)
		}
		scores[dim] = e.clamp(f)
	}
	return scores, nil
}

func (e *Evaluator) clamp(v float64) float64 {
	if v < e.minScore {
		return e.minScore
	}
	if v > e.maxScore {
		return e.maxScore
	}
	return v
}

func (e *Evaluator) aggregate(scores map[string]float64, ideaIndex int) *types.MultiDimEvaluation {
	var weighted, sum float64
	lowest, highest := e.maxScore, e.minScore
	for _, dim := range dimensionOrder {
		s := scores[dim]
		weighted += e.weights[dim] * s
		sum += s
		if s < lowest {
			lowest = s
		}
		if s > highest {
			highest = s
		}
	}
	return &types.MultiDimEvaluation{
		DimensionScores: types.DimensionScores{
			Feasibility:       scores["feasibility"],
			Innovation:        scores["innovation"],
			Impact:            scores["impact"],
			CostEffectiveness: scores["cost_effectiveness"],
			Scalability:       scores["scalability"],
			RiskAssessment:    scores["risk_assessment"],
			Timeline:          scores["timeline"],
		},
		OverallScore:       sum / float64(len(dimensionOrder)),
		WeightedScore:      weighted,
		ConfidenceInterval: (highest - lowest) / 2,
		IdeaIndex:          ideaIndex,
	}
}

func (e *Evaluator) summarize(ctx context.Context, idea, contextText string, eval *types.MultiDimEvaluation) (string, error) {
	payload, _, err := e.router.GenerateStructured(ctx, &types.StructuredRequest{
		Prompt:      summaryPrompt(idea, contextText, eval),
		SchemaName:  "dimension_summary",
		Schema:      dimensionSummarySchema(),
		Temperature: e.temperature,
	})
	if err != nil {
		return "", err
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", types.ErrEmptyResponse
	}
	summary, _ := obj["evaluation_summary"].(string)
	if strings.TrimSpace(summary) == "" {
		return "", types.ErrEmptyResponse
	}
	return summary, nil
}

func dimensionPrompt(dim, idea, contextText string) string {
	return fmt.Sprintf(
		"Rate this idea on the %q dimension from 1 (worst) to 10 (best).\n\nIdea: %s\nContext: %s\n\nReturn JSON: {\"score\": <1-10>, \"reasoning\": \"...\"}.\n\n%s",
		dim, idea, contextText, agents.LanguageInstruction)
}

func batchPrompt(ideas []string, contextText string) string {
	var sb strings.Builder
	sb.WriteString("Rate each idea below on seven dimensions, 1 (worst) to 10 (best): ")
	sb.WriteString(strings.Join(dimensionOrder, ", "))
	sb.WriteString(".\n\nContext: " + contextText + "\n\nIdeas:\n")
	for i, idea := range ideas {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.ReplaceAll(idea, "\n", " "))
	}
	sb.WriteString("\nReturn a JSON array with one object per idea holding all seven dimension scores and \"idea_index\" (0-based input position).")
	sb.WriteString("\n\n" + agents.LanguageInstruction)
	return sb.String()
}

func summaryPrompt(idea, contextText string, eval *types.MultiDimEvaluation) string {
	return fmt.Sprintf(
		"Write a short paragraph summarising this idea's evaluation.\n\nIdea: %s\nContext: %s\nWeighted score: %.2f\nStrongest/weakest spread: %.2f\n\nReturn JSON: {\"evaluation_summary\": \"...\"}.\n\n%s",
		idea, contextText, eval.WeightedScore, eval.ConfidenceInterval, agents.LanguageInstruction)
}

func dimensionScoreSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"score"},
		"properties": map[string]any{
			"score":     map[string]any{"type": "number"},
			"reasoning": map[string]any{"type": "string"},
		},
	}
}

func dimensionScoresListSchema() map[string]any {
	props := map[string]any{
		"idea_index":   map[string]any{"type": "integer"},
		"safety_score": map[string]any{"type": "number"},
	}
	required := make([]any, 0, len(dimensionOrder))
	for _, dim := range dimensionOrder {
		props[dim] = map[string]any{"type": "number"}
		if dim != "risk_assessment" {
			required = append(required, dim)
		}
	}
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"required":   required,
			"properties": props,
		},
	}
}

func dimensionSummarySchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"evaluation_summary"},
		"properties": map[string]any{
			"evaluation_summary": map[string]any{"type": "string"},
		},
	}
}
