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

// Package types defines the core data structures shared across the MadSpark
// pipeline: ideas and their enrichments, agent payloads, LLM request and
// response shapes, and the provider interface implemented by the llm
// subpackages.
package types

import (
	"context"
	"time"
)

// Idea is a single generated idea before enrichment.
type Idea struct {
	// Text is the idea content.
	Text string `json:"text"`
	// Title is an optional short label.
	Title string `json:"title,omitempty"`
	// Index is the idea's position in the generation batch (0-based).
	Index int `json:"index"`
}

// Evaluation is the critic's verdict for one idea. Score is an integer on a
// 0-10 scale after validation: fractional inputs round half-up, out-of-range
// inputs clamp.
type Evaluation struct {
	Score     int    `json:"score"`
	Comment   string `json:"comment"`
	IdeaIndex int    `json:"idea_index"`
}

// TitledPoint is a titled bullet used in advocacy output.
type TitledPoint struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ConcernResponse pairs a raised concern with the advocate's answer.
type ConcernResponse struct {
	Concern  string `json:"concern"`
	Response string `json:"response"`
}

// Advocacy is the advocate's structured case for an idea. Formatted holds
// the bullet-point rendering used for display and as improvement input.
type Advocacy struct {
	Strengths          []TitledPoint     `json:"strengths"`
	Opportunities      []TitledPoint     `json:"opportunities"`
	AddressingConcerns []ConcernResponse `json:"addressing_concerns"`
	Formatted          string            `json:"formatted,omitempty"`
	IdeaIndex          int               `json:"idea_index"`
}

// Skepticism is the skeptic's structured critique of an idea. Items arrive
// from the model as plain strings or titled objects; the agent layer
// normalises titled objects to "title: description" strings.
type Skepticism struct {
	CriticalFlaws           []string `json:"critical_flaws"`
	RisksChallenges         []string `json:"risks_challenges"`
	QuestionableAssumptions []string `json:"questionable_assumptions"`
	MissingConsiderations   []string `json:"missing_considerations"`
	Formatted               string   `json:"formatted,omitempty"`
	IdeaIndex               int      `json:"idea_index"`
}

// Improvement is the improver's rewritten idea.
type Improvement struct {
	ImprovedTitle       string   `json:"improved_title"`
	ImprovedDescription string   `json:"improved_description"`
	KeyImprovements     []string `json:"key_improvements"`
	ImplementationSteps []string `json:"implementation_steps,omitempty"`
	Differentiators     []string `json:"differentiators,omitempty"`
	IdeaIndex           int      `json:"idea_index"`
}

// DisplayText renders the improvement as title, blank line, description.
func (im *Improvement) DisplayText() string {
	if im.ImprovedTitle == "" {
		return im.ImprovedDescription
	}
	if im.ImprovedDescription == "" {
		return im.ImprovedTitle
	}
	return im.ImprovedTitle + "\n\n" + im.ImprovedDescription
}

// DimensionScores holds the seven evaluation dimensions on a 1-10 scale.
// The canonical name for the safety dimension is risk_assessment; the
// evaluator accepts safety_score as an input alias.
type DimensionScores struct {
	Feasibility       float64 `json:"feasibility"`
	Innovation        float64 `json:"innovation"`
	Impact            float64 `json:"impact"`
	CostEffectiveness float64 `json:"cost_effectiveness"`
	Scalability       float64 `json:"scalability"`
	RiskAssessment    float64 `json:"risk_assessment"`
	Timeline          float64 `json:"timeline"`
}

// MultiDimEvaluation is the multi-dimensional assessment of one idea.
type MultiDimEvaluation struct {
	DimensionScores DimensionScores `json:"dimension_scores"`
	// OverallScore is the unweighted arithmetic mean of the dimensions.
	OverallScore float64 `json:"overall_score"`
	// WeightedScore is the weight-adjusted mean.
	WeightedScore float64 `json:"weighted_score"`
	// ConfidenceInterval is half the spread between the highest and lowest
	// dimension score.
	ConfidenceInterval float64 `json:"confidence_interval"`
	EvaluationSummary  string  `json:"evaluation_summary,omitempty"`
	IdeaIndex          int     `json:"idea_index"`
}

// AnalysisType selects the logical-inference prompt and response shape.
type AnalysisType string

const (
	AnalysisFull          AnalysisType = "full"
	AnalysisCausal        AnalysisType = "causal"
	AnalysisConstraints   AnalysisType = "constraints"
	AnalysisContradiction AnalysisType = "contradiction"
	AnalysisImplications  AnalysisType = "implications"
)

// Contradiction is one detected inconsistency between two statements.
type Contradiction struct {
	Statement1 string `json:"statement1"`
	Statement2 string `json:"statement2"`
	Severity   string `json:"severity"`
}

// InferenceResult is the logical-inference engine's output for one idea.
// AnalysisType determines which optional sections are populated. On failure
// Confidence is 0 and Conclusion or Error carries the reason.
type InferenceResult struct {
	AnalysisType AnalysisType `json:"analysis_type"`

	InferenceChain []string `json:"inference_chain"`
	Conclusion     string   `json:"conclusion"`
	// Confidence is in [0, 1], rounded to two decimal places.
	Confidence   float64 `json:"confidence"`
	Improvements string  `json:"improvements,omitempty"`

	// Causal analysis.
	CausalChain   []string `json:"causal_chain,omitempty"`
	FeedbackLoops []string `json:"feedback_loops,omitempty"`
	RootCause     string   `json:"root_cause,omitempty"`

	// Constraint analysis.
	ConstraintSatisfaction map[string]float64 `json:"constraint_satisfaction,omitempty"`
	OverallSatisfaction    float64            `json:"overall_satisfaction,omitempty"`
	TradeOffs              []string           `json:"trade_offs,omitempty"`

	// Contradiction analysis.
	Contradictions []Contradiction `json:"contradictions,omitempty"`
	Resolution     string          `json:"resolution,omitempty"`

	// Implications analysis.
	Implications       []string `json:"implications,omitempty"`
	SecondOrderEffects []string `json:"second_order_effects,omitempty"`

	Error     string `json:"error,omitempty"`
	IdeaIndex int    `json:"idea_index"`
}

// EnrichedIdea is the pipeline's final per-idea record.
//
// Idea and Text both carry the improved idea text; downstream consumers read
// either name, so the orchestrator keeps them equal.
type EnrichedIdea struct {
	Idea string `json:"idea"`
	Text string `json:"text"`

	OriginalIdea string `json:"original_idea"`
	Score        int    `json:"score"`
	Critique     string `json:"critique,omitempty"`

	Advocacy   *Advocacy   `json:"advocacy,omitempty"`
	Skepticism *Skepticism `json:"skepticism,omitempty"`

	ImprovedScore    int    `json:"improved_score"`
	ImprovedCritique string `json:"improved_critique,omitempty"`
	ScoreDelta       int    `json:"score_delta"`

	MultiDim  *MultiDimEvaluation `json:"multi_dimensional_evaluation,omitempty"`
	Inference *InferenceResult    `json:"logical_inference,omitempty"`

	// PartialFailures lists stages that substituted estimated or degraded
	// data for this idea.
	PartialFailures []string `json:"partial_failures,omitempty"`

	IdeaIndex int `json:"idea_index"`
}

// LLMResponse is the provider-level metadata for one LLM call. It travels
// alongside validated payloads so the monitor and cache can account for
// every call.
type LLMResponse struct {
	// Text is the raw model output.
	Text string `json:"text"`
	// Provider is the provider name that served the call.
	Provider string `json:"provider"`
	// Model is the concrete model identifier.
	Model string `json:"model"`
	// TokensUsed is total token consumption, zero when unknown.
	TokensUsed int `json:"tokens_used"`
	// LatencyMS is wall-clock call duration in milliseconds.
	LatencyMS int64 `json:"latency_ms"`
	// Cost is the estimated dollar cost, zero for local providers.
	Cost float64 `json:"cost"`
	// Cached marks responses served from the disk cache.
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchMetrics is one monitored batch call, persisted as a JSONL line.
type BatchMetrics struct {
	Timestamp        time.Time `json:"timestamp"`
	BatchType        string    `json:"batch_type"`
	ItemsCount       int       `json:"items_count"`
	TokensUsed       int       `json:"tokens_used,omitempty"`
	// TokensEstimated marks a token count derived from the prompt text
	// because the provider reported no usage.
	TokensEstimated  bool      `json:"tokens_estimated,omitempty"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd,omitempty"`
	DurationSeconds  float64   `json:"duration_seconds"`
	Success          bool      `json:"success"`
	FallbackUsed     bool      `json:"fallback_used"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// StructuredRequest describes one structured-output LLM call.
type StructuredRequest struct {
	// Prompt is the user prompt.
	Prompt string
	// SystemInstruction is the optional system prompt.
	SystemInstruction string
	// SchemaName is the fully qualified name of the expected schema.
	SchemaName string
	// Schema is the JSON Schema the response must satisfy. Nil means the
	// response is parsed but not validated.
	Schema map[string]any
	// Temperature is the sampling temperature in [0, 1].
	Temperature float64
	// MaxTokens caps the response length; zero uses the provider default.
	MaxTokens int

	// Multimodal context. Providers that cannot consume a modality
	// reference it textually in the prompt instead.
	Images []string
	Files  []string
	URLs   []string
}

// LLMProvider is implemented by each backend (ollama, anthropic, mock).
type LLMProvider interface {
	// GenerateStructured runs one structured-output call and returns the
	// parsed JSON value alongside the raw response metadata.
	GenerateStructured(ctx context.Context, req *StructuredRequest) (any, *LLMResponse, error)

	// Generate runs one plain-text call.
	Generate(ctx context.Context, prompt string, temperature float64) (*LLMResponse, error)

	// Name returns the provider name ("ollama", "anthropic", "mock").
	Name() string

	// Model returns the configured model identifier.
	Model() string

	// Available reports whether the provider can serve calls right now.
	Available(ctx context.Context) bool
}

// ProgressCallback receives workflow stage updates. Progress is in [0, 1].
// Callback panics and errors are swallowed by the orchestrator.
type ProgressCallback func(message string, progress float64)

// Bookmark is one saved idea in the bookmark store.
type Bookmark struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Topic        string    `json:"topic"`
	Context      string    `json:"context"`
	Score        int       `json:"score"`
	Critique     string    `json:"critique,omitempty"`
	Advocacy     string    `json:"advocacy,omitempty"`
	Skepticism   string    `json:"skepticism,omitempty"`
	BookmarkedAt time.Time `json:"bookmarked_at"`
	Tags         []string  `json:"tags,omitempty"`
}
