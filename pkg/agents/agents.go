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

// Package agents implements the four LLM-backed roles of the pipeline:
// idea generator, critic, advocate, and skeptic (plus the generator's
// improve variant). Every role has single-item and batch entry points.
// Batch responses are ordered by idea_index and length-checked; a count
// mismatch surfaces as BatchLengthMismatchError so the batch wrapper can
// degrade to per-item calls.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/llm"
	"github.com/madspark-labs/madspark/pkg/parser"
	"github.com/madspark-labs/madspark/pkg/types"
)

// Config holds agent caller construction options.
type Config struct {
	// Router is required.
	Router *llm.Router
	// Temps defaults to the balanced preset.
	Temps *TemperatureManager
	// Retry wraps every LLM call, default 3 attempts.
	Retry RetryConfig
	// PromptDir optionally holds a prompts.yaml with template overrides.
	PromptDir string
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Caller executes agent roles against the router.
type Caller struct {
	router  *llm.Router
	temps   *TemperatureManager
	retry   RetryConfig
	prompts *promptSet
	logger  *zap.Logger
}

// New creates an agent caller.
func New(cfg Config) (*Caller, error) {
	if cfg.Router == nil {
		return nil, &types.ConfigError{Field: "router", Reason: "required"}
	}
	if cfg.Temps == nil {
		cfg.Temps, _ = NewTemperatureManagerFromPreset("balanced")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Caller{
		router:  cfg.Router,
		temps:   cfg.Temps,
		retry:   cfg.Retry,
		prompts: loadPromptSet(cfg.PromptDir),
		logger:  cfg.Logger,
	}, nil
}

// AdvocacyInput is one advocate/skeptic batch element.
type AdvocacyInput struct {
	Idea       string
	Evaluation string
}

// ImproveInput is one improve batch element carrying the accumulated
// feedback for an idea.
type ImproveInput struct {
	Idea       string
	Critique   string
	Advocacy   string
	Skepticism string
}

// GenerateIdeas produces a list of ideas for a topic. Returns the ideas and
// the token count of the call.
func (c *Caller) GenerateIdeas(ctx context.Context, topic, contextText string) ([]types.Idea, int, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, 0, fmt.Errorf("generate: topic is required")
	}

	prompt := c.prompts.render("generate", topic, contextText, "")
	payload, resp, err := c.structured(ctx, "generate_ideas", &types.StructuredRequest{
		Prompt:      prompt,
		SchemaName:  "idea_list",
		Schema:      ideaListSchema(),
		Temperature: c.temps.ForStage(StageGenerate),
	})
	if err != nil {
		return nil, 0, err
	}

	var raw []struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := decode(payload, &raw); err != nil {
		return nil, resp.TokensUsed, fmt.Errorf("generate: %w", err)
	}

	ideas := make([]types.Idea, 0, len(raw))
	for _, r := range raw {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		ideas = append(ideas, types.Idea{
			Text:  text,
			Title: strings.TrimSpace(r.Title),
			Index: len(ideas),
		})
	}
	if len(ideas) == 0 {
		return nil, resp.TokensUsed, fmt.Errorf("generate: %w", types.ErrEmptyResponse)
	}
	return ideas, resp.TokensUsed, nil
}

// EvaluateIdeas scores each idea on the 0-10 scale. Results are ordered by
// idea_index and the list length always matches the input.
func (c *Caller) EvaluateIdeas(ctx context.Context, topic, contextText string, ideas []string) ([]types.Evaluation, int, error) {
	return c.evaluateWith(ctx, "evaluate", "evaluate_ideas", topic, contextText, ideas)
}

// ReevaluateIdeas scores improved ideas with the re-evaluation prompt. The
// prompt differs from the initial one so the critic judges current merit,
// not the delta.
func (c *Caller) ReevaluateIdeas(ctx context.Context, topic, contextText string, ideas []string) ([]types.Evaluation, int, error) {
	return c.evaluateWith(ctx, "reevaluate", "reevaluate_ideas", topic, contextText, ideas)
}

func (c *Caller) evaluateWith(ctx context.Context, role, callName, topic, contextText string, ideas []string) ([]types.Evaluation, int, error) {
	if len(ideas) == 0 {
		return nil, 0, fmt.Errorf("%s: no ideas to evaluate", callName)
	}

	prompt := c.prompts.render(role, topic, contextText, numberedLines(ideas))
	payload, resp, err := c.structured(ctx, callName, &types.StructuredRequest{
		Prompt:      prompt,
		SchemaName:  "evaluation_list",
		Schema:      evaluationListSchema(),
		Temperature: c.temps.ForStage(StageEvaluate),
	})
	if err != nil {
		return nil, 0, err
	}

	var raw []struct {
		Score     json.Number `json:"score"`
		Comment   string      `json:"comment"`
		IdeaIndex int         `json:"idea_index"`
	}
	if err := decode(payload, &raw); err != nil {
		return nil, resp.TokensUsed, fmt.Errorf("%s: %w", callName, err)
	}
	if len(raw) != len(ideas) {
		return nil, resp.TokensUsed, &types.BatchLengthMismatchError{
			Function: callName, Want: len(ideas), Got: len(raw),
		}
	}

	sort.SliceStable(raw, func(i, j int) bool { return raw[i].IdeaIndex < raw[j].IdeaIndex })
	out := make([]types.Evaluation, len(raw))
	for i, r := range raw {
		score, ok := parser.NormalizeScoreValue(r.Score)
		if !ok {
			score = 0
		}
		out[i] = types.Evaluation{Score: score, Comment: r.Comment, IdeaIndex: i}
	}
	return out, resp.TokensUsed, nil
}

// AdvocateIdea is the single-item advocate variant used by fallback paths.
func (c *Caller) AdvocateIdea(ctx context.Context, topic, contextText string, item AdvocacyInput) (*types.Advocacy, int, error) {
	list, tokens, err := c.AdvocateIdeasBatch(ctx, topic, contextText, []AdvocacyInput{item})
	if err != nil {
		return nil, tokens, err
	}
	return &list[0], tokens, nil
}

// AdvocateIdeasBatch produces an Advocacy per idea in one call.
func (c *Caller) AdvocateIdeasBatch(ctx context.Context, topic, contextText string, items []AdvocacyInput) ([]types.Advocacy, int, error) {
	if err := validateAdvocacyInputs("advocate", items); err != nil {
		return nil, 0, err
	}

	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%s (evaluation: %s)", it.Idea, it.Evaluation)
	}
	prompt := c.prompts.render("advocate", topic, contextText, numberedLines(lines))
	payload, resp, err := c.structured(ctx, "advocate_ideas_batch", &types.StructuredRequest{
		Prompt:      prompt,
		SchemaName:  "advocacy_list",
		Schema:      advocacyListSchema(),
		Temperature: c.temps.ForStage(StageAdvocate),
	})
	if err != nil {
		return nil, 0, err
	}

	var raw []struct {
		Strengths          []types.TitledPoint     `json:"strengths"`
		Opportunities      []types.TitledPoint     `json:"opportunities"`
		AddressingConcerns []types.ConcernResponse `json:"addressing_concerns"`
		IdeaIndex          int                     `json:"idea_index"`
	}
	if err := decode(payload, &raw); err != nil {
		return nil, resp.TokensUsed, fmt.Errorf("advocate: %w", err)
	}
	if len(raw) != len(items) {
		return nil, resp.TokensUsed, &types.BatchLengthMismatchError{
			Function: "advocate_ideas_batch", Want: len(items), Got: len(raw),
		}
	}

	sort.SliceStable(raw, func(i, j int) bool { return raw[i].IdeaIndex < raw[j].IdeaIndex })
	out := make([]types.Advocacy, len(raw))
	for i, r := range raw {
		a := types.Advocacy{
			Strengths:          r.Strengths,
			Opportunities:      r.Opportunities,
			AddressingConcerns: r.AddressingConcerns,
			IdeaIndex:          i,
		}
		a.Formatted = formatAdvocacy(&a)
		out[i] = a
	}
	return out, resp.TokensUsed, nil
}

// CriticizeIdea is the single-item skeptic variant used by fallback paths.
func (c *Caller) CriticizeIdea(ctx context.Context, topic, contextText string, item AdvocacyInput) (*types.Skepticism, int, error) {
	list, tokens, err := c.CriticizeIdeasBatch(ctx, topic, contextText, []AdvocacyInput{item})
	if err != nil {
		return nil, tokens, err
	}
	return &list[0], tokens, nil
}

// CriticizeIdeasBatch produces a Skepticism per idea in one call.
func (c *Caller) CriticizeIdeasBatch(ctx context.Context, topic, contextText string, items []AdvocacyInput) ([]types.Skepticism, int, error) {
	if err := validateAdvocacyInputs("skeptic", items); err != nil {
		return nil, 0, err
	}

	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%s (evaluation: %s)", it.Idea, it.Evaluation)
	}
	prompt := c.prompts.render("skeptic", topic, contextText, numberedLines(lines))
	payload, resp, err := c.structured(ctx, "criticize_ideas_batch", &types.StructuredRequest{
		Prompt:      prompt,
		SchemaName:  "skepticism_list",
		Schema:      skepticismListSchema(),
		Temperature: c.temps.ForStage(StageSkeptic),
	})
	if err != nil {
		return nil, 0, err
	}

	var raw []struct {
		CriticalFlaws           flexStrings `json:"critical_flaws"`
		RisksChallenges         flexStrings `json:"risks_challenges"`
		QuestionableAssumptions flexStrings `json:"questionable_assumptions"`
		MissingConsiderations   flexStrings `json:"missing_considerations"`
		IdeaIndex               int         `json:"idea_index"`
	}
	if err := decode(payload, &raw); err != nil {
		return nil, resp.TokensUsed, fmt.Errorf("skeptic: %w", err)
	}
	if len(raw) != len(items) {
		return nil, resp.TokensUsed, &types.BatchLengthMismatchError{
			Function: "criticize_ideas_batch", Want: len(items), Got: len(raw),
		}
	}

	sort.SliceStable(raw, func(i, j int) bool { return raw[i].IdeaIndex < raw[j].IdeaIndex })
	out := make([]types.Skepticism, len(raw))
	for i, r := range raw {
		s := types.Skepticism{
			CriticalFlaws:           r.CriticalFlaws,
			RisksChallenges:         r.RisksChallenges,
			QuestionableAssumptions: r.QuestionableAssumptions,
			MissingConsiderations:   r.MissingConsiderations,
			IdeaIndex:               i,
		}
		s.Formatted = formatSkepticism(&s)
		out[i] = s
	}
	return out, resp.TokensUsed, nil
}

// ImproveIdea is the single-item improve variant used by fallback paths.
func (c *Caller) ImproveIdea(ctx context.Context, topic, contextText string, item ImproveInput) (*types.Improvement, int, error) {
	list, tokens, err := c.ImproveIdeasBatch(ctx, topic, contextText, []ImproveInput{item})
	if err != nil {
		return nil, tokens, err
	}
	return &list[0], tokens, nil
}

// ImproveIdeasBatch rewrites each idea using its accumulated feedback.
func (c *Caller) ImproveIdeasBatch(ctx context.Context, topic, contextText string, items []ImproveInput) ([]types.Improvement, int, error) {
	for i, it := range items {
		if strings.TrimSpace(it.Idea) == "" {
			return nil, 0, fmt.Errorf("improve input %d: missing idea", i)
		}
		if strings.TrimSpace(it.Critique) == "" {
			return nil, 0, fmt.Errorf("improve input %d: missing critique", i)
		}
	}
	if len(items) == 0 {
		return nil, 0, fmt.Errorf("improve: no items")
	}

	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%s | critique: %s | advocacy: %s | skepticism: %s",
			it.Idea, it.Critique, compact(it.Advocacy), compact(it.Skepticism))
	}
	prompt := c.prompts.render("improve", topic, contextText, numberedLines(lines))
	payload, resp, err := c.structured(ctx, "improve_ideas_batch", &types.StructuredRequest{
		Prompt:      prompt,
		SchemaName:  "improvement_list",
		Schema:      improvementListSchema(),
		Temperature: c.temps.ForStage(StageImprove),
	})
	if err != nil {
		return nil, 0, err
	}

	var raw []types.Improvement
	if err := decode(payload, &raw); err != nil {
		return nil, resp.TokensUsed, fmt.Errorf("improve: %w", err)
	}
	if len(raw) != len(items) {
		return nil, resp.TokensUsed, &types.BatchLengthMismatchError{
			Function: "improve_ideas_batch", Want: len(items), Got: len(raw),
		}
	}

	sort.SliceStable(raw, func(i, j int) bool { return raw[i].IdeaIndex < raw[j].IdeaIndex })
	for i := range raw {
		raw[i].IdeaIndex = i
	}
	return raw, resp.TokensUsed, nil
}

func (c *Caller) structured(ctx context.Context, name string, req *types.StructuredRequest) (any, *types.LLMResponse, error) {
	type pair struct {
		payload any
		resp    *types.LLMResponse
	}
	result, err := CallWithRetry(ctx, c.retry, c.logger, name, func(ctx context.Context) (pair, error) {
		payload, resp, err := c.router.GenerateStructured(ctx, req)
		return pair{payload, resp}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return result.payload, result.resp, nil
}

func validateAdvocacyInputs(role string, items []AdvocacyInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%s: no items", role)
	}
	for i, it := range items {
		if strings.TrimSpace(it.Idea) == "" {
			return fmt.Errorf("%s input %d: missing idea", role, i)
		}
		if strings.TrimSpace(it.Evaluation) == "" {
			return fmt.Errorf("%s input %d: missing evaluation", role, i)
		}
	}
	return nil
}

// decode round-trips a parsed payload into a typed destination.
func decode(payload any, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// flexStrings accepts both plain strings and {title, description} objects.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			title, _ := v["title"].(string)
			desc, _ := v["description"].(string)
			switch {
			case title != "" && desc != "":
				out = append(out, title+": "+desc)
			case title != "":
				out = append(out, title)
			case desc != "":
				out = append(out, desc)
			}
		}
	}
	*f = out
	return nil
}

func formatAdvocacy(a *types.Advocacy) string {
	var sb strings.Builder
	sb.WriteString("STRENGTHS:\n")
	for _, s := range a.Strengths {
		fmt.Fprintf(&sb, "  • %s: %s\n", s.Title, s.Description)
	}
	sb.WriteString("OPPORTUNITIES:\n")
	for _, o := range a.Opportunities {
		fmt.Fprintf(&sb, "  • %s: %s\n", o.Title, o.Description)
	}
	sb.WriteString("ADDRESSING CONCERNS:\n")
	for _, c := range a.AddressingConcerns {
		fmt.Fprintf(&sb, "  • %s: %s\n", c.Concern, c.Response)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func formatSkepticism(s *types.Skepticism) string {
	var sb strings.Builder
	section := func(title string, items []string) {
		sb.WriteString(title + ":\n")
		for _, item := range items {
			fmt.Fprintf(&sb, "  • %s\n", item)
		}
	}
	section("CRITICAL FLAWS", s.CriticalFlaws)
	section("RISKS & CHALLENGES", s.RisksChallenges)
	section("QUESTIONABLE ASSUMPTIONS", s.QuestionableAssumptions)
	section("MISSING CONSIDERATIONS", s.MissingConsiderations)
	return strings.TrimSuffix(sb.String(), "\n")
}

// compact flattens multi-line feedback for prompt embedding.
func compact(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if s == "" {
		return "N/A"
	}
	return s
}
