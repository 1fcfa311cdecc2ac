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

package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madspark-labs/madspark/pkg/llm"
	"github.com/madspark-labs/madspark/pkg/types"
)

// scriptedProvider returns a fixed payload for every structured call.
type scriptedProvider struct {
	payload any
	err     error
}

var _ types.LLMProvider = (*scriptedProvider)(nil)

func (s *scriptedProvider) GenerateStructured(_ context.Context, _ *types.StructuredRequest) (any, *types.LLMResponse, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.payload, &types.LLMResponse{Provider: "ollama", Model: "m", TokensUsed: 10, Timestamp: time.Now()}, nil
}

func (s *scriptedProvider) Generate(_ context.Context, prompt string, _ float64) (*types.LLMResponse, error) {
	return &types.LLMResponse{Text: prompt, Provider: "ollama", Model: "m"}, nil
}

func (s *scriptedProvider) Name() string                     { return "ollama" }
func (s *scriptedProvider) Model() string                    { return "m" }
func (s *scriptedProvider) Available(_ context.Context) bool { return true }

func newCaller(t *testing.T, payload any) *Caller {
	t.Helper()
	router := llm.New(llm.Config{Provider: "local", Local: &scriptedProvider{payload: payload}})
	c, err := New(Config{Router: router})
	require.NoError(t, err)
	return c
}

func newMockCaller(t *testing.T) *Caller {
	t.Helper()
	router := llm.New(llm.Config{Provider: "mock"})
	c, err := New(Config{Router: router})
	require.NoError(t, err)
	return c
}

func TestNewRequiresRouter(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	var cfgErr *types.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestGenerateIdeas(t *testing.T) {
	c := newCaller(t, []any{
		map[string]any{"title": "Solar benches", "text": "Benches that charge phones"},
		map[string]any{"title": "", "text": "Bike trains for commuters"},
		map[string]any{"title": "Empty", "text": "   "},
	})

	ideas, tokens, err := c.GenerateIdeas(context.Background(), "urban transport", "low budget")
	require.NoError(t, err)
	assert.Equal(t, 10, tokens)
	require.Len(t, ideas, 2)
	assert.Equal(t, 0, ideas[0].Index)
	assert.Equal(t, 1, ideas[1].Index)
	assert.Equal(t, "Benches that charge phones", ideas[0].Text)
}

func TestEvaluateIdeasClampsAndOrders(t *testing.T) {
	// Out of order, out of range, fractional.
	c := newCaller(t, []any{
		map[string]any{"score": float64(15), "comment": "b", "idea_index": float64(1)},
		map[string]any{"score": float64(-5), "comment": "a", "idea_index": float64(0)},
		map[string]any{"score": 7.6, "comment": "c", "idea_index": float64(2)},
	})

	evals, _, err := c.EvaluateIdeas(context.Background(), "t", "ctx", []string{"i1", "i2", "i3"})
	require.NoError(t, err)
	require.Len(t, evals, 3)

	assert.Equal(t, 0, evals[0].Score)
	assert.Equal(t, "a", evals[0].Comment)
	assert.Equal(t, 10, evals[1].Score)
	assert.Equal(t, 8, evals[2].Score)
	for i, e := range evals {
		assert.Equal(t, i, e.IdeaIndex)
	}
}

func TestEvaluateLengthMismatch(t *testing.T) {
	c := newCaller(t, []any{
		map[string]any{"score": float64(5), "comment": "only one", "idea_index": float64(0)},
	})

	_, _, err := c.EvaluateIdeas(context.Background(), "t", "ctx", []string{"i1", "i2"})
	require.Error(t, err)
	var mismatch *types.BatchLengthMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 2, mismatch.Want)
	assert.Equal(t, 1, mismatch.Got)
}

func TestAdvocateBatchFormatted(t *testing.T) {
	c := newMockCaller(t)

	items := []AdvocacyInput{
		{Idea: "solar benches", Evaluation: "score 8: solid"},
		{Idea: "bike trains", Evaluation: "score 6: fine"},
	}
	advocacies, tokens, err := c.AdvocateIdeasBatch(context.Background(), "transport", "budget", items)
	require.NoError(t, err)
	assert.Zero(t, tokens)
	require.Len(t, advocacies, 2)
	for i, a := range advocacies {
		assert.Equal(t, i, a.IdeaIndex)
		assert.Contains(t, a.Formatted, "STRENGTHS:")
		assert.Contains(t, a.Formatted, "[DEGRADED MODE]")
	}
}

func TestAdvocateInputValidation(t *testing.T) {
	c := newMockCaller(t)

	_, _, err := c.AdvocateIdeasBatch(context.Background(), "t", "c", []AdvocacyInput{{Idea: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing evaluation")

	_, _, err = c.AdvocateIdeasBatch(context.Background(), "t", "c", []AdvocacyInput{{Evaluation: "e"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing idea")
}

func TestCriticizeBatchNormalizesTitledItems(t *testing.T) {
	c := newCaller(t, []any{
		map[string]any{
			"critical_flaws": []any{
				"plain string flaw",
				map[string]any{"title": "Cost", "description": "too expensive"},
			},
			"risks_challenges":         []any{"risk"},
			"questionable_assumptions": []any{},
			"missing_considerations":   []any{},
			"idea_index":               float64(0),
		},
	})

	skepticisms, _, err := c.CriticizeIdeasBatch(context.Background(), "t", "c",
		[]AdvocacyInput{{Idea: "i", Evaluation: "e"}})
	require.NoError(t, err)
	require.Len(t, skepticisms, 1)
	assert.Equal(t, []string{"plain string flaw", "Cost: too expensive"}, skepticisms[0].CriticalFlaws)
	assert.Contains(t, skepticisms[0].Formatted, "CRITICAL FLAWS:")
}

func TestImproveBatchValidationAndOrdering(t *testing.T) {
	c := newCaller(t, []any{
		map[string]any{"improved_title": "B", "improved_description": "bb", "idea_index": float64(1)},
		map[string]any{"improved_title": "A", "improved_description": "aa", "idea_index": float64(0)},
	})

	items := []ImproveInput{
		{Idea: "a", Critique: "ca", Advocacy: "adv", Skepticism: "sk"},
		{Idea: "b", Critique: "cb", Advocacy: "adv", Skepticism: "sk"},
	}
	improvements, _, err := c.ImproveIdeasBatch(context.Background(), "t", "c", items)
	require.NoError(t, err)
	require.Len(t, improvements, 2)
	assert.Equal(t, "A", improvements[0].ImprovedTitle)
	assert.Equal(t, "B", improvements[1].ImprovedTitle)

	_, _, err = c.ImproveIdeasBatch(context.Background(), "t", "c",
		[]ImproveInput{{Idea: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing critique")
}

func TestLanguageInstructionInPrompt(t *testing.T) {
	ps := loadPromptSet("")
	prompt := ps.render("generate", "消滅可能性都市の再生", "低コスト", "")
	assert.Contains(t, prompt, LanguageInstruction)
	assert.Contains(t, prompt, "消滅可能性都市の再生")
}

func TestMockPipelinePreservesLanguage(t *testing.T) {
	c := newMockCaller(t)

	ideas, _, err := c.GenerateIdeas(context.Background(), "消滅可能性都市の再生", "低コスト")
	require.NoError(t, err)
	require.NotEmpty(t, ideas)
	assert.Contains(t, ideas[0].Text, "消滅可能性都市")
}

func TestImprovementDisplayText(t *testing.T) {
	im := types.Improvement{ImprovedTitle: "Title", ImprovedDescription: "Description"}
	assert.Equal(t, "Title\n\nDescription", im.DisplayText())
}
