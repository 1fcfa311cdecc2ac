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

// Package orchestration composes the six-stage ideation pipeline: generate,
// evaluate, select top-N, advocate and skeptic in parallel, improve, and
// re-evaluate. Batched stages degrade per item instead of failing; only the
// overall timeout, cancellation, and generation failure reach the caller.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/agents"
	"github.com/madspark-labs/madspark/pkg/batch"
	"github.com/madspark-labs/madspark/pkg/evals"
	"github.com/madspark-labs/madspark/pkg/inference"
	"github.com/madspark-labs/madspark/pkg/llm"
	"github.com/madspark-labs/madspark/pkg/novelty"
	"github.com/madspark-labs/madspark/pkg/types"
)

const (
	defaultCallTimeout  = 30 * time.Second
	defaultStageTimeout = 60 * time.Second
	defaultTimeout      = 1200 * time.Second
	defaultMaxCalls     = 10
	maxTopCandidates    = 10
)

// Config holds orchestrator construction options.
type Config struct {
	// Router is required.
	Router *llm.Router
	// Monitor records batch call metrics; nil disables recording.
	Monitor *batch.Monitor
	// PromptDir optionally holds agent prompt overrides.
	PromptDir string
	// Retry controls backoff around agent calls, default 3 attempts.
	Retry agents.RetryConfig
	// CallTimeout bounds each LLM call, default 30s.
	CallTimeout time.Duration
	// StageTimeout bounds each parallel fan-out, default 60s.
	StageTimeout time.Duration
	// MaxConcurrentCalls bounds in-flight LLM calls, default 10.
	MaxConcurrentCalls int
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Options configures one workflow run.
type Options struct {
	// NumTopCandidates in [1, 10], default 1.
	NumTopCandidates int
	// TemperaturePreset names a preset; Temperature overrides it when set.
	TemperaturePreset string
	Temperature       float64
	// DisableReasoning skips the advocate and skeptic stage.
	DisableReasoning bool
	// MultiDimEval adds a multi-dimensional re-evaluation in stage six.
	MultiDimEval bool
	// LogicalInference adds a logical analysis of the improved ideas.
	LogicalInference bool
	// AnalysisType defaults to full.
	AnalysisType types.AnalysisType
	// DisableNoveltyFilter keeps near-duplicate ideas.
	DisableNoveltyFilter bool
	// SimilarityThreshold defaults to 0.8.
	SimilarityThreshold float64
	// Timeout bounds the whole workflow, default 1200s.
	Timeout time.Duration
	// Progress is invoked at stage boundaries. Panics are caught and
	// logged; they never abort the workflow.
	Progress types.ProgressCallback
}

// Orchestrator runs ideation workflows.
type Orchestrator struct {
	router       *llm.Router
	monitor      *batch.Monitor
	promptDir    string
	retry        agents.RetryConfig
	callTimeout  time.Duration
	stageTimeout time.Duration
	sem          chan struct{}
	logger       *zap.Logger
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Router == nil {
		return nil, &types.ConfigError{Field: "router", Reason: "required"}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = defaultStageTimeout
	}
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = defaultMaxCalls
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{
		router:       cfg.Router,
		monitor:      cfg.Monitor,
		promptDir:    cfg.PromptDir,
		retry:        cfg.Retry,
		callTimeout:  cfg.CallTimeout,
		stageTimeout: cfg.StageTimeout,
		sem:          make(chan struct{}, cfg.MaxConcurrentCalls),
		logger:       cfg.Logger,
	}, nil
}

// candidate carries one top-N idea through stages four to six.
type candidate struct {
	idea         types.Idea
	score        int
	critique     string
	advocacy     *types.Advocacy
	skepticism   *types.Skepticism
	improved     types.Improvement
	reevaluation types.Evaluation
	partial      []string
}

// RunWorkflow executes the full pipeline and returns one enriched record
// per selected candidate. Batched stages degrade to placeholders on
// failure; the error return is reserved for generation failure, the overall
// timeout, and cancellation.
func (o *Orchestrator) RunWorkflow(ctx context.Context, topic, contextText string, opts Options) ([]types.EnrichedIdea, error) {
	opts = withDefaults(opts)

	temps, err := temperatureManager(opts)
	if err != nil {
		return nil, err
	}
	caller, err := agents.New(agents.Config{
		Router:    o.router,
		Temps:     temps,
		Retry:     o.retry,
		PromptDir: o.promptDir,
		Logger:    o.logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	report := o.progressReporter(opts.Progress)
	started := time.Now()

	// Stage 1: generate.
	report("generating ideas", 0.0)
	ideas, err := o.generate(ctx, caller, topic, contextText)
	if err != nil {
		return nil, o.terminal(ctx, fmt.Errorf("idea generation: %w", err))
	}
	if !opts.DisableNoveltyFilter {
		filter := novelty.NewFilter(novelty.Config{Threshold: opts.SimilarityThreshold, Logger: o.logger})
		ideas = filter.Filter(ideas)
	}

	// Stage 2: evaluate.
	report("evaluating ideas", 1.0/6)
	evaluations := o.evaluate(ctx, caller, "evaluate", topic, contextText, ideaTexts(ideas), nil)
	if err := ctx.Err(); err != nil {
		return nil, o.terminal(ctx, err)
	}

	// Stage 3: select top-N by initial score, descending, stable.
	report("selecting candidates", 2.0/6)
	candidates := selectTop(ideas, evaluations, opts.NumTopCandidates)

	// Stage 4: advocate and skeptic run concurrently.
	if !opts.DisableReasoning {
		report("running advocate and skeptic", 3.0/6)
		o.advocateAndCriticize(ctx, caller, topic, contextText, candidates)
		if err := ctx.Err(); err != nil {
			return nil, o.terminal(ctx, err)
		}
	}

	// Stage 5: improve.
	report("improving ideas", 4.0/6)
	o.improve(ctx, caller, topic, contextText, candidates)
	if err := ctx.Err(); err != nil {
		return nil, o.terminal(ctx, err)
	}

	// Stage 6: re-evaluate, optionally alongside multi-dim and inference.
	report("re-evaluating improved ideas", 5.0/6)
	multiDim, inferences := o.reevaluate(ctx, caller, topic, contextText, candidates, opts)
	if err := ctx.Err(); err != nil {
		return nil, o.terminal(ctx, err)
	}

	out := assemble(candidates, multiDim, inferences)
	report("workflow complete", 1.0)
	o.logger.Info("workflow complete",
		zap.Int("candidates", len(out)),
		zap.Duration("elapsed", time.Since(started)))
	return out, nil
}

func withDefaults(opts Options) Options {
	if opts.NumTopCandidates < 1 {
		opts.NumTopCandidates = 1
	}
	if opts.NumTopCandidates > maxTopCandidates {
		opts.NumTopCandidates = maxTopCandidates
	}
	if opts.AnalysisType == "" {
		opts.AnalysisType = types.AnalysisFull
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return opts
}

func temperatureManager(opts Options) (*agents.TemperatureManager, error) {
	if opts.Temperature > 0 {
		return agents.NewTemperatureManager(opts.Temperature)
	}
	preset := opts.TemperaturePreset
	if preset == "" {
		preset = "balanced"
	}
	return agents.NewTemperatureManagerFromPreset(preset)
}

// progressReporter shields the workflow from a misbehaving callback.
func (o *Orchestrator) progressReporter(cb types.ProgressCallback) func(string, float64) {
	return func(message string, progress float64) {
		if cb == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				o.logger.Warn("progress callback failed",
					zap.String("message", message), zap.Any("panic", r))
			}
		}()
		cb(message, progress)
	}
}

// acquire takes a semaphore slot, honoring cancellation while waiting.
func (o *Orchestrator) acquire(ctx context.Context) error {
	select {
	case o.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() { <-o.sem }

// guarded runs one LLM call under the semaphore and the per-call timeout.
func guarded[T any](ctx context.Context, o *Orchestrator, fn func(context.Context) (T, int, error)) (T, int, error) {
	var zero T
	if err := o.acquire(ctx); err != nil {
		return zero, 0, err
	}
	defer o.release()
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return fn(callCtx)
}

func (o *Orchestrator) generate(ctx context.Context, caller *agents.Caller, topic, contextText string) ([]types.Idea, error) {
	span := o.monitor.StartBatchCall("generate", 1)
	ideas, tokens, err := guarded(ctx, o, func(ctx context.Context) ([]types.Idea, int, error) {
		return caller.GenerateIdeas(ctx, topic, contextText)
	})
	o.monitor.EndBatchCall(span, batch.EndOptions{
		Success:      err == nil,
		TokensUsed:   tokens,
		ErrorMessage: errText(err),
		EstimateText: topic + "\n" + contextText,
	})
	return ideas, err
}

// evaluate scores texts with per-item fallback. Placeholder scores default
// to zero; fallbackScores (when non-nil) supplies the substitute score per
// item, which the re-evaluation stage uses to carry initial scores forward.
func (o *Orchestrator) evaluate(ctx context.Context, caller *agents.Caller, batchType, topic, contextText string, texts []string, fallbackScores []int) []types.Evaluation {
	role := caller.EvaluateIdeas
	if batchType == "reevaluate" {
		role = caller.ReevaluateIdeas
	}
	return batch.WithFallback(ctx, o.monitor, o.logger, batchType, texts,
		func(ctx context.Context) ([]types.Evaluation, int, error) {
			return guarded(ctx, o, func(ctx context.Context) ([]types.Evaluation, int, error) {
				return role(ctx, topic, contextText, texts)
			})
		},
		func(ctx context.Context, i int) (types.Evaluation, int, error) {
			evs, tokens, err := guarded(ctx, o, func(ctx context.Context) ([]types.Evaluation, int, error) {
				return role(ctx, topic, contextText, []string{texts[i]})
			})
			if err != nil {
				return types.Evaluation{}, tokens, err
			}
			ev := evs[0]
			ev.IdeaIndex = i
			return ev, tokens, nil
		},
		func(i int, err error) types.Evaluation {
			score := 0
			if fallbackScores != nil {
				score = fallbackScores[i]
			}
			return types.Evaluation{
				Score:     score,
				Comment:   fmt.Sprintf("N/A (%v)", err),
				IdeaIndex: i,
			}
		},
	)
}

// selectTop pairs ideas with their evaluations, stably sorts by score
// descending, and keeps the first n.
func selectTop(ideas []types.Idea, evaluations []types.Evaluation, n int) []*candidate {
	paired := make([]*candidate, len(ideas))
	for i, idea := range ideas {
		paired[i] = &candidate{idea: idea, score: evaluations[i].Score, critique: evaluations[i].Comment}
	}
	sort.SliceStable(paired, func(i, j int) bool { return paired[i].score > paired[j].score })
	if n > len(paired) {
		n = len(paired)
	}
	top := paired[:n]
	for i, c := range top {
		c.idea.Index = i
	}
	return top
}

func (o *Orchestrator) advocateAndCriticize(ctx context.Context, caller *agents.Caller, topic, contextText string, candidates []*candidate) {
	items := make([]agents.AdvocacyInput, len(candidates))
	inputTexts := make([]string, len(candidates))
	for i, c := range candidates {
		items[i] = agents.AdvocacyInput{
			Idea:       c.idea.Text,
			Evaluation: fmt.Sprintf("score %d: %s", c.score, orNA(c.critique)),
		}
		inputTexts[i] = c.idea.Text
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	var advocacies []types.Advocacy
	var skepticisms []types.Skepticism
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		advocacies = batch.WithFallback(stageCtx, o.monitor, o.logger, "advocate", inputTexts,
			func(ctx context.Context) ([]types.Advocacy, int, error) {
				return guarded(ctx, o, func(ctx context.Context) ([]types.Advocacy, int, error) {
					return caller.AdvocateIdeasBatch(ctx, topic, contextText, items)
				})
			},
			func(ctx context.Context, i int) (types.Advocacy, int, error) {
				a, tokens, err := guarded(ctx, o, func(ctx context.Context) (*types.Advocacy, int, error) {
					return caller.AdvocateIdea(ctx, topic, contextText, items[i])
				})
				if err != nil {
					return types.Advocacy{}, tokens, err
				}
				a.IdeaIndex = i
				return *a, tokens, nil
			},
			func(i int, err error) types.Advocacy {
				return types.Advocacy{Formatted: fmt.Sprintf("N/A (%v)", err), IdeaIndex: i}
			},
		)
	}()

	go func() {
		defer wg.Done()
		skepticisms = batch.WithFallback(stageCtx, o.monitor, o.logger, "skeptic", inputTexts,
			func(ctx context.Context) ([]types.Skepticism, int, error) {
				return guarded(ctx, o, func(ctx context.Context) ([]types.Skepticism, int, error) {
					return caller.CriticizeIdeasBatch(ctx, topic, contextText, items)
				})
			},
			func(ctx context.Context, i int) (types.Skepticism, int, error) {
				s, tokens, err := guarded(ctx, o, func(ctx context.Context) (*types.Skepticism, int, error) {
					return caller.CriticizeIdea(ctx, topic, contextText, items[i])
				})
				if err != nil {
					return types.Skepticism{}, tokens, err
				}
				s.IdeaIndex = i
				return *s, tokens, nil
			},
			func(i int, err error) types.Skepticism {
				return types.Skepticism{Formatted: fmt.Sprintf("N/A (%v)", err), IdeaIndex: i}
			},
		)
	}()

	wg.Wait()

	for i, c := range candidates {
		a, s := advocacies[i], skepticisms[i]
		c.advocacy, c.skepticism = &a, &s
		if placeholderText(a.Formatted) {
			c.partial = append(c.partial, "advocacy")
		}
		if placeholderText(s.Formatted) {
			c.partial = append(c.partial, "skepticism")
		}
	}
}

func (o *Orchestrator) improve(ctx context.Context, caller *agents.Caller, topic, contextText string, candidates []*candidate) {
	items := make([]agents.ImproveInput, len(candidates))
	inputTexts := make([]string, len(candidates))
	for i, c := range candidates {
		items[i] = agents.ImproveInput{
			Idea:       c.idea.Text,
			Critique:   orNA(c.critique),
			Advocacy:   advocacyText(c.advocacy),
			Skepticism: skepticismText(c.skepticism),
		}
		inputTexts[i] = c.idea.Text
	}

	improvements := batch.WithFallback(ctx, o.monitor, o.logger, "improve", inputTexts,
		func(ctx context.Context) ([]types.Improvement, int, error) {
			return guarded(ctx, o, func(ctx context.Context) ([]types.Improvement, int, error) {
				return caller.ImproveIdeasBatch(ctx, topic, contextText, items)
			})
		},
		func(ctx context.Context, i int) (types.Improvement, int, error) {
			imp, tokens, err := guarded(ctx, o, func(ctx context.Context) (*types.Improvement, int, error) {
				return caller.ImproveIdea(ctx, topic, contextText, items[i])
			})
			if err != nil {
				return types.Improvement{}, tokens, err
			}
			imp.IdeaIndex = i
			return *imp, tokens, nil
		},
		func(i int, err error) types.Improvement {
			// A failed improvement keeps the original idea text.
			return types.Improvement{
				ImprovedTitle:       candidates[i].idea.Title,
				ImprovedDescription: candidates[i].idea.Text,
				KeyImprovements:     []string{fmt.Sprintf("N/A (%v)", err)},
				IdeaIndex:           i,
			}
		},
	)

	for i, c := range candidates {
		c.improved = improvements[i]
		if len(c.improved.KeyImprovements) == 1 && placeholderText(c.improved.KeyImprovements[0]) {
			c.partial = append(c.partial, "improvement")
		}
	}
}

// reevaluate runs the standard re-evaluation, and when enabled the
// multi-dimensional evaluation and logical inference, as one fan-out.
func (o *Orchestrator) reevaluate(ctx context.Context, caller *agents.Caller, topic, contextText string, candidates []*candidate, opts Options) ([]types.MultiDimEvaluation, []types.InferenceResult) {
	texts := make([]string, len(candidates))
	initialScores := make([]int, len(candidates))
	for i, c := range candidates {
		texts[i] = c.improved.DisplayText()
		initialScores[i] = c.score
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	var reevals []types.Evaluation
	var multiDim []types.MultiDimEvaluation
	var inferences []types.InferenceResult

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reevals = o.evaluate(stageCtx, caller, "reevaluate", topic, contextText, texts, initialScores)
	}()

	if opts.MultiDimEval {
		wg.Add(1)
		go func() {
			defer wg.Done()
			multiDim = o.multiDimEvaluate(stageCtx, texts, contextText)
		}()
	}

	if opts.LogicalInference {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inferences = o.inferBatch(stageCtx, texts, topic, contextText, opts.AnalysisType)
		}()
	}

	wg.Wait()

	for i, c := range candidates {
		c.reevaluation = reevals[i]
		// A placeholder comment means the initial score was substituted.
		if placeholderText(reevals[i].Comment) {
			c.partial = append(c.partial, "re_evaluation")
		}
	}

	return multiDim, inferences
}

func (o *Orchestrator) multiDimEvaluate(ctx context.Context, texts []string, contextText string) []types.MultiDimEvaluation {
	evaluator, err := evals.New(evals.Config{
		Router:           o.router,
		DisableSummaries: true,
		Logger:           o.logger,
	})
	if err != nil {
		o.logger.Warn("multi-dimensional evaluator unavailable", zap.Error(err))
		return nil
	}

	span := o.monitor.StartBatchCall("multi_dim_eval", len(texts))
	out, _, callErr := guarded(ctx, o, func(ctx context.Context) ([]types.MultiDimEvaluation, int, error) {
		evs, err := evaluator.EvaluateIdeasBatch(ctx, texts, contextText)
		return evs, 0, err
	})
	o.monitor.EndBatchCall(span, batch.EndOptions{
		Success:      callErr == nil,
		ErrorMessage: errText(callErr),
		EstimateText: strings.Join(texts, "\n"),
	})
	if callErr != nil {
		o.logger.Warn("multi-dimensional evaluation failed", zap.Error(callErr))
		return nil
	}
	return out
}

func (o *Orchestrator) inferBatch(ctx context.Context, texts []string, topic, contextText string, at types.AnalysisType) []types.InferenceResult {
	engine, err := inference.New(inference.Config{Router: o.router, Logger: o.logger})
	if err != nil {
		o.logger.Warn("inference engine unavailable", zap.Error(err))
		return nil
	}

	span := o.monitor.StartBatchCall("logical_inference", len(texts))
	out, _, _ := guarded(ctx, o, func(ctx context.Context) ([]types.InferenceResult, int, error) {
		return engine.AnalyzeBatch(ctx, texts, topic, contextText, at), 0, nil
	})
	o.monitor.EndBatchCall(span, batch.EndOptions{Success: true, EstimateText: strings.Join(texts, "\n")})
	return out
}

// assemble builds the final records. Both the idea and text fields carry
// the improved text; score_delta is improved minus initial.
func assemble(candidates []*candidate, multiDim []types.MultiDimEvaluation, inferences []types.InferenceResult) []types.EnrichedIdea {
	out := make([]types.EnrichedIdea, len(candidates))
	for i, c := range candidates {
		improvedText := c.improved.DisplayText()
		rec := types.EnrichedIdea{
			Idea:             improvedText,
			Text:             improvedText,
			OriginalIdea:     c.idea.Text,
			Score:            c.score,
			Critique:         c.critique,
			Advocacy:         c.advocacy,
			Skepticism:       c.skepticism,
			ImprovedScore:    c.reevaluation.Score,
			ImprovedCritique: c.reevaluation.Comment,
			ScoreDelta:       c.reevaluation.Score - c.score,
			PartialFailures:  c.partial,
			IdeaIndex:        i,
		}
		if i < len(multiDim) {
			md := multiDim[i]
			rec.MultiDim = &md
		}
		if i < len(inferences) {
			inf := inferences[i]
			rec.Inference = &inf
		}
		out[i] = rec
	}
	return out
}

// terminal maps a stage failure to the workflow-level error. Overall
// timeout and cancellation take precedence over the stage's own error.
func (o *Orchestrator) terminal(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("workflow timed out: %w", context.DeadlineExceeded)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("workflow cancelled: %w", context.Canceled)
	}
	return err
}

func ideaTexts(ideas []types.Idea) []string {
	texts := make([]string, len(ideas))
	for i, idea := range ideas {
		texts[i] = idea.Text
	}
	return texts
}

func placeholderText(s string) bool {
	return len(s) >= 5 && s[:5] == "N/A ("
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func advocacyText(a *types.Advocacy) string {
	if a == nil {
		return ""
	}
	return a.Formatted
}

func skepticismText(s *types.Skepticism) string {
	if s == nil {
		return ""
	}
	return s.Formatted
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
