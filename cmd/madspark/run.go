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
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/batch"
	"github.com/madspark-labs/madspark/pkg/cache"
	"github.com/madspark-labs/madspark/pkg/config"
	"github.com/madspark-labs/madspark/pkg/llm"
	"github.com/madspark-labs/madspark/pkg/orchestration"
	"github.com/madspark-labs/madspark/pkg/types"
)

var runFlags struct {
	provider            string
	modelTier           string
	noFallback          bool
	noCache             bool
	clearCache          bool
	timeout             int
	top                 int
	temperaturePreset   string
	temperature         float64
	noReasoning         bool
	multiDim            bool
	logicalInference    bool
	analysisType        string
	noNoveltyFilter     bool
	similarityThreshold float64
	outputMode          string
	bookmarkResults     bool
	bookmarkTags        []string
	verbose             bool
}

var runCmd = &cobra.Command{
	Use:   "run <topic> [context]",
	Short: "Run the ideation pipeline for a topic",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runIdeation,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.provider, "provider", "", "LLM provider: auto, local, remote, or mock")
	f.StringVar(&runFlags.modelTier, "model-tier", "", "model tier: fast, balanced, or quality")
	f.BoolVar(&runFlags.noFallback, "no-fallback", false, "disable provider fallback")
	f.BoolVar(&runFlags.noCache, "no-cache", false, "disable the response cache")
	f.BoolVar(&runFlags.clearCache, "clear-cache", false, "clear the response cache before running")
	f.IntVar(&runFlags.timeout, "timeout", 0, "overall workflow timeout in seconds")
	f.IntVar(&runFlags.top, "top", 1, "number of top candidates to develop (1-10)")
	f.StringVar(&runFlags.temperaturePreset, "temperature-preset", "", "preset: conservative, balanced, creative, or wild")
	f.Float64Var(&runFlags.temperature, "temperature", 0, "explicit base temperature in [0, 1]")
	f.BoolVar(&runFlags.noReasoning, "no-reasoning", false, "skip the advocate and skeptic stage")
	f.BoolVar(&runFlags.multiDim, "multi-dim", false, "add a multi-dimensional re-evaluation")
	f.BoolVar(&runFlags.logicalInference, "logical-inference", false, "add a logical analysis of the improved ideas")
	f.StringVar(&runFlags.analysisType, "analysis-type", "full", "inference type: full, causal, constraints, contradiction, or implications")
	f.BoolVar(&runFlags.noNoveltyFilter, "no-novelty-filter", false, "keep near-duplicate ideas")
	f.Float64Var(&runFlags.similarityThreshold, "similarity-threshold", 0, "novelty similarity threshold in (0, 1]")
	f.StringVar(&runFlags.outputMode, "output", "simple", "output mode: brief, simple, or detailed")
	f.BoolVar(&runFlags.bookmarkResults, "bookmark-results", false, "save each result as a bookmark")
	f.StringSliceVar(&runFlags.bookmarkTags, "bookmark-tags", nil, "tags to attach to saved bookmarks")
	f.BoolVar(&runFlags.verbose, "verbose", false, "log progress and router metrics")
}

func runIdeation(cmd *cobra.Command, args []string) error {
	topic := args[0]
	contextText := ""
	if len(args) > 1 {
		contextText = args[1]
	}

	settings := config.Load()
	logger := zap.NewNop()
	if runFlags.verbose {
		dev, err := zap.NewDevelopment()
		if err == nil {
			logger = dev
		}
	}
	defer func() { _ = logger.Sync() }()

	var responseCache *cache.Cache
	if settings.CacheEnabled && !runFlags.noCache {
		c, err := cache.New(cache.Config{
			Dir:       settings.CacheDir,
			TTL:       settings.CacheTTL,
			MaxSizeMB: settings.CacheMaxSizeMB,
			Logger:    logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cache unavailable: %v\n", err)
		} else {
			responseCache = c
			defer func() { _ = responseCache.Close() }()
		}
	}
	if runFlags.clearCache {
		if err := responseCache.Clear(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cache clear failed: %v\n", err)
		}
	}

	router := llm.New(llm.Config{
		Provider:        runFlags.provider,
		ModelTier:       runFlags.modelTier,
		FallbackEnabled: settings.FallbackEnabled && !runFlags.noFallback,
		Cache:           responseCache,
		CacheTTL:        settings.CacheTTL,
		Settings:        settings,
		Logger:          logger,
	})

	monitor := batch.NewMonitor(batch.MonitorConfig{
		Path:   batchLogPath(settings),
		Logger: logger,
	})

	orch, err := orchestration.New(orchestration.Config{
		Router:  router,
		Monitor: monitor,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	opts := orchestration.Options{
		NumTopCandidates:     runFlags.top,
		TemperaturePreset:    runFlags.temperaturePreset,
		Temperature:          runFlags.temperature,
		DisableReasoning:     runFlags.noReasoning,
		MultiDimEval:         runFlags.multiDim,
		LogicalInference:     runFlags.logicalInference,
		AnalysisType:         types.AnalysisType(runFlags.analysisType),
		DisableNoveltyFilter: runFlags.noNoveltyFilter,
		SimilarityThreshold:  runFlags.similarityThreshold,
		Timeout:              time.Duration(runFlags.timeout) * time.Second,
		Progress: func(message string, progress float64) {
			fmt.Fprintf(os.Stderr, "[%3.0f%%] %s\n", progress*100, message)
		},
	}
	if opts.Timeout <= 0 {
		opts.Timeout = settings.WorkflowTimeout
	}

	results, err := orch.RunWorkflow(cmd.Context(), topic, contextText, opts)
	if err != nil {
		return err
	}

	printResults(os.Stdout, results, runFlags.outputMode)

	if runFlags.bookmarkResults {
		if err := saveBookmarks(results, topic, contextText, runFlags.bookmarkTags); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: bookmark save failed: %v\n", err)
		}
	}

	if runFlags.verbose {
		m := router.Metrics()
		fmt.Fprintf(os.Stderr, "\nLLM calls: %d  cache hits: %d  tokens: %d  cost: $%.4f\n",
			m.TotalRequests, m.CacheHits, m.TotalTokens, m.TotalCost)
	}
	return nil
}

// batchLogPath resolves the metrics log location; empty disables logging.
func batchLogPath(settings *config.Settings) string {
	if settings.BatchLogPath != "" {
		return settings.BatchLogPath
	}
	dir, err := config.DataDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "batch_metrics.jsonl")
}
