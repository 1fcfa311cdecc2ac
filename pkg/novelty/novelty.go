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

// Package novelty deduplicates near-identical ideas using text similarity.
// Pairwise similarity is the common-text ratio from a character-level diff;
// when two ideas meet the threshold the earlier one survives.
package novelty

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/types"
)

// DefaultThreshold is the similarity at or above which two ideas are
// considered duplicates.
const DefaultThreshold = 0.8

// Filter removes near-duplicate ideas.
type Filter struct {
	threshold float64
	logger    *zap.Logger
}

// Config holds filter options.
type Config struct {
	// Threshold in (0, 1]; zero means DefaultThreshold.
	Threshold float64
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// NewFilter creates a novelty filter.
func NewFilter(cfg Config) *Filter {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Filter{threshold: cfg.Threshold, logger: cfg.Logger}
}

// Threshold reports the active similarity threshold.
func (f *Filter) Threshold() float64 { return f.threshold }

// Filter returns the ideas whose text is not a near-duplicate of an earlier
// idea. Surviving ideas keep their relative order and are reindexed
// sequentially. Comparison is case-insensitive on trimmed text.
func (f *Filter) Filter(ideas []types.Idea) []types.Idea {
	kept := make([]types.Idea, 0, len(ideas))
	keptTexts := make([]string, 0, len(ideas))

	for _, idea := range ideas {
		text := normalize(idea.Text)
		duplicate := false
		for j, prev := range keptTexts {
			if sim := Similarity(text, prev); sim >= f.threshold {
				f.logger.Debug("dropping near-duplicate idea",
					zap.Int("idea_index", idea.Index),
					zap.Int("duplicate_of", kept[j].Index),
					zap.Float64("similarity", sim))
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, idea)
		keptTexts = append(keptTexts, text)
	}

	for i := range kept {
		kept[i].Index = i
	}
	return kept
}

// Similarity is the common-text ratio between two strings in [0, 1].
// Identical strings score 1, disjoint strings score 0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)

	commonLength := 0
	totalLength := 0
	for _, diff := range diffs {
		switch diff.Type {
		case diffmatchpatch.DiffEqual:
			commonLength += len(diff.Text)
			totalLength += len(diff.Text)
		case diffmatchpatch.DiffInsert, diffmatchpatch.DiffDelete:
			totalLength += len(diff.Text)
		}
	}
	if totalLength == 0 {
		return 1.0
	}
	return float64(commonLength) / float64(totalLength)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
