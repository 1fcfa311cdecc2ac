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
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/madspark-labs/madspark/pkg/inference"
	"github.com/madspark-labs/madspark/pkg/types"
)

var headingCaser = cases.Title(language.English)

// printResults renders enriched ideas in one of three modes. Brief is one
// line per idea, simple adds the improved text and critiques, detailed adds
// every enrichment section present.
func printResults(w io.Writer, results []types.EnrichedIdea, mode string) {
	switch mode {
	case "brief":
		for i, r := range results {
			fmt.Fprintf(w, "%d. %s (score %d -> %d)\n", i+1, firstLine(r.Idea), r.Score, r.ImprovedScore)
		}
	case "detailed":
		for i, r := range results {
			printDetailed(w, i, &r)
		}
	default:
		for i, r := range results {
			fmt.Fprintf(w, "--- Idea %d (score %d -> %d, delta %+d) ---\n", i+1, r.Score, r.ImprovedScore, r.ScoreDelta)
			fmt.Fprintln(w, r.Idea)
			if r.ImprovedCritique != "" {
				fmt.Fprintf(w, "\nCritique: %s\n", r.ImprovedCritique)
			}
			fmt.Fprintln(w)
		}
	}
}

func printDetailed(w io.Writer, i int, r *types.EnrichedIdea) {
	fmt.Fprintf(w, "=== Idea %d ===\n", i+1)
	section(w, "Improved Idea", r.Idea)
	section(w, "Original Idea", r.OriginalIdea)
	fmt.Fprintf(w, "Scores: initial %d, improved %d, delta %+d\n\n", r.Score, r.ImprovedScore, r.ScoreDelta)
	section(w, "Initial Critique", r.Critique)
	section(w, "Final Critique", r.ImprovedCritique)
	if r.Advocacy != nil {
		section(w, "Advocacy", r.Advocacy.Formatted)
	}
	if r.Skepticism != nil {
		section(w, "Skepticism", r.Skepticism.Formatted)
	}
	if r.MultiDim != nil {
		printMultiDim(w, r.MultiDim)
	}
	if r.Inference != nil {
		fmt.Fprintln(w, inference.FormatForDisplay(r.Inference, inference.VerbosityDetailed))
	}
	if len(r.PartialFailures) > 0 {
		fmt.Fprintf(w, "Partial failures: %s\n\n", strings.Join(r.PartialFailures, ", "))
	}
}

func printMultiDim(w io.Writer, md *types.MultiDimEvaluation) {
	fmt.Fprintf(w, "Multi-Dimensional Evaluation (weighted %.1f, overall %.1f, interval %.1f):\n",
		md.WeightedScore, md.OverallScore, md.ConfidenceInterval)
	dims := []struct {
		name  string
		score float64
	}{
		{"feasibility", md.DimensionScores.Feasibility},
		{"innovation", md.DimensionScores.Innovation},
		{"impact", md.DimensionScores.Impact},
		{"cost effectiveness", md.DimensionScores.CostEffectiveness},
		{"scalability", md.DimensionScores.Scalability},
		{"risk assessment", md.DimensionScores.RiskAssessment},
		{"timeline", md.DimensionScores.Timeline},
	}
	for _, d := range dims {
		fmt.Fprintf(w, "  %s: %.1f\n", headingCaser.String(d.name), d.score)
	}
	if md.EvaluationSummary != "" {
		fmt.Fprintf(w, "  Summary: %s\n", md.EvaluationSummary)
	}
	fmt.Fprintln(w)
}

func section(w io.Writer, heading, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(w, "%s:\n%s\n\n", heading, body)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
