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

package inference

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/madspark-labs/madspark/pkg/types"
)

// Verbosity selects how much of an analysis FormatForDisplay renders.
type Verbosity string

const (
	VerbosityBrief    Verbosity = "brief"
	VerbosityStandard Verbosity = "standard"
	VerbosityDetailed Verbosity = "detailed"
)

var titleCaser = cases.Title(language.English)

// FormatForDisplay renders an inference result as human-readable text.
// Brief shows the conclusion and confidence, standard adds the reasoning
// chain, detailed adds the improvement suggestions and every type-specific
// section present.
func FormatForDisplay(r *types.InferenceResult, v Verbosity) string {
	if r == nil {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Analysis (confidence %.0f%%)\n", titleCaser.String(string(r.AnalysisType)), r.Confidence*100)
	if r.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", r.Error)
	}
	fmt.Fprintf(&sb, "Conclusion: %s\n", r.Conclusion)
	if v == VerbosityBrief {
		return sb.String()
	}

	if len(r.InferenceChain) > 0 {
		sb.WriteString("Reasoning:\n")
		for i, step := range r.InferenceChain {
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, step)
		}
	}
	if v == VerbosityStandard {
		return sb.String()
	}

	if r.Improvements != "" {
		fmt.Fprintf(&sb, "Improvements: %s\n", r.Improvements)
	}
	writeList(&sb, "Causal Chain", r.CausalChain)
	writeList(&sb, "Feedback Loops", r.FeedbackLoops)
	if r.RootCause != "" {
		fmt.Fprintf(&sb, "Root Cause: %s\n", r.RootCause)
	}
	if len(r.ConstraintSatisfaction) > 0 {
		fmt.Fprintf(&sb, "Constraint Satisfaction (overall %.2f):\n", r.OverallSatisfaction)
		for name, score := range r.ConstraintSatisfaction {
			fmt.Fprintf(&sb, "  - %s: %.2f\n", name, score)
		}
	}
	writeList(&sb, "Trade-Offs", r.TradeOffs)
	if len(r.Contradictions) > 0 {
		sb.WriteString("Contradictions:\n")
		for _, c := range r.Contradictions {
			fmt.Fprintf(&sb, "  - [%s] %q vs %q\n", c.Severity, c.Statement1, c.Statement2)
		}
	}
	if r.Resolution != "" {
		fmt.Fprintf(&sb, "Resolution: %s\n", r.Resolution)
	}
	writeList(&sb, "Implications", r.Implications)
	writeList(&sb, "Second-Order Effects", r.SecondOrderEffects)
	return sb.String()
}

func writeList(sb *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", heading)
	for _, item := range items {
		fmt.Fprintf(sb, "  - %s\n", item)
	}
}
