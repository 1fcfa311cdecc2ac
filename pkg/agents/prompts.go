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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"gopkg.in/yaml.v3"
)

// LanguageInstruction is appended to every agent prompt so responses stay
// in the user's language.
const LanguageInstruction = "IMPORTANT: Respond in the same language as the user input."

// Default prompt templates, overridable via prompts.yaml in the data
// directory. Batch items are always numbered "1. ..." lines; downstream
// parsing and the mock provider rely on that.
var defaultTemplates = map[string]string{
	"generate": heredoc.Doc(`
		You are a creative ideation agent. Generate diverse, concrete ideas for the topic below.

		Topic: %s
		Context: %s

		Return a JSON array of idea objects, each with "title" and "text" fields.
	`),
	"evaluate": heredoc.Doc(`
		You are a rigorous critic. Evaluate each idea for the topic below on a 0-10 scale.

		Topic: %s
		Context: %s

		Ideas:
		%s

		Return a JSON array with one object per idea: {"score": <0-10>, "comment": "<critique>", "idea_index": <0-based input position>}.
	`),
	"advocate": heredoc.Doc(`
		You are a persuasive advocate. Build the strongest case for each idea below, grounded in its evaluation.

		Topic: %s
		Context: %s

		Ideas with evaluations:
		%s

		Return a JSON array with one object per idea:
		{"strengths": [{"title", "description"}], "opportunities": [{"title", "description"}], "addressing_concerns": [{"concern", "response"}], "idea_index": <0-based input position>}.
	`),
	"skeptic": heredoc.Doc(`
		You are a devil's advocate. Challenge each idea below: find flaws, risks, shaky assumptions, and blind spots.

		Topic: %s
		Context: %s

		Ideas with evaluations:
		%s

		Return a JSON array with one object per idea:
		{"critical_flaws": [...], "risks_challenges": [...], "questionable_assumptions": [...], "missing_considerations": [...], "idea_index": <0-based input position>}.
	`),
	"improve": heredoc.Doc(`
		You are an idea refiner. Rewrite each idea below into a stronger version that keeps its core insight, answers the critique, builds on the advocacy, and addresses the skepticism.

		Topic: %s
		Context: %s

		Ideas with feedback:
		%s

		Return a JSON array with one object per idea:
		{"improved_title": "...", "improved_description": "...", "key_improvements": [...], "idea_index": <0-based input position>}.
	`),
	"reevaluate": heredoc.Doc(`
		You are a rigorous critic. These ideas were improved after a first round of feedback. Score each improved idea on a 0-10 scale on its current merits.

		Topic: %s
		Context: %s

		Improved ideas:
		%s

		Return a JSON array with one object per idea: {"score": <0-10>, "comment": "<critique>", "idea_index": <0-based input position>}.
	`),
}

// promptSet resolves templates with optional user overrides.
type promptSet struct {
	templates map[string]string
}

// loadPromptSet reads prompts.yaml from dir when present. Unknown keys are
// ignored; missing keys keep their defaults.
func loadPromptSet(dir string) *promptSet {
	templates := make(map[string]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		templates[k] = v
	}
	if dir != "" {
		raw, err := os.ReadFile(filepath.Join(dir, "prompts.yaml"))
		if err == nil {
			var overrides map[string]string
			if yaml.Unmarshal(raw, &overrides) == nil {
				for k, v := range overrides {
					if _, known := templates[k]; known && strings.TrimSpace(v) != "" {
						templates[k] = v
					}
				}
			}
		}
	}
	return &promptSet{templates: templates}
}

func (ps *promptSet) render(role, topic, context, items string) string {
	tpl := ps.templates[role]
	var body string
	if strings.Count(tpl, "%s") == 3 {
		body = fmt.Sprintf(tpl, topic, context, items)
	} else {
		body = fmt.Sprintf(tpl, topic, context)
	}
	return strings.TrimSpace(body) + "\n\n" + LanguageInstruction
}

// numberedLines renders batch items as "1. ..." lines.
func numberedLines(items []string) string {
	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.ReplaceAll(strings.TrimSpace(item), "\n", " "))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
