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

// JSON Schemas for each agent's structured output. Schema identity (name +
// content hash) participates in the cache key, so edits here naturally
// invalidate stale cached responses.

func ideaListSchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []any{"text"},
			"properties": map[string]any{
				"title": map[string]any{"type": "string"},
				"text":  map[string]any{"type": "string"},
			},
		},
	}
}

func evaluationListSchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []any{"score", "comment"},
			"properties": map[string]any{
				"score":      map[string]any{"type": "number"},
				"comment":    map[string]any{"type": "string"},
				"idea_index": map[string]any{"type": "integer"},
			},
		},
	}
}

func advocacyListSchema() map[string]any {
	titled := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
		},
	}
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []any{"strengths", "opportunities", "addressing_concerns"},
			"properties": map[string]any{
				"strengths":     map[string]any{"type": "array", "items": titled},
				"opportunities": map[string]any{"type": "array", "items": titled},
				"addressing_concerns": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"concern":  map[string]any{"type": "string"},
							"response": map[string]any{"type": "string"},
						},
					},
				},
				"idea_index": map[string]any{"type": "integer"},
			},
		},
	}
}

func skepticismListSchema() map[string]any {
	// Items arrive as plain strings or titled objects.
	flexList := map[string]any{"type": "array"}
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []any{"critical_flaws", "risks_challenges"},
			"properties": map[string]any{
				"critical_flaws":           flexList,
				"risks_challenges":         flexList,
				"questionable_assumptions": flexList,
				"missing_considerations":   flexList,
				"idea_index":               map[string]any{"type": "integer"},
			},
		},
	}
}

func improvementListSchema() map[string]any {
	stringList := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []any{"improved_title", "improved_description"},
			"properties": map[string]any{
				"improved_title":       map[string]any{"type": "string"},
				"improved_description": map[string]any{"type": "string"},
				"key_improvements":     stringList,
				"implementation_steps": stringList,
				"differentiators":      stringList,
				"idea_index":           map[string]any{"type": "integer"},
			},
		},
	}
}
