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

// Package parser extracts structured records from LLM text output.
//
// LLM responses should be JSON but often are not: they arrive wrapped in
// prose, split across lines, or as legacy "Score: N" phrasing. The parser
// runs five strategies in fixed order and short-circuits on the first one
// that yields a result. No strategy panics or returns an error; each either
// produces a value or passes to the next.
package parser

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Strategy names recorded in telemetry.
const (
	StrategyDirect          = "direct"
	StrategyArrayExtraction = "array_extraction"
	StrategyLineByLine      = "line_by_line"
	StrategyRegexObject     = "regex_object"
	StrategyScoreComment    = "score_comment"
	StrategyPlaceholder     = "placeholder"
	StrategyNone            = "none"
)

// FailedParseComment is the placeholder comment emitted when no strategy
// matched and the caller demanded a fixed record count.
const FailedParseComment = "Failed to parse evaluation"

var (
	// Matches a {...} block with at most one level of nested braces.
	objectPattern = regexp.MustCompile(`\{(?:[^{}]|\{[^{}]*\})*\}`)

	// Legacy critic phrasings. Comment captures are bounded at 500
	// characters to avoid pathological backtracking.
	scoreCommentPattern = regexp.MustCompile(`(?is)score\s*[:=]?\s*(\d+(?:\.\d+)?)\s*(?:/\s*10)?.{0,200}?comment\s*[:=]?\s*(.{1,500}?)(?:\n\n|$)`)
	scoresAnPattern     = regexp.MustCompile(`(?i)scores?\s+an?\s+(\d+(?:\.\d+)?)`)
	giveScorePattern    = regexp.MustCompile(`(?i)give\s+it\s+a\s+score\s+of\s+(\d+(?:\.\d+)?)`)
	deservesPattern     = regexp.MustCompile(`(?i)deserves\s+an?\s+(\d+(?:\.\d+)?)`)

	// Newlines inside JSON string literals break json.Unmarshal; the regex
	// object strategy retries after escaping them.
	newlineInString = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)
)

// Config holds parser configuration.
type Config struct {
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Parser runs the strategy chain. It is stateful only in its telemetry and
// safe for concurrent use.
type Parser struct {
	mu        sync.Mutex
	telemetry map[string]int
	logger    *zap.Logger
}

// New creates a parser.
func New(cfg Config) *Parser {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Parser{
		telemetry: make(map[string]int),
		logger:    cfg.Logger,
	}
}

// Parse extracts a JSON value (array or object) from text. It returns the
// value, the name of the strategy that produced it, and whether any strategy
// succeeded.
func (p *Parser) Parse(text string) (any, string, bool) {
	text = strings.TrimSpace(stripCodeFences(text))
	if text == "" {
		p.record(StrategyNone)
		return nil, StrategyNone, false
	}

	type strategy struct {
		name string
		fn   func(string) (any, bool)
	}
	chain := []strategy{
		{StrategyDirect, parseDirect},
		{StrategyArrayExtraction, parseArrays},
		{StrategyLineByLine, parseLines},
		{StrategyRegexObject, parseRegexObjects},
		{StrategyScoreComment, parseScoreComment},
	}

	for _, s := range chain {
		if v, ok := s.fn(text); ok {
			p.record(s.name)
			p.logger.Debug("parsed LLM output",
				zap.String("strategy", s.name))
			return v, s.name, true
		}
	}

	p.record(StrategyNone)
	p.logger.Warn("all parse strategies failed",
		zap.Int("text_len", len(text)))
	return nil, StrategyNone, false
}

// ParseList extracts a list of objects from text. Scalar and object results
// are wrapped into a single-element list. When nothing parses and
// expectedCount > 0, it returns expectedCount placeholder records with
// score 0 so callers can always address results by index.
func (p *Parser) ParseList(text string, expectedCount int) []map[string]any {
	v, _, ok := p.Parse(text)
	if ok {
		if list := toObjectList(v); len(list) > 0 {
			return list
		}
	}
	if expectedCount <= 0 {
		return nil
	}
	p.record(StrategyPlaceholder)
	out := make([]map[string]any, expectedCount)
	for i := range out {
		out[i] = map[string]any{
			"score":   0,
			"comment": FailedParseComment,
		}
	}
	return out
}

// Telemetry returns a copy of the per-strategy success counts.
func (p *Parser) Telemetry() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.telemetry))
	for k, v := range p.telemetry {
		out[k] = v
	}
	return out
}

func (p *Parser) record(strategy string) {
	p.mu.Lock()
	p.telemetry[strategy]++
	p.mu.Unlock()
}

// NormalizeScore converts a raw critic score to the validated 0-10 integer
// scale: round half-up, then clamp.
func NormalizeScore(v float64) int {
	n := int(math.Floor(v + 0.5))
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}

// NormalizeScoreValue handles the JSON-decoded representations a score may
// arrive as (float64, string, json.Number).
func NormalizeScoreValue(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return NormalizeScore(x), true
	case int:
		return NormalizeScore(float64(x)), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return NormalizeScore(f), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return NormalizeScore(f), true
	default:
		return 0, false
	}
}

// stripCodeFences removes markdown ``` fences so fenced JSON parses directly.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.Index(trimmed, "\n"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}

func parseDirect(text string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case []any, map[string]any:
		return v, true
	default:
		return nil, false
	}
}

// parseArrays scans for top-level [...] blocks, respecting string literals
// and escapes, and concatenates the object elements of every array found.
func parseArrays(text string) (any, bool) {
	var collected []any
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '[':
			if !inString {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case ']':
			if !inString && depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					var arr []any
					if err := json.Unmarshal([]byte(text[start:i+1]), &arr); err == nil {
						collected = append(collected, arr...)
					}
					start = -1
				}
			}
		}
	}

	if len(collected) == 0 {
		return nil, false
	}
	return collected, true
}

func parseLines(text string) (any, bool) {
	var collected []any
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ","))
		if line == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			collected = append(collected, v)
		}
	}
	if len(collected) == 0 {
		return nil, false
	}
	return collected, true
}

func parseRegexObjects(text string) (any, bool) {
	matches := objectPattern.FindAllString(text, -1)
	var collected []any
	for _, m := range matches {
		var v map[string]any
		if err := json.Unmarshal([]byte(m), &v); err == nil {
			collected = append(collected, v)
			continue
		}
		// Retry with literal newlines escaped inside string values.
		fixed := newlineInString.ReplaceAllStringFunc(m, func(s string) string {
			return strings.ReplaceAll(s, "\n", `\n`)
		})
		fixed = strings.ReplaceAll(fixed, "\n", " ")
		if err := json.Unmarshal([]byte(fixed), &v); err == nil {
			collected = append(collected, v)
		}
	}
	if len(collected) == 0 {
		return nil, false
	}
	return collected, true
}

func parseScoreComment(text string) (any, bool) {
	var collected []any

	for _, m := range scoreCommentPattern.FindAllStringSubmatch(text, -1) {
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		collected = append(collected, map[string]any{
			"score":   score,
			"comment": strings.TrimSpace(m[2]),
		})
	}
	if len(collected) > 0 {
		return collected, true
	}

	for _, pat := range []*regexp.Regexp{scoresAnPattern, giveScorePattern, deservesPattern} {
		for _, m := range pat.FindAllStringSubmatch(text, -1) {
			score, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			collected = append(collected, map[string]any{
				"score":   score,
				"comment": summarize(text),
			})
		}
		if len(collected) > 0 {
			return collected, true
		}
	}
	return nil, false
}

// summarize trims a free-form critique to a bounded comment.
func summarize(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 500 {
		return text[:500]
	}
	return text
}

func toObjectList(v any) []map[string]any {
	switch x := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, el := range x {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		// A lone object may wrap the real list under a common key.
		for _, key := range []string{"ideas", "evaluations", "results", "items"} {
			if inner, ok := x[key]; ok {
				if list := toObjectList(inner); len(list) > 0 {
					return list
				}
			}
		}
		return []map[string]any{x}
	default:
		return nil
	}
}
