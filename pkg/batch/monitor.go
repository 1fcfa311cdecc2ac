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

// Package batch records every batch LLM call and degrades failed batch
// calls to per-item fallbacks. The monitor keeps an in-memory session log
// and optionally appends one JSON line per call to a metrics file.
package batch

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/types"
)

// MonitorConfig holds monitor construction options.
type MonitorConfig struct {
	// Path receives JSONL records; empty disables persistence.
	Path string
	// SessionID defaults to a fresh UUID.
	SessionID string
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Monitor is the append-only record of batch calls. Safe for concurrent
// use; file appends are serialised.
type Monitor struct {
	mu        sync.Mutex
	records   []types.BatchMetrics
	path      string
	sessionID string
	logger    *zap.Logger
}

// CallContext tracks one in-flight batch call between Start and End.
type CallContext struct {
	BatchType  string
	ItemsCount int
	started    time.Time
}

// EndOptions describes how a batch call finished.
type EndOptions struct {
	Success      bool
	TokensUsed   int
	CostUSD      float64
	ErrorMessage string
	FallbackUsed bool
	// EstimateText is the prompt text to estimate tokens from when a
	// successful call reports no usage (mock and degraded providers).
	EstimateText string
}

// NewMonitor creates a batch monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Monitor{
		path:      cfg.Path,
		sessionID: cfg.SessionID,
		logger:    cfg.Logger,
	}
}

// SessionID returns the monitor's session identifier.
func (m *Monitor) SessionID() string {
	if m == nil {
		return ""
	}
	return m.sessionID
}

// StartBatchCall opens a span for one batch call. Nil monitors return a
// usable context so callers need not branch.
func (m *Monitor) StartBatchCall(batchType string, itemsCount int) *CallContext {
	return &CallContext{
		BatchType:  batchType,
		ItemsCount: itemsCount,
		started:    time.Now(),
	}
}

// EndBatchCall closes a span and records the call. Nil monitors drop the
// record.
func (m *Monitor) EndBatchCall(ctx *CallContext, opts EndOptions) {
	if m == nil || ctx == nil {
		return
	}
	rec := types.BatchMetrics{
		Timestamp:        time.Now(),
		BatchType:        ctx.BatchType,
		ItemsCount:       ctx.ItemsCount,
		TokensUsed:       opts.TokensUsed,
		EstimatedCostUSD: opts.CostUSD,
		DurationSeconds:  time.Since(ctx.started).Seconds(),
		Success:          opts.Success,
		FallbackUsed:     opts.FallbackUsed,
		ErrorMessage:     opts.ErrorMessage,
	}
	if opts.Success && opts.TokensUsed == 0 && opts.EstimateText != "" {
		rec.TokensUsed = EstimateTokens(opts.EstimateText)
		rec.TokensEstimated = true
	}

	m.mu.Lock()
	m.records = append(m.records, rec)
	m.appendLocked(rec)
	m.mu.Unlock()
}

func (m *Monitor) appendLocked(rec types.BatchMetrics) {
	if m.path == "" {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		m.logger.Warn("cannot append batch metrics", zap.Error(err))
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.Write(append(raw, '\n'))
}

// TypeStats is the per-batch-type slice of a session summary.
type TypeStats struct {
	Calls      int `json:"calls"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Summary aggregates one session's batch calls.
type Summary struct {
	SessionID     string               `json:"session_id"`
	TotalCalls    int                  `json:"total_calls"`
	Successful    int                  `json:"successful"`
	Failed        int                  `json:"failed"`
	FallbackCount int                  `json:"fallback_count"`
	TotalItems    int                  `json:"total_items"`
	TotalTokens   int                  `json:"total_tokens"`
	TotalCostUSD  float64              `json:"total_cost_usd"`
	ByType        map[string]TypeStats `json:"batch_type_breakdown"`
}

// SessionSummary aggregates everything recorded so far.
func (m *Monitor) SessionSummary() Summary {
	if m == nil {
		return Summary{ByType: map[string]TypeStats{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{SessionID: m.sessionID, ByType: make(map[string]TypeStats)}
	for _, rec := range m.records {
		s.TotalCalls++
		s.TotalItems += rec.ItemsCount
		s.TotalTokens += rec.TokensUsed
		s.TotalCostUSD += rec.EstimatedCostUSD
		ts := s.ByType[rec.BatchType]
		ts.Calls++
		if rec.Success {
			s.Successful++
			ts.Successful++
		} else {
			s.Failed++
			ts.Failed++
		}
		if rec.FallbackUsed {
			s.FallbackCount++
		}
		s.ByType[rec.BatchType] = ts
	}
	return s
}

// CostEffectiveness reports how much batching saved versus per-item calls.
type CostEffectiveness struct {
	BatchCalls          int     `json:"batch_calls"`
	FallbackCalls       int     `json:"fallback_calls"`
	EstimatedCallsSaved int     `json:"estimated_calls_saved"`
	TotalCostUSD        float64 `json:"total_cost_usd"`
}

// AnalyzeCostEffectiveness estimates the API calls saved by batching: each
// successful batch of N items replaced N single calls with one.
func (m *Monitor) AnalyzeCostEffectiveness() CostEffectiveness {
	if m == nil {
		return CostEffectiveness{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var ce CostEffectiveness
	for _, rec := range m.records {
		ce.TotalCostUSD += rec.EstimatedCostUSD
		if rec.FallbackUsed {
			ce.FallbackCalls++
			continue
		}
		ce.BatchCalls++
		if rec.Success && rec.ItemsCount > 1 {
			ce.EstimatedCallsSaved += rec.ItemsCount - 1
		}
	}
	return ce
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens approximates the token count of text with the cl100k_base
// encoding. Providers that report real usage take precedence; this covers
// responses with no usage data. Falls back to len/4 when the encoding
// cannot be loaded offline.
func EstimateTokens(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
