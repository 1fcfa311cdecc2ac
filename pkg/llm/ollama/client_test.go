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

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madspark-labs/madspark/pkg/types"
)

func newFakeDaemon(t *testing.T, models []string, reply string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var tagCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			tagCalls.Add(1)
			var entries []map[string]string
			for _, m := range models {
				entries = append(entries, map[string]string{"name": m})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"models": entries})
		case "/api/chat":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message":           map[string]string{"role": "assistant", "content": reply},
				"prompt_eval_count": 10,
				"eval_count":        20,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &tagCalls
}

func TestAvailableMatchesExactAndPrefix(t *testing.T) {
	srv, _ := newFakeDaemon(t, []string{"llama3.1:8b-instruct-q4"}, "{}")

	c := New(Config{Host: srv.URL, Model: "llama3.1:8b"})
	assert.True(t, c.Available(context.Background()))

	c2 := New(Config{Host: srv.URL, Model: "mistral:7b"})
	assert.False(t, c2.Available(context.Background()))
}

func TestAvailableCachesProbe(t *testing.T) {
	srv, tagCalls := newFakeDaemon(t, []string{"llama3.1:8b"}, "{}")

	c := New(Config{Host: srv.URL, Model: "llama3.1:8b"})
	for i := 0; i < 5; i++ {
		assert.True(t, c.Available(context.Background()))
	}
	assert.Equal(t, int64(1), tagCalls.Load())
}

func TestGenerateReturnsUsage(t *testing.T) {
	srv, _ := newFakeDaemon(t, nil, "three ideas about transit")

	c := New(Config{Host: srv.URL, Model: "llama3.1:8b"})
	resp, err := c.Generate(context.Background(), "ideas please", 0.7)
	require.NoError(t, err)
	assert.Equal(t, "three ideas about transit", resp.Text)
	assert.Equal(t, 30, resp.TokensUsed)
	assert.Equal(t, "ollama", resp.Provider)
	assert.Zero(t, resp.Cost)
	assert.False(t, resp.Cached)
}

func TestGenerateStructuredParsesSloppyJSON(t *testing.T) {
	srv, _ := newFakeDaemon(t, nil, "Sure! Here you go:\n[{\"score\": 8, \"comment\": \"ok\"}]")

	c := New(Config{Host: srv.URL})
	payload, resp, err := c.GenerateStructured(context.Background(), &types.StructuredRequest{
		Prompt:      "evaluate",
		Schema:      map[string]any{"type": "array"},
		Temperature: 0.3,
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	list, ok := payload.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, float64(8), list[0].(map[string]any)["score"])
}

func TestDaemonDownIsProviderUnavailable(t *testing.T) {
	c := New(Config{Host: "http://127.0.0.1:1", Model: "llama3.1:8b"})

	_, err := c.Generate(context.Background(), "hi", 0.5)
	require.Error(t, err)
	var unavailable *types.ProviderUnavailableError
	assert.ErrorAs(t, err, &unavailable)
	assert.False(t, c.Available(context.Background()))
}

func TestTierModelDefaults(t *testing.T) {
	assert.Equal(t, "llama3.2:3b", New(Config{ModelTier: "fast"}).Model())
	assert.Equal(t, "llama3.1:8b", New(Config{ModelTier: "balanced"}).Model())
	// Quality has no local equivalent and downgrades to balanced.
	assert.Equal(t, "llama3.1:8b", New(Config{ModelTier: "quality"}).Model())
}
