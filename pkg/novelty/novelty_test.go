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

package novelty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madspark-labs/madspark/pkg/types"
)

func ideas(texts ...string) []types.Idea {
	out := make([]types.Idea, len(texts))
	for i, t := range texts {
		out[i] = types.Idea{Text: t, Index: i}
	}
	return out
}

func TestSimilarityBounds(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("abc", "abc"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", ""), 1e-9)
	assert.InDelta(t, 0.0, Similarity("aaaa", "zzzz"), 1e-9)

	s := Similarity("solar powered bus stops", "solar powered bus shelters")
	assert.Greater(t, s, 0.7)
	assert.Less(t, s, 1.0)
}

func TestFilterKeepsFirstOccurrence(t *testing.T) {
	f := NewFilter(Config{})
	in := ideas(
		"Install solar panels on every bus shelter in the downtown core",
		"Install solar panels on every bus shelter in the downtown area",
		"Launch a night-time bicycle sharing program with helmet rentals",
	)

	out := f.Filter(in)
	require.Len(t, out, 2)
	assert.Contains(t, out[0].Text, "downtown core")
	assert.Contains(t, out[1].Text, "bicycle sharing")
}

func TestFilterReindexesSurvivors(t *testing.T) {
	f := NewFilter(Config{})
	in := ideas(
		"Community gardens on vacant lots with shared tool libraries",
		"Community gardens on vacant lots with shared tool library",
		"Pop-up weekend markets for local produce and crafts",
	)

	out := f.Filter(in)
	require.Len(t, out, 2)
	for i, idea := range out {
		assert.Equal(t, i, idea.Index)
	}
}

func TestFilterIsCaseInsensitive(t *testing.T) {
	f := NewFilter(Config{})
	in := ideas(
		"ROOFTOP RAINWATER HARVESTING FOR APARTMENT BLOCKS",
		"rooftop rainwater harvesting for apartment blocks",
	)

	out := f.Filter(in)
	assert.Len(t, out, 1)
}

func TestThresholdInclusive(t *testing.T) {
	// Threshold 1.0 drops only exact (normalized) duplicates.
	f := NewFilter(Config{Threshold: 1.0})
	in := ideas("exact duplicate idea", "exact duplicate idea", "almost duplicate idea")

	out := f.Filter(in)
	assert.Len(t, out, 2)
}

func TestInvalidThresholdFallsBackToDefault(t *testing.T) {
	assert.InDelta(t, DefaultThreshold, NewFilter(Config{Threshold: -1}).Threshold(), 1e-9)
	assert.InDelta(t, DefaultThreshold, NewFilter(Config{Threshold: 2}).Threshold(), 1e-9)
	assert.InDelta(t, 0.5, NewFilter(Config{Threshold: 0.5}).Threshold(), 1e-9)
}

func TestFilterEmptyInput(t *testing.T) {
	f := NewFilter(Config{})
	assert.Empty(t, f.Filter(nil))
}
