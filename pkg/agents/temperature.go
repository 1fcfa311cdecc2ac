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

	"github.com/madspark-labs/madspark/pkg/types"
)

// Stage identifies a pipeline stage for temperature scaling.
type Stage string

const (
	StageGenerate Stage = "generate"
	StageEvaluate Stage = "evaluate"
	StageAdvocate Stage = "advocate"
	StageSkeptic  Stage = "skeptic"
	StageImprove  Stage = "improve"
)

// Temperature presets.
var presets = map[string]float64{
	"conservative": 0.3,
	"balanced":     0.5,
	"creative":     0.7,
	"wild":         0.9,
}

// TemperatureManager maps (stage, base temperature) to a sampling
// temperature. Idea generation runs hotter than the base; critic stages run
// cooler. Results are always clamped to [0, 1].
type TemperatureManager struct {
	base float64
}

// NewTemperatureManager builds a manager from an explicit base temperature.
func NewTemperatureManager(base float64) (*TemperatureManager, error) {
	if base < 0 || base > 1 {
		return nil, &types.ConfigError{
			Field:  "temperature",
			Reason: fmt.Sprintf("%v outside [0, 1]", base),
		}
	}
	return &TemperatureManager{base: base}, nil
}

// NewTemperatureManagerFromPreset builds a manager from a named preset:
// conservative (0.3), balanced (0.5), creative (0.7), wild (0.9).
func NewTemperatureManagerFromPreset(preset string) (*TemperatureManager, error) {
	base, ok := presets[preset]
	if !ok {
		return nil, &types.ConfigError{
			Field:  "temperature_preset",
			Reason: fmt.Sprintf("unknown preset %q", preset),
		}
	}
	return &TemperatureManager{base: base}, nil
}

// Base returns the base temperature.
func (m *TemperatureManager) Base() float64 { return m.base }

// ForStage returns the stage-adjusted temperature. Generation scales by 1.3
// capped at 0.95; evaluation stages scale by 0.5 with a 0.1 floor.
func (m *TemperatureManager) ForStage(stage Stage) float64 {
	t := m.base
	switch stage {
	case StageGenerate:
		t *= 1.3
		if t > 0.95 {
			t = 0.95
		}
	case StageEvaluate:
		t *= 0.5
		if t < 0.1 {
			t = 0.1
		}
	}
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return t
}
