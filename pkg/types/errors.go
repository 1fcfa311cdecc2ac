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

package types

import (
	"errors"
	"fmt"
)

// ErrNoProviderAvailable is returned when neither the preferred provider nor
// any fallback can serve a request.
var ErrNoProviderAvailable = errors.New("no LLM provider available")

// ErrEmptyResponse is returned when a provider produces no usable content.
var ErrEmptyResponse = errors.New("empty LLM response")

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

// ProviderUnavailableError reports a provider that failed its availability
// check or refused a call.
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("provider %s unavailable", e.Provider)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// SchemaValidationError reports a structured response that failed JSON Schema
// validation. It is not retryable.
type SchemaValidationError struct {
	SchemaName string
	Violations []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema %s validation failed: %v", e.SchemaName, e.Violations)
}

// BatchLengthMismatchError reports a batch call whose response item count did
// not match the request item count.
type BatchLengthMismatchError struct {
	Function string
	Want     int
	Got      int
}

func (e *BatchLengthMismatchError) Error() string {
	return fmt.Sprintf("batch %s: expected %d items, got %d", e.Function, e.Want, e.Got)
}
