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

package llm

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/madspark-labs/madspark/pkg/types"
)

// validatePayload checks a parsed provider payload against the request's
// JSON Schema. A nil schema validates everything. Violations come back as a
// SchemaValidationError, which the router treats as recoverable.
func validatePayload(req *types.StructuredRequest, payload any) error {
	if req.Schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(req.Schema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("schema %s: %w", req.SchemaName, err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return &types.SchemaValidationError{
		SchemaName: req.SchemaName,
		Violations: violations,
	}
}
