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

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/madspark-labs/madspark/pkg/types"
)

// longStringThreshold bounds key-material memory: any component longer than
// this is replaced by its SHA-256 before key composition.
const longStringThreshold = 10 * 1024

// MakeKey builds the deterministic cache key for one structured call. Every
// input that can change the output participates: prompt, schema identity
// (name plus a hash of the schema JSON), temperature, provider, model,
// system instruction, and the multimodal input lists.
func MakeKey(req *types.StructuredRequest, provider, model string) string {
	h := sha256.New()

	writeComponent(h, "prompt", req.Prompt)
	writeComponent(h, "schema_name", req.SchemaName)
	writeComponent(h, "schema_hash", schemaHash(req.Schema))
	writeComponent(h, "temperature", fmt.Sprintf("%.4f", req.Temperature))
	writeComponent(h, "provider", provider)
	writeComponent(h, "model", model)
	writeComponent(h, "system", req.SystemInstruction)
	writeComponent(h, "images", strings.Join(req.Images, "\x1f"))
	writeComponent(h, "files", strings.Join(req.Files, "\x1f"))
	writeComponent(h, "urls", strings.Join(req.URLs, "\x1f"))

	return hex.EncodeToString(h.Sum(nil))
}

func writeComponent(h interface{ Write([]byte) (int, error) }, label, value string) {
	if len(value) > longStringThreshold {
		sum := sha256.Sum256([]byte(value))
		value = hex.EncodeToString(sum[:])
	}
	_, _ = h.Write([]byte(label))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(value))
	_, _ = h.Write([]byte{0})
}

// schemaHash produces a stable digest of the schema. encoding/json sorts map
// keys, so equal schemas hash equally regardless of construction order.
func schemaHash(schema map[string]any) string {
	if schema == nil {
		return ""
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return "unmarshalable"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
