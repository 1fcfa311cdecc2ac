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

package anthropic

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madspark-labs/madspark/pkg/types"
)

const testKey = "sk-ant-REDACTED"

func TestNewRejectsPlaceholderKeys(t *testing.T) {
	for _, key := range []string{
		"",
		"short",
		"your-api-key-goes-here-please",
		"sk-replace-me-with-a-real-key",
	} {
		_, err := New(Config{APIKey: key})
		require.Error(t, err, "key %q", key)
		var cfgErr *types.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	}
}

func TestTierModelDefaults(t *testing.T) {
	c, err := New(Config{APIKey: testKey, ModelTier: "fast"})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-latest", c.Model())

	c, err = New(Config{APIKey: testKey, ModelTier: "quality"})
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-1", c.Model())

	c, err = New(Config{APIKey: testKey})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", c.Model())
}

func TestCostEstimation(t *testing.T) {
	c, err := New(Config{APIKey: testKey, Model: "claude-sonnet-4-5"})
	require.NoError(t, err)

	// 1M input at $3 + 1M output at $15.
	assert.InDelta(t, 18.0, c.estimateCost(1_000_000, 1_000_000), 1e-9)
	assert.InDelta(t, 0.0, c.estimateCost(0, 0), 1e-9)

	unknown, err := New(Config{APIKey: testKey, Model: "claude-mystery-1"})
	require.NoError(t, err)
	assert.Zero(t, unknown.estimateCost(1000, 1000))
}

func TestContentBlocksAttachments(t *testing.T) {
	c, err := New(Config{APIKey: testKey})
	require.NoError(t, err)

	dir := t.TempDir()
	pngPath := filepath.Join(dir, "sketch.png")
	pngData := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	require.NoError(t, os.WriteFile(pngPath, pngData, 0o600))
	notesPath := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(notesPath, []byte("budget constraints"), 0o600))

	blocks := c.contentBlocks(&types.StructuredRequest{
		Prompt: "evaluate this",
		Images: []string{pngPath, "https://example.com/photo.jpg"},
		Files:  []string{notesPath},
		URLs:   []string{"https://example.com/report.pdf", "https://example.com"},
	})
	require.Len(t, blocks, 6)

	require.NotNil(t, blocks[0].OfText)
	assert.Equal(t, "evaluate this", blocks[0].OfText.Text)

	require.NotNil(t, blocks[1].OfImage)
	require.NotNil(t, blocks[1].OfImage.Source.OfBase64)
	assert.Equal(t, "image/png", string(blocks[1].OfImage.Source.OfBase64.MediaType))
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngData), blocks[1].OfImage.Source.OfBase64.Data)

	require.NotNil(t, blocks[2].OfImage)
	require.NotNil(t, blocks[2].OfImage.Source.OfURL)
	assert.Equal(t, "https://example.com/photo.jpg", blocks[2].OfImage.Source.OfURL.URL)

	require.NotNil(t, blocks[3].OfDocument)
	require.NotNil(t, blocks[3].OfDocument.Source.OfText)
	assert.Equal(t, "budget constraints", blocks[3].OfDocument.Source.OfText.Data)

	require.NotNil(t, blocks[4].OfDocument)
	require.NotNil(t, blocks[4].OfDocument.Source.OfURL)
	assert.Equal(t, "https://example.com/report.pdf", blocks[4].OfDocument.Source.OfURL.URL)

	require.NotNil(t, blocks[5].OfText)
	assert.Contains(t, blocks[5].OfText.Text, "https://example.com")
}

func TestContentBlocksPDFAttachment(t *testing.T) {
	c, err := New(Config{APIKey: testKey})
	require.NoError(t, err)

	pdfPath := filepath.Join(t.TempDir(), "report.pdf")
	pdfData := []byte("%PDF-1.4 stub")
	require.NoError(t, os.WriteFile(pdfPath, pdfData, 0o600))

	blocks := c.contentBlocks(&types.StructuredRequest{
		Prompt: "summarize",
		Files:  []string{pdfPath},
	})
	require.Len(t, blocks, 2)
	require.NotNil(t, blocks[1].OfDocument)
	require.NotNil(t, blocks[1].OfDocument.Source.OfBase64)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pdfData), blocks[1].OfDocument.Source.OfBase64.Data)
}

func TestContentBlocksUnreadableAttachmentDegradesToText(t *testing.T) {
	c, err := New(Config{APIKey: testKey})
	require.NoError(t, err)

	missing := filepath.Join(t.TempDir(), "gone.png")
	blocks := c.contentBlocks(&types.StructuredRequest{
		Prompt: "evaluate this",
		Images: []string{missing},
	})
	require.Len(t, blocks, 2)
	require.NotNil(t, blocks[1].OfText)
	assert.Contains(t, blocks[1].OfText.Text, missing)
}

func TestImageMediaTypeByExtension(t *testing.T) {
	assert.Equal(t, "image/jpeg", imageMediaType("photo.JPG"))
	assert.Equal(t, "image/webp", imageMediaType("a/b/c.webp"))
	assert.Equal(t, "image/png", imageMediaType("unknown.bin"))
}
