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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	s := Load()
	assert.Equal(t, ProviderAuto, s.Provider)
	assert.Equal(t, TierBalanced, s.ModelTier)
	assert.True(t, s.FallbackEnabled)
	assert.True(t, s.CacheEnabled)
	assert.Equal(t, 24*time.Hour, s.CacheTTL)
	assert.Equal(t, 100, s.CacheMaxSizeMB)
	assert.Equal(t, 1200*time.Second, s.WorkflowTimeout)
	assert.Equal(t, "http://localhost:11434", s.OllamaHost)
}

func TestLoadReadsEnvironment(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("MADSPARK_LLM_PROVIDER", "remote")
	t.Setenv("MADSPARK_MODEL_TIER", "quality")
	t.Setenv("MADSPARK_CACHE_TTL", "60")

	s := Load()
	assert.Equal(t, ProviderRemote, s.Provider)
	assert.Equal(t, TierQuality, s.ModelTier)
	assert.Equal(t, time.Minute, s.CacheTTL)
}

func TestLoadInvalidChoicesFallBack(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("MADSPARK_LLM_PROVIDER", "quantum")
	t.Setenv("MADSPARK_MODEL_TIER", "ultra")

	s := Load()
	assert.Equal(t, ProviderAuto, s.Provider)
	assert.Equal(t, TierBalanced, s.ModelTier)
}

func TestValidAPIKey(t *testing.T) {
	assert.False(t, ValidAPIKey(""))
	assert.False(t, ValidAPIKey("short"))
	assert.False(t, ValidAPIKey("your-api-key-goes-here-please"))
	assert.False(t, ValidAPIKey("sk-replace-me-with-a-real-key"))
	assert.False(t, ValidAPIKey("xxxxxxxxxxxxxxxxxxxxxxxxxxxx"))
	assert.False(t, ValidAPIKey("API_KEY_HERE_1234567890"))
	assert.True(t, ValidAPIKey("sk-ant-REDACTED"))
}

func TestResolveCacheDirWhitelist(t *testing.T) {
	tmp := t.TempDir()

	dir := ResolveCacheDir(tmp, zap.NewNop())
	assert.Equal(t, filepath.Clean(tmp), filepath.Clean(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestResolveCacheDirRejectsSystemPaths(t *testing.T) {
	dir := ResolveCacheDir("/etc/shadow", zap.NewNop())
	assert.False(t, strings.HasPrefix(dir, "/etc"))

	_, err := os.Stat("/etc/shadow/madspark")
	assert.True(t, os.IsNotExist(err) || err != nil)
}

func TestResolveCacheDirEmptyUsesDefault(t *testing.T) {
	dir := ResolveCacheDir("", zap.NewNop())
	assert.NotEmpty(t, dir)
	assert.Contains(t, dir, "madspark")
}
