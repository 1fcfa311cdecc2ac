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

	"go.uber.org/zap"
)

// DataDir returns the MadSpark data directory, creating it if needed.
// MADSPARK_DATA_DIR overrides the default ~/.madspark.
func DataDir() (string, error) {
	if dir := os.Getenv("MADSPARK_DATA_DIR"); dir != "" {
		expanded := expandPath(dir)
		if err := os.MkdirAll(expanded, 0o700); err != nil {
			return "", err
		}
		return expanded, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".madspark")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// ResolveCacheDir validates a requested cache directory against the allowed
// roots ($HOME, /tmp, the working directory). Anything outside the
// whitelist is rewritten to a default under the user's cache directory, so
// a hostile or mistyped path never causes writes into system locations.
// The resolved directory is created with owner-only permissions.
func ResolveCacheDir(requested string, logger *zap.Logger) string {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := expandPath(strings.TrimSpace(requested))
	if dir != "" && !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}

	if dir == "" || !underAllowedRoot(dir) {
		if dir != "" {
			logger.Warn("cache directory outside allowed roots, using default",
				zap.String("requested", requested))
		}
		dir = defaultCacheDir()
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		logger.Warn("cannot create cache directory, using default",
			zap.String("dir", dir), zap.Error(err))
		dir = defaultCacheDir()
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return ""
		}
	}
	return dir
}

func underAllowedRoot(dir string) bool {
	var roots []string
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		roots = append(roots, home)
	}
	roots = append(roots, os.TempDir(), "/tmp")
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, cwd)
	}
	clean := filepath.Clean(dir)
	for _, root := range roots {
		root = filepath.Clean(root)
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "madspark")
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
