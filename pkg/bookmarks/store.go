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

// Package bookmarks persists saved ideas as a JSON file keyed by bookmark
// id. Writes go through a temp file rename so a crash never truncates the
// store.
package bookmarks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/novelty"
	"github.com/madspark-labs/madspark/pkg/types"
)

// Store is a file-backed bookmark store.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	items map[string]types.Bookmark
}

// Config holds store options.
type Config struct {
	// Path to the JSON store file, required.
	Path string
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Open loads the store at cfg.Path, creating an empty one when the file
// does not exist yet.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, &types.ConfigError{Field: "path", Reason: "required"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Store{
		path:   cfg.Path,
		logger: cfg.Logger,
		items:  make(map[string]types.Bookmark),
	}

	raw, err := os.ReadFile(cfg.Path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bookmarks: read %s: %w", cfg.Path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.items); err != nil {
			return nil, fmt.Errorf("bookmarks: parse %s: %w", cfg.Path, err)
		}
	}
	return s, nil
}

// Save stores a bookmark and returns its id. A missing id gets a fresh
// UUID; a missing timestamp gets the current time.
func (s *Store) Save(b types.Bookmark) (string, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.BookmarkedAt.IsZero() {
		b.BookmarkedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[b.ID] = b
	if err := s.flush(); err != nil {
		delete(s.items, b.ID)
		return "", err
	}
	s.logger.Debug("bookmark saved", zap.String("id", b.ID))
	return b.ID, nil
}

// List returns every bookmark. Ordering is unspecified.
func (s *Store) List() []types.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Bookmark, 0, len(s.items))
	for _, b := range s.items {
		out = append(out, b)
	}
	return out
}

// Get returns one bookmark by id.
func (s *Store) Get(id string) (types.Bookmark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.items[id]
	return b, ok
}

// Delete removes a bookmark by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.items[id]
	if !ok {
		return fmt.Errorf("bookmarks: no bookmark %q", id)
	}
	delete(s.items, id)
	if err := s.flush(); err != nil {
		s.items[id] = b
		return err
	}
	return nil
}

// FindSimilar returns bookmarks whose text is similar to the given text at
// or above the threshold, optionally restricted to a topic.
func (s *Store) FindSimilar(text, topic string, threshold float64) []types.Bookmark {
	if threshold <= 0 || threshold > 1 {
		threshold = novelty.DefaultThreshold
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Bookmark
	for _, b := range s.items {
		if topic != "" && b.Topic != topic {
			continue
		}
		if novelty.Similarity(text, b.Text) >= threshold {
			out = append(out, b)
		}
	}
	return out
}

// flush writes the store atomically. Callers hold s.mu.
func (s *Store) flush() error {
	raw, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("bookmarks: encode: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("bookmarks: mkdir %s: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("bookmarks: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("bookmarks: rename: %w", err)
	}
	return nil
}
