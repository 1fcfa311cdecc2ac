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

// Package cache implements the disk-backed LLM response cache. Entries live
// in a SQLite database under the resolved cache directory; payloads above a
// size threshold are zstd-compressed. A nil *Cache is valid and disables
// caching: every method is a no-op that reports success.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	_ "github.com/madspark-labs/madspark/internal/sqlitedriver"
	"github.com/madspark-labs/madspark/pkg/config"
	"github.com/madspark-labs/madspark/pkg/types"
)

// compressThreshold is the payload size above which entries are
// zstd-compressed before storage.
const compressThreshold = 4 * 1024

// dbFileName is the cache database file inside the cache directory.
const dbFileName = "madspark-cache.db"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS llm_cache (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	response   BLOB NOT NULL,
	compressed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_llm_cache_expires ON llm_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_llm_cache_created ON llm_cache(created_at);
`

// Config holds cache construction options.
type Config struct {
	// Dir is the requested cache directory, validated against the allowed
	// roots. Empty uses the default user cache location.
	Dir string
	// TTL is the default entry lifetime. Zero or negative means 24 hours.
	TTL time.Duration
	// MaxSizeMB caps the cache volume. Zero means 100 MB; negative means
	// unlimited.
	MaxSizeMB int
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Entries   int64   `json:"entries"`
	SizeBytes int64   `json:"size_bytes"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is the disk-backed response cache. Safe for concurrent use.
type Cache struct {
	db       *sql.DB
	ttl      time.Duration
	maxBytes int64
	logger   *zap.Logger

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu     sync.Mutex
	hits   int64
	misses int64
	sets   int64
}

// New opens (or creates) the cache database. The directory is resolved
// against the path whitelist; see config.ResolveCacheDir.
func New(cfg Config) (*Cache, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 100
	}

	dir := config.ResolveCacheDir(cfg.Dir, cfg.Logger)
	if dir == "" {
		return nil, fmt.Errorf("cache: no usable cache directory")
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: set busy timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: init compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: init decompressor: %w", err)
	}

	var maxBytes int64
	if cfg.MaxSizeMB > 0 {
		maxBytes = int64(cfg.MaxSizeMB) * 1024 * 1024
	}

	c := &Cache{
		db:       db,
		ttl:      cfg.TTL,
		maxBytes: maxBytes,
		logger:   cfg.Logger,
		enc:      enc,
		dec:      dec,
	}
	c.logger.Debug("cache opened",
		zap.String("dir", dir),
		zap.Duration("ttl", cfg.TTL),
		zap.Int("max_size_mb", cfg.MaxSizeMB))
	return c, nil
}

type storedEntry struct {
	Payload  json.RawMessage    `json:"payload"`
	Response *types.LLMResponse `json:"response"`
}

// Get looks up a key. On a hit it returns the stored payload and a response
// copy with Cached set. Expired and malformed entries are silently removed
// and count as misses. A nil receiver always misses.
func (c *Cache) Get(key string) (any, *types.LLMResponse, bool) {
	if c == nil {
		return nil, nil, false
	}

	var (
		payloadBlob, respBlob []byte
		compressed            int
		expiresAt             int64
	)
	err := c.db.QueryRow(
		"SELECT payload, response, compressed, expires_at FROM llm_cache WHERE key = ?", key,
	).Scan(&payloadBlob, &respBlob, &compressed, &expiresAt)
	if err != nil {
		c.countMiss()
		return nil, nil, false
	}

	if time.Now().Unix() >= expiresAt {
		c.remove(key)
		c.countMiss()
		return nil, nil, false
	}

	if compressed != 0 {
		if payloadBlob, err = c.dec.DecodeAll(payloadBlob, nil); err == nil {
			respBlob, err = c.dec.DecodeAll(respBlob, nil)
		}
		if err != nil {
			c.logger.Warn("invalidating corrupt cache entry", zap.String("key", key))
			c.remove(key)
			c.countMiss()
			return nil, nil, false
		}
	}

	var payload any
	if err := json.Unmarshal(payloadBlob, &payload); err != nil {
		c.logger.Warn("invalidating malformed cache payload", zap.String("key", key))
		c.remove(key)
		c.countMiss()
		return nil, nil, false
	}
	var resp types.LLMResponse
	if err := json.Unmarshal(respBlob, &resp); err != nil {
		c.remove(key)
		c.countMiss()
		return nil, nil, false
	}

	resp.Cached = true
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return payload, &resp, true
}

// Set stores a payload/response pair under key. A non-positive ttl falls
// back to the configured default with a warning. A nil receiver succeeds
// without storing.
func (c *Cache) Set(key string, payload any, resp *types.LLMResponse, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	if ttl <= 0 {
		c.logger.Warn("invalid cache TTL, using default",
			zap.Duration("requested", ttl), zap.Duration("default", c.ttl))
		ttl = c.ttl
	}

	payloadBlob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cache: marshal payload: %w", err)
	}
	respBlob, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache: marshal response: %w", err)
	}

	compressed := 0
	if len(payloadBlob)+len(respBlob) > compressThreshold {
		payloadBlob = c.enc.EncodeAll(payloadBlob, nil)
		respBlob = c.enc.EncodeAll(respBlob, nil)
		compressed = 1
	}

	now := time.Now()
	size := int64(len(payloadBlob) + len(respBlob) + len(key))
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO llm_cache
		 (key, payload, response, compressed, created_at, expires_at, size_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, payloadBlob, respBlob, compressed,
		now.Unix(), now.Add(ttl).Unix(), size,
	)
	if err != nil {
		return fmt.Errorf("cache: store entry: %w", err)
	}

	c.mu.Lock()
	c.sets++
	c.mu.Unlock()

	c.evictOverLimit()
	return nil
}

// Invalidate removes one key. Nil receiver succeeds.
func (c *Cache) Invalidate(key string) error {
	if c == nil {
		return nil
	}
	c.remove(key)
	return nil
}

// Clear removes every entry. Nil receiver succeeds.
func (c *Cache) Clear() error {
	if c == nil {
		return nil
	}
	if _, err := c.db.Exec("DELETE FROM llm_cache"); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}

// Stats returns a snapshot of entry counts and hit rates.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	var s Stats
	_ = c.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM llm_cache",
	).Scan(&s.Entries, &s.SizeBytes)

	c.mu.Lock()
	s.Hits, s.Misses, s.Sets = c.hits, c.misses, c.sets
	c.mu.Unlock()

	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Close releases the database handle. Nil receiver succeeds.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	c.enc.Close()
	c.dec.Close()
	return c.db.Close()
}

func (c *Cache) remove(key string) {
	_, _ = c.db.Exec("DELETE FROM llm_cache WHERE key = ?", key)
}

func (c *Cache) countMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// evictOverLimit removes oldest entries until the cache fits the size cap.
// Expired entries go first.
func (c *Cache) evictOverLimit() {
	if c.maxBytes <= 0 {
		return
	}
	_, _ = c.db.Exec("DELETE FROM llm_cache WHERE expires_at <= ?", time.Now().Unix())

	var total int64
	if err := c.db.QueryRow("SELECT COALESCE(SUM(size_bytes), 0) FROM llm_cache").Scan(&total); err != nil {
		return
	}
	for total > c.maxBytes {
		var key string
		var size int64
		err := c.db.QueryRow(
			"SELECT key, size_bytes FROM llm_cache ORDER BY created_at ASC LIMIT 1",
		).Scan(&key, &size)
		if err != nil {
			return
		}
		c.remove(key)
		total -= size
		c.logger.Debug("evicted cache entry over size limit", zap.String("key", key))
	}
}
