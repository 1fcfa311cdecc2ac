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
	"sync"

	"github.com/madspark-labs/madspark/internal/log"
	"github.com/madspark-labs/madspark/pkg/config"
)

var (
	sharedMu sync.Mutex
	shared   *Cache
	sharedOK bool
)

// Shared returns the process-wide cache, constructed lazily from the loaded
// settings. When caching is disabled or construction fails it returns nil,
// which is a valid no-op cache.
func Shared() *Cache {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedOK {
		return shared
	}
	sharedOK = true

	settings := config.Load()
	if !settings.CacheEnabled {
		return nil
	}
	c, err := New(Config{
		Dir:       settings.CacheDir,
		TTL:       settings.CacheTTL,
		MaxSizeMB: settings.CacheMaxSizeMB,
		Logger:    log.Logger(),
	})
	if err != nil {
		log.Warn("cache unavailable, continuing without it")
		return nil
	}
	shared = c
	return shared
}

// ResetShared closes and discards the shared cache so the next Shared call
// rebuilds it. Intended for tests.
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		_ = shared.Close()
	}
	shared = nil
	sharedOK = false
}
