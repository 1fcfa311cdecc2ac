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
	"sync"

	"github.com/madspark-labs/madspark/internal/log"
	"github.com/madspark-labs/madspark/pkg/cache"
	"github.com/madspark-labs/madspark/pkg/config"
)

var (
	routerMu     sync.Mutex
	sharedRouter *Router
)

// GetRouter returns a lazily constructed process-wide router. New code
// should construct and inject its own Router so metrics stay per-run; this
// accessor exists for callers that predate injection.
func GetRouter() *Router {
	routerMu.Lock()
	defer routerMu.Unlock()
	if sharedRouter == nil {
		settings := config.Load()
		sharedRouter = New(Config{
			Provider:        settings.Provider,
			ModelTier:       settings.ModelTier,
			FallbackEnabled: settings.FallbackEnabled,
			Cache:           cache.Shared(),
			CacheTTL:        settings.CacheTTL,
			Logger:          log.Logger(),
		})
	}
	return sharedRouter
}

// ResetRouter discards the shared router. Intended for tests.
func ResetRouter() {
	routerMu.Lock()
	defer routerMu.Unlock()
	sharedRouter = nil
}
