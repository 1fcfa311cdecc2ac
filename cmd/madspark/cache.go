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
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madspark-labs/madspark/pkg/cache"
	"github.com/madspark-labs/madspark/pkg/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and hit statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		s := c.Stats()
		fmt.Fprintf(cmd.OutOrStdout(),
			"Entries:  %d\nSize:     %.2f MB\nHits:     %d\nMisses:   %d\nSets:     %d\nHit rate: %.1f%%\n",
			s.Entries, float64(s.SizeBytes)/(1024*1024), s.Hits, s.Misses, s.Sets, s.HitRate*100)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		if err := c.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openCache() (*cache.Cache, error) {
	settings := config.Load()
	return cache.New(cache.Config{
		Dir:       settings.CacheDir,
		TTL:       settings.CacheTTL,
		MaxSizeMB: settings.CacheMaxSizeMB,
		Logger:    zap.NewNop(),
	})
}
