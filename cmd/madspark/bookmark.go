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
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/madspark-labs/madspark/pkg/bookmarks"
	"github.com/madspark-labs/madspark/pkg/config"
	"github.com/madspark-labs/madspark/pkg/types"
)

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark",
	Short: "Manage saved ideas",
}

var bookmarkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved bookmarks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openBookmarks()
		if err != nil {
			return err
		}

		items := store.List()
		sort.Slice(items, func(i, j int) bool {
			return items[i].BookmarkedAt.Before(items[j].BookmarkedAt)
		})
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No bookmarks.")
			return nil
		}
		for _, b := range items {
			line := firstLine(b.Text)
			fmt.Fprintf(cmd.OutOrStdout(), "%s  [%s]  score %d  %s\n",
				b.ID, b.Topic, b.Score, line)
			if len(b.Tags) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "    tags: %s\n", strings.Join(b.Tags, ", "))
			}
		}
		return nil
	},
}

var bookmarkDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openBookmarks()
		if err != nil {
			return err
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
		return nil
	},
}

var similarThreshold float64

var bookmarkSimilarCmd = &cobra.Command{
	Use:   "similar <text>",
	Short: "Find bookmarks similar to the given text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openBookmarks()
		if err != nil {
			return err
		}
		hits := store.FindSimilar(args[0], "", similarThreshold)
		if len(hits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No similar bookmarks.")
			return nil
		}
		for _, b := range hits {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  [%s]  %s\n", b.ID, b.Topic, firstLine(b.Text))
		}
		return nil
	},
}

func init() {
	bookmarkSimilarCmd.Flags().Float64Var(&similarThreshold, "threshold", 0.8, "similarity threshold in (0, 1]")
	bookmarkCmd.AddCommand(bookmarkListCmd)
	bookmarkCmd.AddCommand(bookmarkDeleteCmd)
	bookmarkCmd.AddCommand(bookmarkSimilarCmd)
}

func openBookmarks() (*bookmarks.Store, error) {
	dir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	return bookmarks.Open(bookmarks.Config{Path: filepath.Join(dir, "bookmarks.json")})
}

func saveBookmarks(results []types.EnrichedIdea, topic, contextText string, tags []string) error {
	store, err := openBookmarks()
	if err != nil {
		return err
	}
	for _, r := range results {
		b := types.Bookmark{
			Text:     r.Idea,
			Topic:    topic,
			Context:  contextText,
			Score:    r.ImprovedScore,
			Critique: r.ImprovedCritique,
			Tags:     tags,
		}
		if r.Advocacy != nil {
			b.Advocacy = r.Advocacy.Formatted
		}
		if r.Skepticism != nil {
			b.Skepticism = r.Skepticism.Formatted
		}
		id, err := store.Save(b)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Bookmarked %s\n", id)
	}
	return nil
}
