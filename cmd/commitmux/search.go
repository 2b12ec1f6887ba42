package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/commitmux/internal/model"
	"github.com/blackwell-systems/commitmux/internal/query"
)

var (
	searchRepos string
	searchPaths string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over commit messages and diff previews",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchRepos, "repos", "", "limit to these repo names, comma-separated")
	searchCmd.Flags().StringVar(&searchPaths, "paths", "", "require a changed path containing one of these substrings, comma-separated")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runSearch(cmd *cobra.Command, args []string) error {
	surface := mustGetSurface()

	limit := searchLimit
	results, err := surface.Search(query.SearchInput{
		Query: args[0],
		Opts: model.SearchOpts{
			Repos: splitNonEmpty(searchRepos),
			Paths: splitNonEmpty(searchPaths),
			Limit: &limit,
		},
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s %s %s (%s)\n", r.Repo, r.SHA[:min(8, len(r.SHA))], r.Subject, r.Author)
	}
	return nil
}
