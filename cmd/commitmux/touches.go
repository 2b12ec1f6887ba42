package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/commitmux/internal/model"
	"github.com/blackwell-systems/commitmux/internal/query"
)

var (
	touchesRepos string
	touchesLimit int
)

var touchesCmd = &cobra.Command{
	Use:   "touches <path-substring>",
	Short: "List commits that touched a path, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE:  runTouches,
}

func init() {
	touchesCmd.Flags().StringVar(&touchesRepos, "repos", "", "limit to these repo names, comma-separated")
	touchesCmd.Flags().IntVar(&touchesLimit, "limit", 50, "maximum number of results")
	rootCmd.AddCommand(touchesCmd)
}

func runTouches(cmd *cobra.Command, args []string) error {
	surface := mustGetSurface()

	limit := touchesLimit
	results, err := surface.Touches(query.TouchesInput{
		Path: args[0],
		Opts: model.TouchOpts{
			Repos: splitNonEmpty(touchesRepos),
			Limit: &limit,
		},
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s %s %s %s %s\n", r.Repo, r.SHA[:min(8, len(r.SHA))], r.Status, r.Path, r.Subject)
	}
	return nil
}
