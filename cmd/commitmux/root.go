package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "commitmux",
	Short: "commitmux - cross-repository git-history index and query surface",
	Long: `commitmux incrementally indexes commit history across many
repositories (messages, changed files, patch text) and exposes it for
full-text search, path-touch lookup, commit detail retrieval, and
semantic vector search.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.SetVersionTemplate("commitmux version {{.Version}}\n")
}
