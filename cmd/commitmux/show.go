package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/commitmux/internal/query"
)

var showCmd = &cobra.Command{
	Use:   "show <repo> <sha>",
	Short: "Show commit detail: message, author, date, changed files",
	Args:  cobra.ExactArgs(2),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	surface := mustGetSurface()

	detail, err := surface.GetCommit(query.GetCommitInput{Repo: args[0], SHA: args[1]})
	if err != nil {
		return err
	}

	fmt.Printf("commit %s\nAuthor: %s\nDate:   %s\n\n%s\n", detail.SHA, detail.Author, detail.Date, detail.Subject)
	if detail.Body != nil && *detail.Body != "" {
		fmt.Printf("\n%s\n", *detail.Body)
	}
	fmt.Println("\nchanged files:")
	for _, f := range detail.ChangedFiles {
		fmt.Printf("  %s %s\n", f.Status, f.Path)
	}
	return nil
}
