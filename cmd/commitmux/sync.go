package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cmerrors "github.com/blackwell-systems/commitmux/internal/errors"
	"github.com/blackwell-systems/commitmux/internal/ingest"
)

var syncCmd = &cobra.Command{
	Use:   "sync <repo>",
	Short: "Walk new commits for a registered repository into the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	_, logger, db := mustGetApp()
	name := strings.TrimSpace(args[0])

	repo, err := db.GetRepoByName(name)
	if err != nil {
		return err
	}
	if repo == nil {
		return cmerrors.NotFoundf("no repository named %s", name)
	}

	ing := ingest.New(db, logger)
	summary, err := ing.SyncRepo(*repo)
	if err != nil {
		return err
	}

	fmt.Printf("indexed=%d already_indexed=%d filtered=%d\n",
		summary.CommitsIndexed, summary.CommitsAlreadyIndexed, summary.CommitsFiltered)
	for _, w := range summary.Errors {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}
