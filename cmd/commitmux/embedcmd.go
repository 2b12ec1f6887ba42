package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/commitmux/internal/embed"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Manage the semantic embedding backfill",
}

var embedBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed every commit of an embedding-enabled repository that does not yet have a vector",
	RunE:  runEmbedBackfill,
}

func init() {
	embedCmd.AddCommand(embedBackfillCmd)
	rootCmd.AddCommand(embedCmd)
}

func runEmbedBackfill(cmd *cobra.Command, args []string) error {
	cfg, logger, db := mustGetApp()

	model, ok, err := db.GetConfig("embed.model")
	if err != nil {
		return err
	}
	if !ok {
		model = cfg.Embed.Model
	}
	endpoint, ok, err := db.GetConfig("embed.endpoint")
	if err != nil {
		return err
	}
	if !ok {
		endpoint = cfg.Embed.Endpoint
	}

	embedFn := embed.HTTPEmbedFunc(http.DefaultClient, endpoint, model)
	embedder := embed.New(db, embedFn, logger, cfg.Embed.BatchSize)

	summary, err := embedder.EmbedPending(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("embedded=%d skipped=%d failed=%d\n", summary.Embedded, summary.Skipped, summary.Failed)
	return nil
}
