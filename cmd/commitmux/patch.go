package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/commitmux/internal/query"
)

var patchMaxChars int

var patchCmd = &cobra.Command{
	Use:   "patch <repo> <sha>",
	Short: "Print the decompressed patch text for a commit",
	Args:  cobra.ExactArgs(2),
	RunE:  runPatch,
}

func init() {
	patchCmd.Flags().IntVar(&patchMaxChars, "max-chars", 0, "truncate output to this many characters (0 = no limit)")
	rootCmd.AddCommand(patchCmd)
}

func runPatch(cmd *cobra.Command, args []string) error {
	surface := mustGetSurface()

	var maxBytes *int
	if patchMaxChars > 0 {
		maxBytes = &patchMaxChars
	}

	patch, err := surface.GetPatch(query.GetPatchInput{Repo: args[0], SHA: args[1], MaxBytes: maxBytes})
	if err != nil {
		return err
	}
	fmt.Print(patch.PatchText)
	return nil
}
