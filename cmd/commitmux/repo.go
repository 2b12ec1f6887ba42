package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/commitmux/internal/model"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the registered repository set",
}

var (
	repoAddRemote        string
	repoAddDefaultBranch string
	repoAddForkOf        string
	repoAddAuthorFilter  string
	repoAddExclude       []string
)

var repoAddCmd = &cobra.Command{
	Use:   "add <name> <path>",
	Short: "Register a repository at an existing local path",
	Args:  cobra.ExactArgs(2),
	RunE:  runRepoAdd,
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories with commit counts and last sync time",
	RunE:  runRepoList,
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Unregister a repository and delete all of its indexed rows",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoRemove,
}

func init() {
	repoAddCmd.Flags().StringVar(&repoAddRemote, "remote", "", "remote URL of a managed clone")
	repoAddCmd.Flags().StringVar(&repoAddDefaultBranch, "branch", "", "default branch to resolve the sync tip from")
	repoAddCmd.Flags().StringVar(&repoAddForkOf, "fork-of", "", "upstream revision in the local repository (e.g. upstream/main), for best-effort exclusion of upstream history")
	repoAddCmd.Flags().StringVar(&repoAddAuthorFilter, "author-filter", "", "only index commits from this author email")
	repoAddCmd.Flags().StringSliceVar(&repoAddExclude, "exclude", nil, "path prefixes to exclude, comma-separated")

	repoCmd.AddCommand(repoAddCmd, repoListCmd, repoRemoveCmd)
	rootCmd.AddCommand(repoCmd)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func runRepoAdd(cmd *cobra.Command, args []string) error {
	_, _, db := mustGetApp()
	name, path := args[0], args[1]

	repo, err := db.AddRepo(model.RepoInput{
		Name:            name,
		LocalPath:       path,
		RemoteURL:       optionalString(repoAddRemote),
		DefaultBranch:   optionalString(repoAddDefaultBranch),
		ForkOf:          optionalString(repoAddForkOf),
		AuthorFilter:    optionalString(repoAddAuthorFilter),
		ExcludePrefixes: repoAddExclude,
	})
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (repo_id=%d, path=%s)\n", repo.Name, repo.RepoID, repo.LocalPath)
	return nil
}

func runRepoList(cmd *cobra.Command, args []string) error {
	_, _, db := mustGetApp()
	entries, err := db.ListReposWithStats()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no repositories registered")
		return nil
	}
	for _, e := range entries {
		synced := "never"
		if e.LastSyncedAt != nil {
			synced = fmt.Sprintf("%d", *e.LastSyncedAt)
		}
		fmt.Printf("%-24s commits=%-6d last_synced=%s\n", e.Name, e.CommitCount, synced)
	}
	return nil
}

func runRepoRemove(cmd *cobra.Command, args []string) error {
	_, _, db := mustGetApp()
	name := strings.TrimSpace(args[0])
	if err := db.RemoveRepo(name); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", name)
	return nil
}
