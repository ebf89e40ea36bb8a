package main

import (
	"fmt"

	"github.com/praetorian-inc/tmscan/pkg/store"
	"github.com/spf13/cobra"
)

var (
	mergeOutput string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source1.db> <source2.db> [source3.db...]",
	Short: "Merge multiple session databases",
	Long: `Merge multiple tmscan session databases into a single output database.

Sessions are keyed by pattern fingerprint and text hash, so the same text
scanned with the same patterns is only stored once in the merged database.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "merged.db", "Output database path")
}

func runMerge(cmd *cobra.Command, args []string) error {
	stats, err := store.Merge(store.MergeConfig{
		SourcePaths: args,
		DestPath:    mergeOutput,
	})
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merge complete:\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  Sources processed: %d\n", stats.SourcesProcessed)
	fmt.Fprintf(cmd.OutOrStdout(), "  Sessions merged: %d\n", stats.SessionsMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "  Tokens merged: %d\n", stats.TokensMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", mergeOutput)

	return nil
}
