package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/praetorian-inc/tmscan/pkg/patternset"
	"github.com/praetorian-inc/tmscan/pkg/types"
	"github.com/spf13/cobra"
)

var (
	patternsPath    string
	patternsInclude string
	patternsExclude string
	outputFormat    string
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Manage pattern sets",
	Long:  "Commands for listing and inspecting pattern sets",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available pattern sets",
	Long:  "Display the built-in pattern sets, or the set in a file, with their IDs and sizes",
	RunE:  runPatternsList,
}

func init() {
	patternsCmd.AddCommand(patternsListCmd)
	patternsListCmd.Flags().StringVar(&patternsPath, "patterns", "", "Path to a pattern set YAML file")
	patternsListCmd.Flags().StringVar(&patternsInclude, "include", "", "Include sets whose ID matches a regex (comma-separated)")
	patternsListCmd.Flags().StringVar(&patternsExclude, "exclude", "", "Exclude sets whose ID matches a regex (comma-separated)")
	patternsListCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	loader := patternset.NewLoader()

	var sets []*types.PatternSet
	var err error

	if patternsPath != "" {
		ps, loadErr := loader.LoadPatternSetFile(patternsPath)
		if loadErr != nil {
			return fmt.Errorf("loading pattern set from %s: %w", patternsPath, loadErr)
		}
		sets = []*types.PatternSet{ps}
	} else {
		sets, err = loader.LoadBuiltinPatternSets()
		if err != nil {
			return fmt.Errorf("loading builtin pattern sets: %w", err)
		}
	}

	if patternsInclude != "" || patternsExclude != "" {
		sets, err = patternset.Filter(sets, patternset.FilterConfig{
			Include: patternset.ParsePatterns(patternsInclude),
			Exclude: patternset.ParsePatterns(patternsExclude),
		})
		if err != nil {
			return fmt.Errorf("filtering pattern sets: %w", err)
		}
	}

	switch outputFormat {
	case "json":
		return outputPatternSetsJSON(cmd, sets)
	case "table":
		return outputPatternSetsTable(cmd, sets)
	default:
		return fmt.Errorf("unknown output format: %s", outputFormat)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func outputPatternSetsJSON(cmd *cobra.Command, sets []*types.PatternSet) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(sets)
}

func outputPatternSetsTable(cmd *cobra.Command, sets []*types.PatternSet) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "ID\tName\tPatterns\n")
	fmt.Fprintf(w, "--\t----\t--------\n")

	for _, ps := range sets {
		fmt.Fprintf(w, "%s\t%s\t%d\n", ps.ID, ps.Name, len(ps.Patterns))
	}

	return nil
}
