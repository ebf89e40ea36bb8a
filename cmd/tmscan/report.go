package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/praetorian-inc/tmscan/pkg/store"
	"github.com/praetorian-inc/tmscan/pkg/types"
	"github.com/spf13/cobra"
)

var (
	reportDatastore string
	reportFormat    string
	reportColor     string
)

// reportStyles holds color formatters for human output
type reportStyles struct {
	heading *color.Color
	id      *color.Color
	tag     *color.Color
}

func newReportStyles(enabled bool) *reportStyles {
	s := &reportStyles{
		heading: color.New(color.Bold),
		id:      color.New(color.FgHiGreen),
		tag:     color.New(color.FgHiBlue),
	}
	for _, c := range []*color.Color{s.heading, s.id, s.tag} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

// sessionReport is a session with its tokens for JSON output.
type sessionReport struct {
	*types.Session
	Tokens []*types.Token `json:"tokens"`
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize recorded sessions",
	Long:  "Read tokenization sessions from a datastore and output a summary report",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDatastore, "datastore", "tmscan.db", "Path to datastore file")
	reportCmd.Flags().StringVar(&reportFormat, "format", "human", "Output format: human, json")
	reportCmd.Flags().StringVar(&reportColor, "color", "auto", "Color output: auto, always, never")
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportDatastore == ":memory:" {
		return fmt.Errorf("cannot report from in-memory store")
	}
	if _, err := os.Stat(reportDatastore); err != nil {
		return fmt.Errorf("datastore not found: %s", reportDatastore)
	}

	s, err := store.New(store.Config{Path: reportDatastore})
	if err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer s.Close()

	sessions, err := s.GetSessions()
	if err != nil {
		return fmt.Errorf("retrieving sessions: %w", err)
	}

	switch reportFormat {
	case "json":
		return outputReportJSON(cmd, s, sessions)
	case "human":
		return outputReportHuman(cmd, s, sessions)
	default:
		return fmt.Errorf("unknown output format: %s", reportFormat)
	}
}

func outputReportJSON(cmd *cobra.Command, s store.Store, sessions []*types.Session) error {
	reports := make([]sessionReport, 0, len(sessions))
	for _, session := range sessions {
		tokens, err := s.GetTokens(session.ID)
		if err != nil {
			return fmt.Errorf("retrieving tokens for %s: %w", session.ID, err)
		}
		reports = append(reports, sessionReport{Session: session, Tokens: tokens})
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(reports)
}

func outputReportHuman(cmd *cobra.Command, s store.Store, sessions []*types.Session) error {
	out := cmd.OutOrStdout()
	st := newReportStyles(colorEnabled(reportColor))

	st.heading.Fprintln(out, "=== tmscan Report ===")
	fmt.Fprintf(out, "Datastore: %s\n", reportDatastore)
	fmt.Fprintf(out, "Total sessions: %d\n", len(sessions))

	for i, session := range sessions {
		tokens, err := s.GetTokens(session.ID)
		if err != nil {
			return fmt.Errorf("retrieving tokens for %s: %w", session.ID, err)
		}

		fmt.Fprintln(out)
		st.heading.Fprintf(out, "Session %d/%d ", i+1, len(sessions))
		st.id.Fprintln(out, session.ID)
		fmt.Fprintf(out, "Source: %s\n", session.Source)
		if session.PatternSet != "" {
			fmt.Fprintf(out, "Pattern set: %s\n", session.PatternSet)
		}
		fmt.Fprintf(out, "Characters: %d\n", session.TextLength)
		fmt.Fprintf(out, "Tokens: %d\n", session.TokenCount)

		counts, order := tagCounts(tokens)
		for _, tag := range order {
			fmt.Fprintf(out, "  %s %d\n", st.tag.Sprint(tag), counts[tag])
		}
	}

	return nil
}

// tagCounts counts tokens per tag in first-seen order.
func tagCounts(tokens []*types.Token) (map[string]int, []string) {
	counts := make(map[string]int)
	var order []string
	for _, tok := range tokens {
		if _, ok := counts[tok.Tag]; !ok {
			order = append(order, tok.Tag)
		}
		counts[tok.Tag]++
	}
	return counts, order
}
