package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/praetorian-inc/tmscan"
	"github.com/praetorian-inc/tmscan/pkg/patternset"
	"github.com/praetorian-inc/tmscan/pkg/store"
	"github.com/praetorian-inc/tmscan/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	scanPatternsPath string
	scanPatternSet   string
	scanMaxCacheSize int
	scanTimeout      time.Duration
	scanTolerant     bool
	scanOutputFormat string
	scanDatastore    string
	scanColor        string
)

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "Tokenize a file with a pattern set",
	Long: `Tokenize a file, or stdin when the file is "-", by repeatedly finding the
next match of a pattern set. Tokens are printed and optionally recorded in a
datastore.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanPatternsPath, "patterns", "", "Path to a pattern set YAML file")
	scanCmd.Flags().StringVar(&scanPatternSet, "pattern-set", "json", "Built-in pattern set ID (ignored with --patterns)")
	scanCmd.Flags().IntVar(&scanMaxCacheSize, "max-cache-size", 16, "Maximum number of live scanners")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 5*time.Second, "Per-pattern match timeout")
	scanCmd.Flags().BoolVar(&scanTolerant, "tolerant", false, "Skip patterns that time out instead of failing")
	scanCmd.Flags().StringVar(&scanOutputFormat, "format", "text", "Output format: text, json")
	scanCmd.Flags().StringVar(&scanDatastore, "datastore", "", "Record the session in this database (\":memory:\" for none on disk)")
	scanCmd.Flags().StringVar(&scanColor, "color", "auto", "Color output: auto, always, never")
}

// tokenStyles holds color formatters for text output
type tokenStyles struct {
	span *color.Color
	tag  *color.Color
	text *color.Color
}

func newTokenStyles(enabled bool) *tokenStyles {
	s := &tokenStyles{
		span: color.New(color.FgHiGreen),
		tag:  color.New(color.Bold, color.FgHiBlue),
		text: color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{s.span, s.tag, s.text} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

func runScan(cmd *cobra.Command, args []string) error {
	source := args[0]
	text, err := readSource(cmd, source)
	if err != nil {
		return err
	}

	ps, err := loadPatternSet(scanPatternsPath, scanPatternSet)
	if err != nil {
		return fmt.Errorf("loading patterns: %w", err)
	}

	opts := []tmscan.Option{
		tmscan.WithLogger(newLogger(cmd.ErrOrStderr())),
		tmscan.WithMatchTimeout(scanTimeout),
	}
	if scanTolerant {
		opts = append(opts, tmscan.WithTolerant())
	}
	engine := tmscan.NewEngine(opts...)
	defer engine.Close()

	id, err := engine.CreateScannerFromSet(ps, scanMaxCacheSize)
	if err != nil {
		return fmt.Errorf("creating scanner: %w", err)
	}
	defer engine.DestroyScanner(id)

	tokens, err := tokenize(engine, id, text)
	if err != nil {
		return err
	}

	if scanDatastore != "" {
		fingerprint, err := engine.Fingerprint(id)
		if err != nil {
			return err
		}
		if err := recordSession(scanDatastore, source, ps, fingerprint, text, tokens); err != nil {
			return fmt.Errorf("recording session: %w", err)
		}
	}

	switch scanOutputFormat {
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(tokens)
	case "text":
		return outputTokensText(cmd, text, tokens)
	default:
		return fmt.Errorf("unknown output format: %s", scanOutputFormat)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func readSource(cmd *cobra.Command, source string) (string, error) {
	if source == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", source, err)
	}
	return string(data), nil
}

func loadPatternSet(path, builtinID string) (*types.PatternSet, error) {
	loader := patternset.NewLoader()
	if path != "" {
		ps, err := loader.LoadPatternSetFile(path)
		if err != nil {
			return nil, err
		}
		if err := patternset.ValidatePatternSet(ps); err != nil {
			return nil, err
		}
		return ps, nil
	}
	return loader.Builtin(builtinID)
}

// tokenize walks text from the start, taking the next match each time.
// An empty match is recorded once and the cursor moves one character past it.
func tokenize(engine *tmscan.Engine, id uint64, text string) ([]*types.Token, error) {
	length := len([]rune(text))
	tokens := []*types.Token{}

	for pos := 0; pos < length; {
		m, err := engine.FindNextMatchSync(id, text, pos)
		if err != nil {
			return tokens, fmt.Errorf("matching at %d: %w", pos, err)
		}
		if !m.Matched {
			break
		}
		tokens = append(tokens, types.TokenFromMatch(len(tokens), m))
		if m.End > m.Start {
			pos = m.End
		} else {
			pos = m.Start + 1
		}
	}

	return tokens, nil
}

func recordSession(path, source string, ps *types.PatternSet, fingerprint uint64, text string, tokens []*types.Token) error {
	s, err := store.New(store.Config{Path: path})
	if err != nil {
		return err
	}
	defer s.Close()

	session := &types.Session{
		ID:          types.SessionID(fingerprint, text),
		Source:      source,
		PatternSet:  ps.ID,
		Fingerprint: fingerprint,
		TextHash:    types.HashText(text),
		TextLength:  len([]rune(text)),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.AddSession(session); err != nil {
		return err
	}
	return s.AddTokens(session.ID, tokens)
}

// colorEnabled resolves a --color value against the terminal and NO_COLOR.
func colorEnabled(mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default: // "auto"
		return term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""
	}
}

func outputTokensText(cmd *cobra.Command, text string, tokens []*types.Token) error {
	out := cmd.OutOrStdout()
	s := newTokenStyles(colorEnabled(scanColor))
	runes := []rune(text)

	for _, tok := range tokens {
		fmt.Fprintf(out, "%s\t%s\t%s\n",
			s.span.Sprintf("%d-%d", tok.Start, tok.End),
			s.tag.Sprint(tok.Tag),
			s.text.Sprintf("%q", string(runes[tok.Start:tok.End])),
		)
	}
	fmt.Fprintf(out, "%d tokens\n", len(tokens))
	return nil
}
