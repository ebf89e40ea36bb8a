package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/praetorian-inc/tmscan"
	"github.com/praetorian-inc/tmscan/pkg/serve"
	"github.com/spf13/cobra"
)

var (
	serveTimeout  time.Duration
	serveTolerant bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as streaming scanner server",
	Long: `Run tmscan as a long-lived server that accepts scanner requests
via stdin and writes responses to stdout using NDJSON format.

Requests are create_scanner, find_next_match, destroy_scanner, stats and
close. The process serves requests until stdin closes, a close request
arrives, or SIGTERM is received.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 5*time.Second, "Per-pattern match timeout")
	serveCmd.Flags().BoolVar(&serveTolerant, "tolerant", false, "Skip patterns that time out instead of failing the request")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd.ErrOrStderr())

	opts := []tmscan.Option{
		tmscan.WithLogger(logger),
		tmscan.WithMatchTimeout(serveTimeout),
	}
	if serveTolerant {
		opts = append(opts, tmscan.WithTolerant())
	}
	engine := tmscan.NewEngine(opts...)
	defer engine.Close()

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := serve.NewServer(engine, cmd.InOrStdin(), cmd.OutOrStdout())
	srv.SetLogger(logger)
	return srv.Run(ctx)
}
