package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexcolls/options-ztrading/internal/config"
	"github.com/alexcolls/options-ztrading/internal/logging"
	"github.com/alexcolls/options-ztrading/internal/metrics"
)

const usage = `options: fetch Polygon.io reference tickers and options chain snapshots

Usage:
  options <command> [flags]

Commands:
  fetch-tickers   Fetch all stock tickers and save them to CSV
  fetch-options   Fetch options snapshots for every ticker in a CSV file
  verify          Verify environment setup and configuration

Run 'options <command> --help' for the flags of a command.
`

func main() {
	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, finishing in-flight requests...")
		cancel()
	}()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run dispatches one subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	cmd, rest := args[0], args[1:]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		fmt.Fprint(stdout, usage)
		return 0
	}

	// verify reports a missing credential itself, so it reads without validating.
	cfg, err := config.Read()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to load configuration: %v\n", err)
		return 1
	}

	logger, runID := logging.WithRun(logging.New(cfg.LogLevel, cfg.LogFormat, stderr))
	slog.SetDefault(logger)

	a := &app{
		cfg:    cfg,
		logger: logger,
		stdout: stdout,
		stderr: stderr,
	}

	var code int
	switch cmd {
	case "fetch-tickers":
		code = a.fetchTickers(ctx, rest)
	case "fetch-options":
		code = a.fetchOptions(ctx, rest)
	case "verify":
		code = a.verify(rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 1
	}

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Error("failed to write metrics textfile", "path", cfg.MetricsTextfile, "error", err)
		} else {
			logger.Debug("metrics written", "path", cfg.MetricsTextfile)
		}
	}

	logger.Debug("run finished", "command", cmd, "run_id", runID, "exit_code", code)
	return code
}
