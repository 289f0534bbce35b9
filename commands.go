package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/alexcolls/options-ztrading/internal/config"
	"github.com/alexcolls/options-ztrading/internal/coordinator"
	"github.com/alexcolls/options-ztrading/internal/fetcher"
	"github.com/alexcolls/options-ztrading/internal/polygon"
	"github.com/alexcolls/options-ztrading/internal/store"
)

// app carries what every subcommand needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func (a *app) newFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(a.stderr)
	flags.SortFlags = false
	return flags
}

// parse returns the exit code to use when flag parsing ends the command.
func parse(flags *pflag.FlagSet, args []string) (int, bool) {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		return 1, false
	}
	return 0, true
}

// newPolygon builds the upstream client after validating the configuration.
func (a *app) newPolygon() (*polygon.Client, func(), error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	opts := a.cfg.ClientOptions()
	opts.Logger = a.logger
	api := fetcher.NewClient(opts)
	return polygon.New(api), func() { _ = api.Close() }, nil
}

func (a *app) fail(err error) int {
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return 1
}

func (a *app) fetchTickers(ctx context.Context, args []string) int {
	q := polygon.DefaultTickerQuery()

	flags := a.newFlagSet("fetch-tickers")
	out := flags.StringP("out", "o", a.cfg.TickersPath(), "Output CSV file path")
	flags.IntVarP(&q.Limit, "limit", "l", q.Limit, "Maximum tickers per API request")
	flags.BoolVar(&q.Active, "active-only", q.Active, "Fetch only active tickers")
	if code, ok := parse(flags, args); !ok {
		return code
	}

	client, closeClient, err := a.newPolygon()
	if err != nil {
		return a.fail(err)
	}
	defer closeClient()

	fmt.Fprintln(a.stdout, "Fetching tickers from Polygon.io...")
	start := time.Now()
	tickers, err := client.FetchTickers(ctx, q)
	if err != nil {
		return a.fail(err)
	}
	if len(tickers) == 0 {
		fmt.Fprintln(a.stderr, "No tickers found!")
		return 1
	}

	path, err := store.WriteTickers(*out, tickers)
	if err != nil {
		return a.fail(err)
	}
	a.logger.Info("tickers saved", "count", len(tickers), "path", path, "duration", time.Since(start))

	sample := tickers
	if len(sample) > 5 {
		sample = sample[:5]
	}
	printSummary(a.stdout, "Ticker Fetch Summary", [][2]string{
		{"Total Tickers", fmt.Sprint(len(tickers))},
		{"Output File", path},
		{"Sample Tickers", strings.Join(sample, ", ") + "..."},
	})
	fmt.Fprintf(a.stdout, "Successfully saved %d tickers!\n", len(tickers))
	return 0
}

func (a *app) fetchOptions(ctx context.Context, args []string) int {
	flags := a.newFlagSet("fetch-options")
	expiration := flags.StringP("expiration", "e", a.cfg.DefaultExpiration, "Options expiration date (YYYY-MM-DD)")
	contract := flags.StringP("contract", "c", a.cfg.DefaultContract, "Contract type: call, put, or both")
	limit := flags.IntP("limit", "l", a.cfg.DefaultLimit, "Maximum contracts per ticker")
	tickersPath := flags.StringP("tickers", "t", "", "Path to tickers CSV file (default "+a.cfg.TickersPath()+")")
	out := flags.StringP("out", "o", "", "Output CSV file path (default <contract>_options_<expiration>_<timestamp>.csv)")
	workers := flags.IntP("max-workers", "w", a.cfg.MaxWorkers, "Maximum concurrent workers")
	if code, ok := parse(flags, args); !ok {
		return code
	}

	mode, err := fetcher.ParseContractType(*contract)
	if err != nil {
		return a.fail(err)
	}
	if err := polygon.ValidateExpiration(*expiration); err != nil {
		return a.fail(err)
	}
	if *limit < 1 {
		return a.fail(&fetcher.ConfigError{Field: "limit", Message: fmt.Sprintf("must be positive, got %d", *limit)})
	}

	path := *tickersPath
	if path == "" {
		path = a.cfg.TickersPath()
	}
	tickers, err := store.ReadTickers(path)
	if err != nil {
		if *tickersPath == "" && errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(a.stderr, "No tickers file found! Run 'options fetch-tickers' first.")
			return 1
		}
		return a.fail(err)
	}

	client, closeClient, err := a.newPolygon()
	if err != nil {
		return a.fail(err)
	}
	defer closeClient()

	fmt.Fprintf(a.stdout, "Fetching %s options for %d tickers (exp: %s)...\n", mode, len(tickers), *expiration)

	progress := newProgressPrinter(a.stderr, 250*time.Millisecond)
	coord := coordinator.New(client.SnapshotFunc(*expiration, *limit),
		coordinator.WithLogger(a.logger),
		coordinator.WithProgress(progress.observe))

	start := time.Now()
	records, err := coord.FetchAll(ctx, tickers, mode, *workers)
	interrupted := false
	if err != nil {
		if ctx.Err() == nil {
			return a.fail(err)
		}
		interrupted = true
		a.logger.Warn("fetch interrupted, saving partial results", "records", len(records), "error", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(a.stderr, "No options data retrieved!")
		return 1
	}

	target := *out
	if target == "" {
		target = store.OptionsPath(a.cfg.OutputDir, mode, *expiration, time.Now())
	}
	saved, err := store.WriteResultSet(target, records)
	if err != nil {
		return a.fail(err)
	}
	a.logger.Info("options saved", "records", len(records), "path", saved, "duration", time.Since(start))

	printSummary(a.stdout, "Options Fetch Summary", [][2]string{
		{"Total Records", fmt.Sprint(len(records))},
		{"Unique Tickers", fmt.Sprint(records.UniqueTickers())},
		{"Contract Type", string(mode)},
		{"Expiration", *expiration},
		{"Output File", saved},
	})
	if interrupted {
		fmt.Fprintf(a.stderr, "Interrupted: saved %d partial options records.\n", len(records))
		return 1
	}
	fmt.Fprintf(a.stdout, "Successfully saved %d options records!\n", len(records))
	return 0
}

func (a *app) verify(args []string) int {
	flags := a.newFlagSet("verify")
	if code, ok := parse(flags, args); !ok {
		return code
	}

	fmt.Fprintln(a.stdout, "Verifying Environment Setup")

	var rows [][2]string
	allGood := true

	if a.cfg.PolygonAPIKey != "" {
		rows = append(rows, [2]string{"Polygon API Key", "OK configured"})
	} else {
		rows = append(rows, [2]string{"Polygon API Key", "MISSING"})
		allGood = false
	}

	if err := store.CheckWritable(a.cfg.OutputDir); err != nil {
		rows = append(rows, [2]string{"Data Directory", "ERROR " + err.Error()})
		allGood = false
	} else {
		rows = append(rows, [2]string{"Data Directory", "OK " + a.cfg.OutputDir})
	}

	tickersFile := a.cfg.TickersPath()
	switch tickers, err := store.ReadTickers(tickersFile); {
	case err == nil:
		rows = append(rows, [2]string{"Tickers File", fmt.Sprintf("OK %d tickers", len(tickers))})
	case errors.Is(err, os.ErrNotExist):
		rows = append(rows, [2]string{"Tickers File", "not found (run fetch-tickers)"})
	default:
		a.logger.Debug("tickers file unreadable", "path", tickersFile, "error", err)
		rows = append(rows, [2]string{"Tickers File", "WARN exists but unreadable"})
	}

	if err := a.cfg.Validate(); err != nil && a.cfg.PolygonAPIKey != "" {
		rows = append(rows, [2]string{"Defaults", "ERROR " + err.Error()})
		allGood = false
	}

	printSummary(a.stdout, "Configuration Status", rows)

	if !allGood {
		fmt.Fprintln(a.stderr, "Some configuration items need attention. Check your .env file.")
		return 1
	}
	fmt.Fprintln(a.stdout, "Environment is properly configured!")
	return 0
}

// printSummary writes an aligned two-column table.
func printSummary(w io.Writer, title string, rows [][2]string) {
	fmt.Fprintln(w, title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "  %s\t%s\n", r[0], r[1])
	}
	tw.Flush()
}

// progressPrinter renders coordinator progress as a single updating line
// per pass.
type progressPrinter struct {
	w        io.Writer
	interval time.Duration
	last     time.Time
	records  map[fetcher.ContractType]int
	failed   map[fetcher.ContractType]int
}

func newProgressPrinter(w io.Writer, interval time.Duration) *progressPrinter {
	return &progressPrinter{
		w:        w,
		interval: interval,
		records:  make(map[fetcher.ContractType]int),
		failed:   make(map[fetcher.ContractType]int),
	}
}

// observe is called from the coordinating goroutine only.
func (p *progressPrinter) observe(ev coordinator.Progress) {
	p.records[ev.Contract] += ev.Records
	if ev.Err != nil && !errors.Is(ev.Err, fetcher.ErrEmptyResult) {
		p.failed[ev.Contract]++
	}

	final := ev.Done == ev.Total
	if !final && time.Since(p.last) < p.interval {
		return
	}
	p.last = time.Now()

	fmt.Fprintf(p.w, "\rFetching %s options: %d/%d tickers, %d records, %d failed",
		ev.Contract, ev.Done, ev.Total, p.records[ev.Contract], p.failed[ev.Contract])
	if final {
		fmt.Fprintln(p.w)
	}
}
