package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/alexcolls/options-ztrading/internal/fetcher"
	"github.com/alexcolls/options-ztrading/internal/metrics"
)

// FetchFunc fetches the records of one ticker for one contract category.
type FetchFunc func(ctx context.Context, ticker string, contract fetcher.ContractType) (fetcher.ResultSet, error)

// Progress is reported once per finished task, in completion order.
type Progress struct {
	Contract fetcher.ContractType
	Ticker   string
	Done     int
	Total    int
	Records  int
	Err      error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for per-ticker failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithProgress registers an observer called from the coordinating goroutine
// after each task completes. It must not block for long.
func WithProgress(fn func(Progress)) Option {
	return func(c *Coordinator) {
		c.progress = fn
	}
}

// Coordinator fans per-ticker fetches out to a bounded worker pool and
// merges their records.
type Coordinator struct {
	fetch    FetchFunc
	logger   *slog.Logger
	progress func(Progress)
}

// New creates a new Coordinator around fetch.
func New(fetch FetchFunc, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetch:  fetch,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// result is sent from a worker to the coordinating goroutine.
type result struct {
	ticker  string
	records fetcher.ResultSet
	err     error
}

// FetchAll fetches every key with at most maxWorkers fetches in flight.
//
// For mode both, a complete call pass runs before the put pass starts, and
// every record is tagged with the contract type of its pass. Within a pass
// records are merged in task completion order.
//
// A failing or empty key contributes nothing and does not stop the batch.
// Only setup problems (maxWorkers < 1, unknown mode) fail the call. If ctx
// is cancelled, no new tasks are submitted, in-flight ones are drained, and
// the records gathered so far are returned with the context's error.
func (c *Coordinator) FetchAll(ctx context.Context, keys []string, mode fetcher.ContractType, maxWorkers int) (fetcher.ResultSet, error) {
	if maxWorkers < 1 {
		return nil, &fetcher.ConfigError{Field: "max_workers", Message: fmt.Sprintf("must be at least 1, got %d", maxWorkers)}
	}
	if _, err := fetcher.ParseContractType(string(mode)); err != nil {
		return nil, err
	}
	if c.fetch == nil {
		return nil, &fetcher.ConfigError{Field: "fetch", Message: "no fetch function configured"}
	}

	tag := mode == fetcher.ContractBoth
	merged := fetcher.ResultSet{}

	for _, contract := range mode.Passes() {
		if err := ctx.Err(); err != nil {
			return merged, fmt.Errorf("fetch interrupted before %s pass: %w", contract, err)
		}
		merged = append(merged, c.runPass(ctx, keys, contract, maxWorkers, tag)...)
	}

	if err := ctx.Err(); err != nil {
		return merged, fmt.Errorf("fetch interrupted: %w", err)
	}
	return merged, nil
}

// runPass runs one pool for one contract category and returns once every
// submitted task has finished.
func (c *Coordinator) runPass(ctx context.Context, keys []string, contract fetcher.ContractType, maxWorkers int, tag bool) fetcher.ResultSet {
	// Buffered to len(keys) so workers never wait on the merge loop.
	results := make(chan result, len(keys))

	p := pool.New().WithMaxGoroutines(maxWorkers)
	go func() {
		defer close(results)
		for _, key := range keys {
			if ctx.Err() != nil {
				break
			}
			p.Go(func() {
				results <- c.fetchOne(ctx, key, contract)
			})
		}
		p.Wait()
	}()

	var (
		merged fetcher.ResultSet
		done   int
	)
	for r := range results {
		done++
		outcome := metrics.OutcomeOK

		switch {
		case r.err != nil && errors.Is(r.err, fetcher.ErrEmptyResult):
			outcome = metrics.OutcomeEmpty
			c.logger.Debug("no data for ticker",
				"ticker", r.ticker,
				"contract_type", contract)
		case r.err != nil:
			outcome = metrics.OutcomeError
			c.logger.Warn("fetch failed",
				"ticker", r.ticker,
				"contract_type", contract,
				"error", r.err)
		case len(r.records) == 0:
			outcome = metrics.OutcomeEmpty
		}
		metrics.DispatchTasksTotal.WithLabelValues(string(contract), outcome).Inc()

		contributed := 0
		if outcome == metrics.OutcomeOK {
			for _, rec := range r.records {
				if rec == nil {
					continue
				}
				if rec.Ticker() == "" {
					rec[fetcher.FieldTicker] = r.ticker
				}
				if tag {
					rec[fetcher.FieldContractType] = string(contract)
				}
				merged = append(merged, rec)
				contributed++
			}
			metrics.RecordsTotal.WithLabelValues(string(contract)).Add(float64(contributed))
		}

		if c.progress != nil {
			c.progress(Progress{
				Contract: contract,
				Ticker:   r.ticker,
				Done:     done,
				Total:    len(keys),
				Records:  contributed,
				Err:      r.err,
			})
		}
	}

	c.logger.Info("pass complete",
		"contract_type", contract,
		"tickers", len(keys),
		"completed", done,
		"records", len(merged))

	return merged
}

// fetchOne runs the fetch for one key. A panic is reported as that key's
// error rather than tearing down the pool.
func (c *Coordinator) fetchOne(ctx context.Context, key string, contract fetcher.ContractType) result {
	var (
		records fetcher.ResultSet
		err     error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		records, err = c.fetch(ctx, key, contract)
	})
	if rec := catcher.Recovered(); rec != nil {
		err = rec.AsError()
	}
	return result{ticker: key, records: records, err: err}
}
