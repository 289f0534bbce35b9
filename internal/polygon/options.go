package polygon

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alexcolls/options-ztrading/internal/coordinator"
	"github.com/alexcolls/options-ztrading/internal/fetcher"
)

// ExpirationLayout is the date format of expiration dates.
const ExpirationLayout = "2006-01-02"

// FetchRequest identifies one options chain snapshot.
type FetchRequest struct {
	Ticker     string
	Expiration string
	Contract   fetcher.ContractType
	Limit      int
}

// Validate checks the request can be sent. Contract must be a single
// category; the both mode is expanded by the coordinator.
func (r FetchRequest) Validate() error {
	if strings.TrimSpace(r.Ticker) == "" {
		return &fetcher.ConfigError{Field: "ticker", Message: "must not be empty"}
	}
	if err := ValidateExpiration(r.Expiration); err != nil {
		return err
	}
	if r.Contract != fetcher.ContractCall && r.Contract != fetcher.ContractPut {
		return &fetcher.ConfigError{Field: "contract", Message: fmt.Sprintf("%q is not call or put", r.Contract)}
	}
	if r.Limit < 1 {
		return &fetcher.ConfigError{Field: "limit", Message: fmt.Sprintf("must be positive, got %d", r.Limit)}
	}
	return nil
}

// ValidateExpiration checks a YYYY-MM-DD date.
func ValidateExpiration(s string) error {
	if _, err := time.Parse(ExpirationLayout, s); err != nil {
		return &fetcher.ConfigError{Field: "expiration", Message: fmt.Sprintf("%q is not YYYY-MM-DD", s)}
	}
	return nil
}

func (r FetchRequest) params() map[string]string {
	return map[string]string{
		"contract_type":   string(r.Contract),
		"expiration_date": r.Expiration,
		"limit":           strconv.Itoa(r.Limit),
		"sort":            "strike_price",
		"order":           "asc",
	}
}

// FetchOptionSnapshot fetches the options chain snapshot of one underlying,
// sorted by strike. Each contract becomes a flattened record tagged with the
// ticker and the capture time. An absent or empty results field yields
// *fetcher.EmptyResultError.
func (c *Client) FetchOptionSnapshot(ctx context.Context, req FetchRequest) (fetcher.ResultSet, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload, err := c.api.Get(ctx, snapshotEndpoint+url.PathEscape(req.Ticker), req.params())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s options for %s: %w", req.Contract, req.Ticker, err)
	}

	results, err := fetcher.Results(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s options for %s: %w", req.Contract, req.Ticker, err)
	}
	if len(results) == 0 {
		return nil, &fetcher.EmptyResultError{Key: req.Ticker}
	}

	fetchedAt := c.now()
	records := make(fetcher.ResultSet, 0, len(results))
	for _, raw := range results {
		records = append(records, fetcher.NewRecord(raw, req.Ticker, fetchedAt))
	}
	return records, nil
}

// SnapshotFunc adapts FetchOptionSnapshot to the coordinator for a fixed
// expiration and per-ticker limit.
func (c *Client) SnapshotFunc(expiration string, limit int) coordinator.FetchFunc {
	return func(ctx context.Context, ticker string, contract fetcher.ContractType) (fetcher.ResultSet, error) {
		return c.FetchOptionSnapshot(ctx, FetchRequest{
			Ticker:     ticker,
			Expiration: expiration,
			Contract:   contract,
			Limit:      limit,
		})
	}
}
