package polygon

import (
	"context"
	"fmt"
	"strconv"
)

// TickerQuery filters the reference ticker listing.
type TickerQuery struct {
	// Limit is the page size requested from upstream, not a total cap.
	Limit  int
	Market string
	Active bool
}

// DefaultTickerQuery lists active stock tickers, 1000 per page.
func DefaultTickerQuery() TickerQuery {
	return TickerQuery{
		Limit:  1000,
		Market: "stocks",
		Active: true,
	}
}

func (q TickerQuery) params() map[string]string {
	p := map[string]string{
		"active": strconv.FormatBool(q.Active),
	}
	if q.Limit > 0 {
		p["limit"] = strconv.Itoa(q.Limit)
	}
	if q.Market != "" {
		p["market"] = q.Market
	}
	return p
}

// FetchTickers enumerates every page of the reference listing and returns
// the ticker symbols in upstream order. Results without a symbol are skipped.
// Any transport failure fails the whole listing.
func (c *Client) FetchTickers(ctx context.Context, q TickerQuery) ([]string, error) {
	items, err := c.api.ListAll(ctx, TickersEndpoint, q.params())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickers: %w", err)
	}

	tickers := make([]string, 0, len(items))
	for _, item := range items {
		if sym, ok := item["ticker"].(string); ok && sym != "" {
			tickers = append(tickers, sym)
		}
	}
	return tickers, nil
}
