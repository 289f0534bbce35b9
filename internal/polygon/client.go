// Package polygon knows the upstream endpoints this tool reads: the
// reference ticker list and the per-underlying options chain snapshot.
package polygon

import (
	"time"

	"github.com/alexcolls/options-ztrading/internal/fetcher"
)

const (
	// DefaultBaseURL is the production API host.
	DefaultBaseURL = "https://api.polygon.io"

	// TickersEndpoint lists reference tickers, paged by next_url.
	TickersEndpoint = "/v3/reference/tickers"

	snapshotEndpoint = "/v3/snapshot/options/"
)

// Client exposes the endpoints on top of a shared transport.
type Client struct {
	api *fetcher.Client
	now func() time.Time
}

// New creates a Client. The transport is shared, so one Client may be used
// by every worker of a run.
func New(api *fetcher.Client) *Client {
	return &Client{
		api: api,
		now: time.Now,
	}
}
