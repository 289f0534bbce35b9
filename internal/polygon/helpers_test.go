package polygon

import (
	"testing"
	"time"

	"github.com/alexcolls/options-ztrading/internal/fetcher"
)

var fixedNow = time.Date(2024, 1, 10, 14, 30, 0, 0, time.UTC)

// newTestClient returns a Client without retries so failures surface at once.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	api := fetcher.NewClient(fetcher.Options{
		BaseURL:    baseURL,
		APIKey:     "test_api_key",
		Timeout:    5 * time.Second,
		RetryCount: 0,
	})
	t.Cleanup(func() { _ = api.Close() })

	c := New(api)
	c.now = func() time.Time { return fixedNow }
	return c
}
