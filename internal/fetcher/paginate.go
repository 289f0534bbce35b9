package fetcher

import (
	"context"
	"fmt"
)

// Page envelope fields used by list endpoints.
const (
	ResultsField = "results"
	NextURLField = "next_url"
)

// ListAll enumerates a paged list endpoint. The first request uses endpoint
// and params; every later one uses the previous page's next_url verbatim,
// which already encodes the query state. The results of all pages are
// concatenated in page order.
//
// Any failure aborts the listing: no partial result is returned.
func (c *Client) ListAll(ctx context.Context, endpoint string, params map[string]string) ([]map[string]any, error) {
	var (
		items  []map[string]any
		target = endpoint
		query  = params
		seen   = make(map[string]struct{})
	)

	for page := 1; ; page++ {
		payload, err := c.Get(ctx, target, query)
		if err != nil {
			return nil, fmt.Errorf("list %s: page %d: %w", endpoint, page, err)
		}

		results, err := Results(payload)
		if err != nil {
			return nil, fmt.Errorf("list %s: page %d: %w", endpoint, page, err)
		}
		items = append(items, results...)

		next, _ := payload[NextURLField].(string)
		if next == "" {
			c.logger.Debug("listing complete", "endpoint", endpoint, "pages", page, "items", len(items))
			return items, nil
		}
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("list %s: page %d: %w", endpoint, page,
				NewValidationError("cursor repeated: "+next, nil))
		}
		seen[next] = struct{}{}

		target, query = next, nil
	}
}

// Results extracts the results array of a response. A missing or null
// field yields no items; entries that are not objects are rejected.
func Results(payload map[string]any) ([]map[string]any, error) {
	raw, ok := payload[ResultsField]
	if !ok || raw == nil {
		return nil, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("%s is %T, want array", ResultsField, raw), nil)
	}

	out := make([]map[string]any, 0, len(list))
	for i, v := range list {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, NewValidationError(fmt.Sprintf("%s[%d] is %T, want object", ResultsField, i, v), nil)
		}
		out = append(out, obj)
	}
	return out, nil
}
