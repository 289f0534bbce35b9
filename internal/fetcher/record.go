package fetcher

import (
	"sort"
	"time"
)

// System-added record fields.
const (
	FieldTicker         = "ticker"
	FieldFetchTimestamp = "fetch_timestamp"
	FieldContractType   = "contract_type"
)

// Record is one flattened upstream result plus system fields.
// Upstream schema is not fixed, so values stay dynamically typed.
type Record map[string]any

// Ticker returns the key that produced the record.
func (r Record) Ticker() string {
	s, _ := r[FieldTicker].(string)
	return s
}

// ResultSet is an ordered sequence of records.
type ResultSet []Record

// NewRecord flattens an upstream JSON object and stamps it with the ticker
// and capture time.
func NewRecord(raw map[string]any, ticker string, fetchedAt time.Time) Record {
	rec := Flatten(raw)
	rec[FieldTicker] = ticker
	rec[FieldFetchTimestamp] = fetchedAt.Format(time.RFC3339Nano)
	return rec
}

// Flatten turns nested objects into dotted keys: {"greeks":{"delta":0.4}}
// becomes {"greeks.delta":0.4}. Arrays and scalars are kept as values.
func Flatten(raw map[string]any) Record {
	out := make(Record, len(raw))
	flattenInto(out, "", raw)
	return out
}

func flattenInto(out Record, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

// Columns returns the union of all record keys: upstream fields sorted, then
// the system fields that are present.
func (rs ResultSet) Columns() []string {
	seen := make(map[string]struct{})
	for _, rec := range rs {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}

	system := []string{FieldTicker, FieldFetchTimestamp, FieldContractType}
	var tail []string
	for _, k := range system {
		if _, ok := seen[k]; ok {
			tail = append(tail, k)
			delete(seen, k)
		}
	}

	cols := make([]string, 0, len(seen)+len(tail))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return append(cols, tail...)
}

// UniqueTickers counts distinct tickers in the set.
func (rs ResultSet) UniqueTickers() int {
	seen := make(map[string]struct{})
	for _, rec := range rs {
		seen[rec.Ticker()] = struct{}{}
	}
	return len(seen)
}
