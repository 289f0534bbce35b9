package fetcher

import (
	"reflect"
	"testing"
	"time"
)

func TestFlatten(t *testing.T) {
	raw := map[string]any{
		"open_interest": 1200.0,
		"details": map[string]any{
			"strike_price":  150.0,
			"contract_type": "put",
		},
		"greeks": map[string]any{
			"delta": -0.4,
			"nested": map[string]any{
				"deep": true,
			},
		},
		"empty":  map[string]any{},
		"prices": []any{1.0, 2.0},
	}

	got := Flatten(raw)
	want := Record{
		"open_interest":         1200.0,
		"details.strike_price":  150.0,
		"details.contract_type": "put",
		"greeks.delta":          -0.4,
		"greeks.nested.deep":    true,
		"empty":                 map[string]any{},
		"prices":                []any{1.0, 2.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %v, want %v", got, want)
	}
}

func TestNewRecord(t *testing.T) {
	at := time.Date(2024, 1, 19, 15, 4, 5, 0, time.UTC)
	rec := NewRecord(map[string]any{"details": map[string]any{"strike_price": 100.0}}, "AAPL", at)

	if rec.Ticker() != "AAPL" {
		t.Errorf("Ticker() = %q, want AAPL", rec.Ticker())
	}
	if rec[FieldFetchTimestamp] != "2024-01-19T15:04:05Z" {
		t.Errorf("%s = %v, want 2024-01-19T15:04:05Z", FieldFetchTimestamp, rec[FieldFetchTimestamp])
	}
	if rec["details.strike_price"] != 100.0 {
		t.Errorf("details.strike_price = %v, want 100", rec["details.strike_price"])
	}
}

func TestResultSet_Columns(t *testing.T) {
	rs := ResultSet{
		{"b": 1, FieldTicker: "AAPL", FieldFetchTimestamp: "t", FieldContractType: "call"},
		{"a": 2, "c": 3, FieldTicker: "MSFT", FieldFetchTimestamp: "t", FieldContractType: "put"},
	}

	want := []string{"a", "b", "c", FieldTicker, FieldFetchTimestamp, FieldContractType}
	if got := rs.Columns(); !reflect.DeepEqual(got, want) {
		t.Errorf("Columns() = %v, want %v", got, want)
	}

	if got := (ResultSet{}).Columns(); len(got) != 0 {
		t.Errorf("empty Columns() = %v, want none", got)
	}
}

func TestResultSet_UniqueTickers(t *testing.T) {
	rs := ResultSet{
		{FieldTicker: "AAPL"},
		{FieldTicker: "AAPL"},
		{FieldTicker: "MSFT"},
	}
	if got := rs.UniqueTickers(); got != 2 {
		t.Errorf("UniqueTickers() = %d, want 2", got)
	}
}

func TestParseContractType(t *testing.T) {
	tests := []struct {
		in      string
		want    ContractType
		passes  []ContractType
		wantErr bool
	}{
		{"call", ContractCall, []ContractType{ContractCall}, false},
		{"PUT", ContractPut, []ContractType{ContractPut}, false},
		{" both ", ContractBoth, []ContractType{ContractCall, ContractPut}, false},
		{"straddle", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseContractType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseContractType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("ParseContractType(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !reflect.DeepEqual(got.Passes(), tt.passes) {
				t.Errorf("Passes() = %v, want %v", got.Passes(), tt.passes)
			}
		})
	}
}
