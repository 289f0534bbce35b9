package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alexcolls/options-ztrading/internal/store"
	"github.com/alexcolls/options-ztrading/internal/testutil"
)

// setupEnv points configuration at baseURL and an empty working directory.
func setupEnv(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("POLYGON_API_KEY", "test_api_key")
	t.Setenv("POLYGON_BASE_URL", baseURL)
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "data"))
	t.Setenv("API_RETRY_COUNT", "0")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("METRICS_TEXTFILE", "")
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	if code, _, stderr := runCLI(t); code != 1 || !strings.Contains(stderr, "fetch-tickers") {
		t.Errorf("no args: code=%d stderr=%q, want usage and 1", code, stderr)
	}
	if code, stdout, _ := runCLI(t, "--help"); code != 0 || !strings.Contains(stdout, "fetch-options") {
		t.Errorf("--help: code=%d stdout=%q, want usage and 0", code, stdout)
	}

	setupEnv(t, "http://127.0.0.1:1")
	if code, _, stderr := runCLI(t, "fetch-everything"); code != 1 || !strings.Contains(stderr, "unknown command") {
		t.Errorf("unknown command: code=%d stderr=%q", code, stderr)
	}
}

func TestRun_FetchTickers(t *testing.T) {
	server := testutil.NewPagedServer(t, [][]string{{"AAPL", "MSFT", "SPY"}, {"QQQ", "IWM", "TSLA"}})
	dir := setupEnv(t, server.URL)
	metricsPath := filepath.Join(dir, "metrics.prom")
	t.Setenv("METRICS_TEXTFILE", metricsPath)

	code, stdout, stderr := runCLI(t, "fetch-tickers", "--limit", "3")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "Total Tickers") || !strings.Contains(stdout, "AAPL, MSFT, SPY, QQQ, IWM...") {
		t.Errorf("summary missing from stdout: %q", stdout)
	}

	tickers, err := store.ReadTickers(filepath.Join(dir, "data", store.TickersFile))
	if err != nil {
		t.Fatalf("ReadTickers() returned unexpected error: %v", err)
	}
	if len(tickers) != 6 {
		t.Errorf("saved %d tickers, want 6", len(tickers))
	}
	if got := server.Requests()[0].Query.Get("limit"); got != "3" {
		t.Errorf("limit = %q, want 3", got)
	}

	raw, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(raw), "polygon_requests_total") {
		t.Errorf("metrics textfile lacks request counter")
	}
}

func TestRun_FetchTickers_NoneFound(t *testing.T) {
	server := testutil.NewScriptedServer(t, testutil.JSON(`{"status":"OK","results":[]}`))
	setupEnv(t, server.URL)

	code, _, stderr := runCLI(t, "fetch-tickers")
	if code != 1 || !strings.Contains(stderr, "No tickers found") {
		t.Errorf("code=%d stderr=%q, want 1 and no-tickers message", code, stderr)
	}
}

func TestRun_FetchTickers_MissingAPIKey(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	t.Setenv("POLYGON_API_KEY", "")

	code, _, stderr := runCLI(t, "fetch-tickers")
	if code != 1 || !strings.Contains(stderr, "POLYGON_API_KEY") {
		t.Errorf("code=%d stderr=%q, want 1 naming the credential", code, stderr)
	}
}

func TestRun_FetchOptions_NoTickersFile(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	code, _, stderr := runCLI(t, "fetch-options")
	if code != 1 || !strings.Contains(stderr, "Run 'options fetch-tickers' first") {
		t.Errorf("code=%d stderr=%q, want hint to run fetch-tickers", code, stderr)
	}
}

func TestRun_FetchOptions(t *testing.T) {
	server := testutil.NewSnapshotServer(t, func(ticker, contractType string) (int, string) {
		if ticker == "BAD" {
			return http.StatusNotFound, `{"status":"NOT_FOUND"}`
		}
		return http.StatusOK, testutil.SnapshotBody(ticker, contractType, 2)
	})
	dir := setupEnv(t, server.URL)

	tickersFile := filepath.Join(dir, "my_tickers.csv")
	if _, err := store.WriteTickers(tickersFile, []string{"AAPL", "BAD", "MSFT"}); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.csv")

	code, stdout, stderr := runCLI(t, "fetch-options",
		"-t", tickersFile, "-o", out, "-c", "both", "-e", "2024-01-19", "-w", "2", "-l", "10")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "Unique Tickers") || !strings.Contains(stdout, out) {
		t.Errorf("summary missing from stdout: %q", stdout)
	}
	if !strings.Contains(stderr, "Fetching call options: 3/3 tickers") {
		t.Errorf("progress line missing from stderr: %q", stderr)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	// header + 2 tickers x 2 contracts x 2 passes
	if len(lines) != 9 {
		t.Errorf("output has %d lines, want 9", len(lines))
	}
}

func TestRun_FetchOptions_InvalidFlags(t *testing.T) {
	dir := setupEnv(t, "http://127.0.0.1:1")
	tickersFile := filepath.Join(dir, "t.csv")
	if _, err := store.WriteTickers(tickersFile, []string{"AAPL"}); err != nil {
		t.Fatal(err)
	}

	tests := [][]string{
		{"-t", tickersFile, "-c", "straddle"},
		{"-t", tickersFile, "-e", "01/19/2024"},
		{"-t", tickersFile, "-w", "0"},
		{"-t", tickersFile, "-l", "0"},
		{"--no-such-flag"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			code, _, _ := runCLI(t, append([]string{"fetch-options"}, args...)...)
			if code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
		})
	}
}

func TestRun_FetchOptions_NoRecords(t *testing.T) {
	server := testutil.NewSnapshotServer(t, func(string, string) (int, string) {
		return http.StatusOK, `{"status":"OK","results":[]}`
	})
	dir := setupEnv(t, server.URL)
	if _, err := store.WriteTickers(filepath.Join(dir, "data", store.TickersFile), []string{"AAPL"}); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI(t, "fetch-options")
	if code != 1 || !strings.Contains(stderr, "No options data retrieved") {
		t.Errorf("code=%d stderr=%q, want 1 and no-data message", code, stderr)
	}
}

func TestRun_Verify(t *testing.T) {
	dir := setupEnv(t, "http://127.0.0.1:1")

	code, stdout, _ := runCLI(t, "verify")
	if code != 0 {
		t.Fatalf("verify exit code = %d, stdout = %q", code, stdout)
	}
	if !strings.Contains(stdout, "not found (run fetch-tickers)") {
		t.Errorf("verify should report a missing tickers file: %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, "data")); err != nil {
		t.Errorf("verify should create the data directory: %v", err)
	}

	if _, err := store.WriteTickers(filepath.Join(dir, "data", store.TickersFile), []string{"AAPL", "MSFT"}); err != nil {
		t.Fatal(err)
	}
	if _, stdout, _ = runCLI(t, "verify"); !strings.Contains(stdout, "OK 2 tickers") {
		t.Errorf("verify should count tickers: %q", stdout)
	}
}

func TestRun_Verify_MissingAPIKey(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	t.Setenv("POLYGON_API_KEY", "")

	code, stdout, stderr := runCLI(t, "verify")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "MISSING") || !strings.Contains(stderr, "Check your .env file") {
		t.Errorf("stdout=%q stderr=%q, want missing credential reported", stdout, stderr)
	}
}
