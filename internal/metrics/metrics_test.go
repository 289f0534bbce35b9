package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequest(t *testing.T) {
	before200 := testutil.ToFloat64(RequestsTotal.WithLabelValues("200"))
	beforeErr := testutil.ToFloat64(RequestsTotal.WithLabelValues("error"))

	ObserveRequest(200)
	ObserveRequest(200)
	ObserveRequest(0)

	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("200")) - before200; got != 2 {
		t.Errorf("status 200 delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("error")) - beforeErr; got != 1 {
		t.Errorf("status error delta = %v, want 1", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	DispatchTasksTotal.WithLabelValues("put", OutcomeOK).Inc()

	path := filepath.Join(t.TempDir(), "options.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() returned unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() returned unexpected error: %v", err)
	}
	if !strings.Contains(string(data), "options_dispatch_tasks_total") {
		t.Errorf("textfile missing options_dispatch_tasks_total:\n%s", data)
	}
}
