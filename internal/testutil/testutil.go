package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Response is one scripted reply of a ScriptedServer.
type Response struct {
	Status int
	Header map[string]string
	Body   string
}

// RecordedRequest is what a stub server saw.
type RecordedRequest struct {
	Path  string
	Query url.Values
	At    time.Time
}

// Recorder keeps the requests a stub server received.
type Recorder struct {
	mu       sync.Mutex
	requests []RecordedRequest
}

func (r *Recorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, RecordedRequest{
		Path:  req.URL.Path,
		Query: req.URL.Query(),
		At:    time.Now(),
	})
}

// Requests returns a copy of the recorded requests in arrival order.
func (r *Recorder) Requests() []RecordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedRequest(nil), r.requests...)
}

// ScriptedServer answers with its responses in order and repeats the last one.
type ScriptedServer struct {
	*httptest.Server
	Recorder

	mu        sync.Mutex
	responses []Response
	next      int
}

// NewScriptedServer starts a server that is closed when the test ends.
func NewScriptedServer(t testing.TB, responses ...Response) *ScriptedServer {
	t.Helper()
	s := &ScriptedServer{responses: responses}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.record(r)

		s.mu.Lock()
		resp := s.responses[len(s.responses)-1]
		if s.next < len(s.responses) {
			resp = s.responses[s.next]
			s.next++
		}
		s.mu.Unlock()

		for k, v := range resp.Header {
			w.Header().Set(k, v)
		}
		writeJSON(w, resp.Status, resp.Body)
	}))
	t.Cleanup(s.Close)
	return s
}

// JSON is a shorthand for a 200 response with body.
func JSON(body string) Response {
	return Response{Status: http.StatusOK, Body: body}
}

// PagedServer serves the reference tickers endpoint in pages linked by
// next_url cursors.
type PagedServer struct {
	*httptest.Server
	Recorder
}

// TickersPath is the reference list endpoint served by PagedServer.
const TickersPath = "/v3/reference/tickers"

// NewPagedServer serves pages[i] as the i-th page. Every page except the
// last links to the next one with an absolute next_url.
func NewPagedServer(t testing.TB, pages [][]string) *PagedServer {
	t.Helper()
	s := &PagedServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		if r.URL.Path != TickersPath {
			writeJSON(w, http.StatusNotFound, `{"status":"NOT_FOUND"}`)
			return
		}

		page := 0
		if c := r.URL.Query().Get("cursor"); c != "" {
			n, err := strconv.Atoi(c)
			if err != nil || n < 0 || n >= len(pages) {
				writeJSON(w, http.StatusBadRequest, `{"status":"ERROR"}`)
				return
			}
			page = n
		}

		body := map[string]any{
			"status":  "OK",
			"results": tickerResults(pages[page]),
		}
		if page+1 < len(pages) {
			body["next_url"] = fmt.Sprintf("%s%s?cursor=%d", s.URL, TickersPath, page+1)
		}
		raw, _ := json.Marshal(body)
		writeJSON(w, http.StatusOK, string(raw))
	}))
	t.Cleanup(s.Close)
	return s
}

func tickerResults(symbols []string) []map[string]any {
	out := make([]map[string]any, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, map[string]any{
			"ticker": sym,
			"name":   sym + " Inc.",
			"market": "stocks",
			"active": true,
		})
	}
	return out
}

// SnapshotReply decides the reply for one snapshot request.
type SnapshotReply func(ticker, contractType string) (status int, body string)

// SnapshotServer serves /v3/snapshot/options/{ticker}.
type SnapshotServer struct {
	*httptest.Server
	Recorder
}

// SnapshotPrefix is the path prefix served by SnapshotServer.
const SnapshotPrefix = "/v3/snapshot/options/"

// NewSnapshotServer starts a snapshot stub driven by reply.
func NewSnapshotServer(t testing.TB, reply SnapshotReply) *SnapshotServer {
	t.Helper()
	s := &SnapshotServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		if !strings.HasPrefix(r.URL.Path, SnapshotPrefix) {
			writeJSON(w, http.StatusNotFound, `{"status":"NOT_FOUND"}`)
			return
		}
		ticker := strings.TrimPrefix(r.URL.Path, SnapshotPrefix)
		status, body := reply(ticker, r.URL.Query().Get("contract_type"))
		writeJSON(w, status, body)
	}))
	t.Cleanup(s.Close)
	return s
}

// SnapshotBody renders a snapshot response with n contracts for ticker.
// Each contract carries nested details and greeks objects.
func SnapshotBody(ticker, contractType string, n int) string {
	results := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		strike := 100 + 5*i
		results = append(results, map[string]any{
			"break_even_price": float64(strike) + 1.25,
			"open_interest":    1000 + i,
			"details": map[string]any{
				"contract_type":   contractType,
				"strike_price":    strike,
				"expiration_date": "2024-01-19",
				"ticker":          fmt.Sprintf("O:%s240119%s%08d", ticker, contractLetter(contractType), strike*1000),
			},
			"greeks": map[string]any{
				"delta": 0.5,
				"gamma": 0.01,
			},
		})
	}
	raw, _ := json.Marshal(map[string]any{"status": "OK", "results": results})
	return string(raw)
}

func contractLetter(contractType string) string {
	if contractType == "call" {
		return "C"
	}
	return "P"
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
