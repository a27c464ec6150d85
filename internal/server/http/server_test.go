package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/linelog/internal/config"
	"github.com/rzbill/linelog/internal/runtime"
	logpkg "github.com/rzbill/linelog/pkg/log"
)

func newServer(t *testing.T, mutate func(*cfgpkg.Config)) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return New(rt, logger), rt
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newServer(t, nil)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
}

func TestWriteThenRead(t *testing.T) {
	s, _ := newServer(t, nil)
	for _, chunk := range []string{"hel", "lo\n"} {
		w := do(t, s, http.MethodPost, "/v1/write", chunk)
		if w.Code != http.StatusOK {
			t.Fatalf("write status: %d %s", w.Code, w.Body)
		}
		var resp struct{ Accepted int }
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Accepted != len(chunk) {
			t.Fatalf("accepted %d", resp.Accepted)
		}
	}

	tests := []struct {
		target string
		code   int
		body   string
		next   string
	}{
		{"/v1/read?offset=0&limit=3", http.StatusOK, "hel", "3"},
		{"/v1/read?offset=3&limit=10", http.StatusOK, "lo\n", "6"},
		{"/v1/read?offset=6", http.StatusNoContent, "", "6"},
		{"/v1/read?offset=-2", http.StatusBadRequest, "", ""},
		{"/v1/read?offset=abc", http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		w := do(t, s, http.MethodGet, tt.target, "")
		if w.Code != tt.code {
			t.Fatalf("%s: status %d", tt.target, w.Code)
		}
		if tt.code == http.StatusOK && w.Body.String() != tt.body {
			t.Fatalf("%s: body %q", tt.target, w.Body.String())
		}
		if tt.next != "" && w.Header().Get("X-Next-Offset") != tt.next {
			t.Fatalf("%s: next %q", tt.target, w.Header().Get("X-Next-Offset"))
		}
	}
}

func TestRecordsAndPosition(t *testing.T) {
	s, _ := newServer(t, nil)
	do(t, s, http.MethodPost, "/v1/write", "ab\n")
	do(t, s, http.MethodPost, "/v1/write", "cde\n")

	w := do(t, s, http.MethodGet, "/v1/records", "")
	var recs struct {
		Records []struct {
			Seq      uint64 `json:"seq"`
			Position int64  `json:"position"`
			Payload  []byte `json:"payload"`
		} `json:"records"`
		Bytes int64 `json:"bytes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs.Records) != 2 || recs.Bytes != 7 || string(recs.Records[1].Payload) != "cde\n" || recs.Records[1].Position != 3 {
		t.Fatalf("unexpected records %+v", recs)
	}

	w = do(t, s, http.MethodGet, "/v1/position?entry=1&offset=2", "")
	var pos struct{ Position int64 }
	_ = json.Unmarshal(w.Body.Bytes(), &pos)
	if w.Code != http.StatusOK || pos.Position != 5 {
		t.Fatalf("position: %d %+v", w.Code, pos)
	}
	if w := do(t, s, http.MethodGet, "/v1/position?entry=5", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing entry status %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/position", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("no entry status %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newServer(t, nil)
	if w := do(t, s, http.MethodGet, "/v1/write", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/v1/read", "x"); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", w.Code)
	}
}

func TestWriteLimits(t *testing.T) {
	s, _ := newServer(t, func(c *cfgpkg.Config) {
		c.Device.MaxPendingBytes = 4
		c.HTTP.MaxBodyBytes = 8
	})
	if w := do(t, s, http.MethodPost, "/v1/write", "abcdef"); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("pending limit status %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/v1/write", "0123456789"); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("body limit status %d", w.Code)
	}
}

func TestStatsAndArchive(t *testing.T) {
	s, rt := newServer(t, func(c *cfgpkg.Config) { c.Device.Capacity = 1 })
	do(t, s, http.MethodPost, "/v1/write", "old\n")
	do(t, s, http.MethodPost, "/v1/write", "new\n")

	w := do(t, s, http.MethodGet, "/v1/stats", "")
	var stats struct {
		Device struct {
			Records  int    `json:"records"`
			Commits  uint64 `json:"commits"`
			Released uint64 `json:"released"`
		} `json:"device"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Device.Records != 1 || stats.Device.Commits != 2 || stats.Device.Released != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rt.Archive().Count() < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("evicted record never archived")
		}
		time.Sleep(5 * time.Millisecond)
	}
	w = do(t, s, http.MethodGet, "/v1/archive?limit=5", "")
	var arch struct {
		Entries []struct {
			Reason  string `json:"reason"`
			Payload []byte `json:"payload"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &arch); err != nil {
		t.Fatalf("decode archive: %v", err)
	}
	if len(arch.Entries) != 1 || arch.Entries[0].Reason != "evicted" || string(arch.Entries[0].Payload) != "old\n" {
		t.Fatalf("unexpected archive %+v", arch)
	}
}

func TestArchiveDisabled(t *testing.T) {
	s, _ := newServer(t, func(c *cfgpkg.Config) { c.Archive.Enabled = false })
	if w := do(t, s, http.MethodGet, "/v1/archive", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newServer(t, nil)
	do(t, s, http.MethodPost, "/v1/write", "x\n")
	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "linelog_commits_total 1") {
		t.Fatalf("metrics: %d %s", w.Code, w.Body)
	}
}

func TestDashboardServed(t *testing.T) {
	s, _ := newServer(t, nil)
	w := do(t, s, http.MethodGet, "/ui/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/v1/follow") {
		t.Fatalf("dashboard: %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newServer(t, nil)
	w := do(t, s, http.MethodOptions, "/v1/write", "")
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: %d %v", w.Code, w.Header())
	}
}

func TestClosedDeviceIsUnavailable(t *testing.T) {
	s, rt := newServer(t, nil)
	_ = rt.Device().Close(context.Background())
	if w := do(t, s, http.MethodPost, "/v1/write", "x\n"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("write status %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/healthz", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status %d", w.Code)
	}
}

func TestFollowStreamsCommits(t *testing.T) {
	s, rt := newServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rt.Device().Write(ctx, []byte("first\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/follow?from_start=true", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	events := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "data: ") {
				events <- strings.TrimPrefix(line, "data: ")
			}
		}
		close(events)
	}()
	next := func() map[string]any {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("stream ended")
			}
			var m map[string]any
			if err := json.Unmarshal([]byte(ev), &m); err != nil {
				t.Fatalf("decode event %q: %v", ev, err)
			}
			return m
		case <-ctx.Done():
			t.Fatalf("timed out waiting for event")
		}
		return nil
	}

	if m := next(); m["seq"] != float64(1) {
		t.Fatalf("first event %v", m)
	}
	if _, err := rt.Device().Write(ctx, []byte("second\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := next(); m["seq"] != float64(2) {
		t.Fatalf("second event %v", m)
	}
}
