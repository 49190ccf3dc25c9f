package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nao1215/ripnft/internal/model"
)

// fastRetry keeps rate-limit tests quick.
var fastRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

// newFixtureServer serves deterministic responses keyed by path:
//
//	/ok/N      200 {"index":N}
//	/missing   404
//	/badjson   200 with a non-JSON body
//	/limited   429 forever
func newFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"index":%q}`, strings.TrimPrefix(r.URL.Path, "/ok/"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/badjson", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>gateway error</html>")
	})
	mux.HandleFunc("/limited", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()

	base := []Option{
		WithConcurrency(4),
		WithBatchTimeout(10 * time.Second),
		WithRetryPolicy(fastRetry),
	}
	f, err := New(http.DefaultClient, append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

// mixedTasks returns n tasks cycling through every fixture outcome.
func mixedTasks(baseURL string, n int) []model.FetchTask {
	tasks := make([]model.FetchTask, n)
	for i := range tasks {
		var url string
		switch i % 5 {
		case 0, 1:
			url = fmt.Sprintf("%s/ok/%d", baseURL, i)
		case 2:
			url = baseURL + "/missing"
		case 3:
			url = baseURL + "/badjson"
		case 4:
			url = "" // absent
		}
		tasks[i] = model.FetchTask{Index: i, URL: url}
	}
	return tasks
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires a client", func(t *testing.T) {
		t.Parallel()
		_, err := New(nil, WithConcurrency(1), WithBatchTimeout(time.Second))
		if !errors.Is(err, ErrNilClient) {
			t.Errorf("expected ErrNilClient, got %v", err)
		}
	})

	t.Run("requires explicit concurrency", func(t *testing.T) {
		t.Parallel()
		_, err := New(http.DefaultClient, WithBatchTimeout(time.Second))
		if !errors.Is(err, ErrInvalidConcurrency) {
			t.Errorf("expected ErrInvalidConcurrency, got %v", err)
		}
	})

	t.Run("requires explicit batch timeout", func(t *testing.T) {
		t.Parallel()
		_, err := New(http.DefaultClient, WithConcurrency(2))
		if !errors.Is(err, ErrInvalidBatchTimeout) {
			t.Errorf("expected ErrInvalidBatchTimeout, got %v", err)
		}
	})

	t.Run("rejects negative task timeout", func(t *testing.T) {
		t.Parallel()
		_, err := New(http.DefaultClient, WithConcurrency(2), WithBatchTimeout(time.Second), WithTaskTimeout(-1))
		if !errors.Is(err, ErrInvalidTaskTimeout) {
			t.Errorf("expected ErrInvalidTaskTimeout, got %v", err)
		}
	})

	t.Run("valid options", func(t *testing.T) {
		t.Parallel()
		f, err := New(http.DefaultClient, WithConcurrency(2), WithBatchTimeout(time.Second), WithLogger(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.logger == nil {
			t.Error("expected default logger")
		}
		if f.Progress() != nil {
			t.Error("expected no progress before first batch")
		}
	})
}

func TestFetchAll(t *testing.T) {
	t.Parallel()

	t.Run("returns exactly one result per index for mixed outcomes", func(t *testing.T) {
		t.Parallel()

		srv := newFixtureServer(t)
		f := newTestFetcher(t)

		const n = 25
		results, err := f.FetchAll(context.Background(), mixedTasks(srv.URL, n))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results.Len() != n {
			t.Fatalf("expected %d results, got %d", n, results.Len())
		}
		for i := 0; i < n; i++ {
			r := results.Get(i)
			if r == nil {
				t.Fatalf("missing result for index %d", i)
			}
			if r.Index != i {
				t.Errorf("result for %d carries index %d", i, r.Index)
			}

			var want model.ErrorKind
			switch i % 5 {
			case 0, 1:
				want = model.ErrorKindNone
			case 2:
				want = model.ErrorKindNetwork
			case 3:
				want = model.ErrorKindDecode
			case 4:
				want = model.ErrorKindNoURL
			}
			if r.ErrKind != want {
				t.Errorf("index %d: expected kind %v, got %v", i, want, r.ErrKind)
			}
		}
	})

	t.Run("absent url makes no request", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			fmt.Fprint(w, `{}`)
		}))
		t.Cleanup(srv.Close)

		f := newTestFetcher(t)
		results, err := f.FetchAll(context.Background(), []model.FetchTask{{Index: 0}, {Index: 1}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hits.Load() != 0 {
			t.Errorf("expected no requests, got %d", hits.Load())
		}
		if r := results.Get(1); r.Payload != nil || r.Attempts != 0 {
			t.Errorf("expected absent payload and no attempts, got %+v", r)
		}
		if f.Progress().Completed() != 0 {
			t.Errorf("expected no progress, got %d", f.Progress().Completed())
		}
	})

	t.Run("rate limited item does not affect siblings", func(t *testing.T) {
		t.Parallel()

		srv := newFixtureServer(t)
		f := newTestFetcher(t)

		tasks := []model.FetchTask{
			{Index: 0, URL: srv.URL + "/ok/0"},
			{Index: 1, URL: srv.URL + "/limited"},
			{Index: 2, URL: srv.URL + "/ok/2"},
			{Index: 3, URL: srv.URL + "/ok/3"},
		}
		results, err := f.FetchAll(context.Background(), tasks)
		if err != nil {
			t.Fatalf("rate limit must not fail the batch: %v", err)
		}

		limited := results.Get(1)
		if limited.ErrKind != model.ErrorKindRateLimited {
			t.Errorf("expected rate limited, got %v", limited.ErrKind)
		}
		if !errors.Is(limited.Err, ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", limited.Err)
		}
		if limited.Attempts != fastRetry.MaxAttempts {
			t.Errorf("expected %d attempts, got %d", fastRetry.MaxAttempts, limited.Attempts)
		}
		for _, i := range []int{0, 2, 3} {
			if !results.Get(i).OK() {
				t.Errorf("index %d lost its result: %+v", i, results.Get(i))
			}
		}
	})

	t.Run("rate limited item succeeds after retry", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			fmt.Fprint(w, `{"attributes":[]}`)
		}))
		t.Cleanup(srv.Close)

		reg := prometheus.NewRegistry()
		f := newTestFetcher(t, WithMetrics(NewMetrics(reg)))
		results, err := f.FetchAll(context.Background(), []model.FetchTask{{Index: 7, URL: srv.URL}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		r := results.Get(7)
		if !r.OK() {
			t.Fatalf("expected success after retry, got %+v", r)
		}
		if r.Attempts != 2 {
			t.Errorf("expected 2 attempts, got %d", r.Attempts)
		}
		if got := counterValue(t, reg, "ripnft_fetch_retries_total", ""); got != 1 {
			t.Errorf("expected 1 retry recorded, got %v", got)
		}
		if got := counterValue(t, reg, "ripnft_fetch_items_total", "ok"); got != 1 {
			t.Errorf("expected 1 ok outcome, got %v", got)
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var current, peak atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			fmt.Fprint(w, `{}`)
		}))
		t.Cleanup(srv.Close)

		f := newTestFetcher(t, WithConcurrency(3))
		tasks := make([]model.FetchTask, 15)
		for i := range tasks {
			tasks[i] = model.FetchTask{Index: i, URL: srv.URL}
		}
		if _, err := f.FetchAll(context.Background(), tasks); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 3 {
			t.Errorf("expected at most 3 concurrent requests, got %d", peak.Load())
		}
	})

	t.Run("batch timeout keeps completed results", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/slow") {
				select {
				case <-r.Context().Done():
				case <-release:
				}
				return
			}
			fmt.Fprint(w, `{}`)
		}))
		t.Cleanup(func() {
			close(release)
			srv.Close()
		})

		f := newTestFetcher(t, WithBatchTimeout(300*time.Millisecond))
		tasks := []model.FetchTask{
			{Index: 0, URL: srv.URL + "/fast"},
			{Index: 1, URL: srv.URL + "/slow"},
			{Index: 2, URL: srv.URL + "/fast"},
		}
		results, err := f.FetchAll(context.Background(), tasks)
		if !errors.Is(err, ErrBatchTimeout) {
			t.Fatalf("expected ErrBatchTimeout, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected error to wrap context.DeadlineExceeded, got %v", err)
		}
		if results.Len() != 3 {
			t.Fatalf("expected 3 results, got %d", results.Len())
		}
		if !results.Get(0).OK() || !results.Get(2).OK() {
			t.Error("completed results must be preserved")
		}
		if got := results.Get(1); got.ErrKind != model.ErrorKindTimeout || got.Payload != nil {
			t.Errorf("expected timed out item with absent payload, got %+v", got)
		}
	})

	t.Run("task timeout is isolated to the item", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/slow") {
				select {
				case <-r.Context().Done():
				case <-release:
				}
				return
			}
			fmt.Fprint(w, `{}`)
		}))
		t.Cleanup(func() {
			close(release)
			srv.Close()
		})

		f := newTestFetcher(t, WithTaskTimeout(100*time.Millisecond))
		results, err := f.FetchAll(context.Background(), []model.FetchTask{
			{Index: 0, URL: srv.URL + "/slow"},
			{Index: 1, URL: srv.URL + "/fast"},
		})
		if err != nil {
			t.Fatalf("per-item timeout must not fail the batch: %v", err)
		}
		if results.Get(0).ErrKind != model.ErrorKindTimeout {
			t.Errorf("expected timeout, got %v", results.Get(0).ErrKind)
		}
		if !results.Get(1).OK() {
			t.Error("expected fast item to succeed")
		}
	})

	t.Run("parent cancellation returns context error", func(t *testing.T) {
		t.Parallel()

		srv := newFixtureServer(t)
		f := newTestFetcher(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results, err := f.FetchAll(ctx, mixedTasks(srv.URL, 4))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if results.Len() != 4 {
			t.Errorf("expected 4 results, got %d", results.Len())
		}
	})

	t.Run("rejects duplicate indices", func(t *testing.T) {
		t.Parallel()

		f := newTestFetcher(t)
		_, err := f.FetchAll(context.Background(), []model.FetchTask{{Index: 1}, {Index: 1}})
		if !errors.Is(err, ErrDuplicateIndex) {
			t.Errorf("expected ErrDuplicateIndex, got %v", err)
		}
	})

	t.Run("repeated runs give identical partitions", func(t *testing.T) {
		t.Parallel()

		srv := newFixtureServer(t)
		f := newTestFetcher(t)
		tasks := mixedTasks(srv.URL, 20)

		first, err := f.FetchAll(context.Background(), tasks)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := f.FetchAll(context.Background(), tasks)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, i := range first.Indices() {
			a, b := first.Get(i), second.Get(i)
			if a.ErrKind != b.ErrKind || !bytes.Equal(a.Payload, b.Payload) {
				t.Errorf("index %d differs between runs: %+v vs %+v", i, a, b)
			}
		}
	})

	t.Run("progress counts successes only and renders", func(t *testing.T) {
		t.Parallel()

		srv := newFixtureServer(t)
		var buf syncBuffer
		f := newTestFetcher(t, WithProgressWriter(&buf))

		results, err := f.FetchAll(context.Background(), mixedTasks(srv.URL, 10))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		p := f.Progress()
		if p.Completed() != results.Succeeded() {
			t.Errorf("expected progress %d, got %d", results.Succeeded(), p.Completed())
		}
		if p.Total() != 10 {
			t.Errorf("expected total 10, got %d", p.Total())
		}
		if !strings.Contains(buf.String(), "Progress: [") {
			t.Errorf("expected rendered progress, got %q", buf.String())
		}
	})

	t.Run("oversized body is a network error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"data":"`+strings.Repeat("x", 100)+`"}`)
		}))
		t.Cleanup(srv.Close)

		f := newTestFetcher(t, WithMaxBodySize(16))
		results, err := f.FetchAll(context.Background(), []model.FetchTask{{Index: 0, URL: srv.URL}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		r := results.Get(0)
		if r.ErrKind != model.ErrorKindNetwork || !errors.Is(r.Err, ErrBodyTooLarge) {
			t.Errorf("expected body too large network error, got %v / %v", r.ErrKind, r.Err)
		}
	})

	t.Run("sends user agent", func(t *testing.T) {
		t.Parallel()

		var got atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got.Store(r.Header.Get("User-Agent"))
			fmt.Fprint(w, `{}`)
		}))
		t.Cleanup(srv.Close)

		f := newTestFetcher(t, WithUserAgent("ripnft-test"))
		if _, err := f.FetchAll(context.Background(), []model.FetchTask{{Index: 0, URL: srv.URL}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Load() != "ripnft-test" {
			t.Errorf("expected user agent ripnft-test, got %v", got.Load())
		}
	})
}

// syncBuffer is a bytes.Buffer safe for concurrent writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// counterValue reads a counter from reg. label selects the "outcome" label
// of a vector; pass "" for plain counters.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
