package fetch

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nao1215/ripnft/internal/model"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	t.Run("records outcomes by kind", func(t *testing.T) {
		t.Parallel()

		m := NewMetrics(prometheus.NewRegistry())
		m.observeOutcome(model.ErrorKindNone)
		m.observeOutcome(model.ErrorKindNone)
		m.observeOutcome(model.ErrorKindRateLimited)

		if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("ok")); got != 2 {
			t.Errorf("expected 2 ok outcomes, got %v", got)
		}
		if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("rate_limited")); got != 1 {
			t.Errorf("expected 1 rate limited outcome, got %v", got)
		}
	})

	t.Run("in flight gauge returns to zero", func(t *testing.T) {
		t.Parallel()

		m := NewMetrics(nil)
		m.inFlight(1)
		m.inFlight(1)
		if got := testutil.ToFloat64(m.InFlight); got != 2 {
			t.Errorf("expected 2 in flight, got %v", got)
		}
		m.inFlight(-1)
		m.inFlight(-1)
		if got := testutil.ToFloat64(m.InFlight); got != 0 {
			t.Errorf("expected 0 in flight, got %v", got)
		}
	})

	t.Run("exposes retries in text format", func(t *testing.T) {
		t.Parallel()

		m := NewMetrics(nil)
		m.incRetries()
		want := `
# HELP ripnft_fetch_retries_total Number of retries issued after rate limiting.
# TYPE ripnft_fetch_retries_total counter
ripnft_fetch_retries_total 1
`
		if err := testutil.CollectAndCompare(m.RetriesTotal, strings.NewReader(want)); err != nil {
			t.Errorf("unexpected metrics: %v", err)
		}
	})

	t.Run("registers every collector", func(t *testing.T) {
		t.Parallel()

		reg := prometheus.NewRegistry()
		m := NewMetrics(reg)
		m.observeOutcome(model.ErrorKindNone)
		m.observeRequest(time.Now())

		count, err := testutil.GatherAndCount(reg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 4 {
			t.Errorf("expected 4 series, got %d", count)
		}
	})

	t.Run("nil metrics records nothing", func(t *testing.T) {
		t.Parallel()

		var m *Metrics
		m.observeOutcome(model.ErrorKindNetwork)
		m.observeRequest(time.Now())
		m.incRetries()
		m.inFlight(1)
	})
}
