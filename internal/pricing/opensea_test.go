package pricing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAssetServer lists every even token id at (id/10) ether.
func newAssetServer(t *testing.T, calls *[][]string, mu *sync.Mutex) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/assets" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get(APIKeyHeader) == "bad" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ids := r.URL.Query()["token_ids"]
		mu.Lock()
		*calls = append(*calls, ids)
		mu.Unlock()

		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			var n int
			fmt.Sscanf(id, "%d", &n) //nolint:errcheck // test fixture
			orders := "[]"
			if n%2 == 0 {
				orders = fmt.Sprintf(`[{"current_price":"%d00000000000000000.0000"}]`, n)
			}
			parts = append(parts, fmt.Sprintf(
				`{"token_id":"%s","num_sales":1,"sell_orders":%s,"last_sale":{"total_price":"1000000000000000000","event_timestamp":"2021-09-01T00:00:00"}}`,
				id, orders))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"assets":[%s]}`, strings.Join(parts, ","))
	}))
}

func TestOpenSeaClientPrices(t *testing.T) {
	t.Parallel()

	t.Run("returns prices of listed items only", func(t *testing.T) {
		t.Parallel()

		var calls [][]string
		var mu sync.Mutex
		srv := newAssetServer(t, &calls, &mu)
		defer srv.Close()

		c := NewOpenSeaClient(srv.Client(), WithBaseURL(srv.URL), WithLogger(discardLogger()))
		prices, err := c.Prices(context.Background(), "0xabc", []int{1, 2, 3, 4})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(prices) != 2 {
			t.Fatalf("expected 2 prices, got %d", len(prices))
		}
		if prices[2] != 0.2 {
			t.Errorf("expected 0.2 for index 2, got %f", prices[2])
		}
		if _, ok := prices[3]; ok {
			t.Error("expected unlisted index 3 to be absent")
		}
	})

	t.Run("splits requests into chunks", func(t *testing.T) {
		t.Parallel()

		var calls [][]string
		var mu sync.Mutex
		srv := newAssetServer(t, &calls, &mu)
		defer srv.Close()

		indices := make([]int, 65)
		for i := range indices {
			indices[i] = i
		}

		c := NewOpenSeaClient(srv.Client(), WithBaseURL(srv.URL), WithLogger(discardLogger()))
		assets, err := c.Assets(context.Background(), "0xabc", indices)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(assets) != 65 {
			t.Errorf("expected 65 assets, got %d", len(assets))
		}
		if len(calls) != 3 {
			t.Fatalf("expected 3 requests, got %d", len(calls))
		}
		if len(calls[0]) != ChunkSize || len(calls[2]) != 5 {
			t.Errorf("unexpected chunk sizes: %d, %d", len(calls[0]), len(calls[2]))
		}
		if assets[0].LastSalePrice == nil || *assets[0].LastSalePrice != 1 {
			t.Error("expected last sale price of 1 ether")
		}
	})

	t.Run("requires a contract", func(t *testing.T) {
		t.Parallel()

		c := NewOpenSeaClient(nil)
		if _, err := c.Prices(context.Background(), "", []int{1}); !errors.Is(err, ErrNoContract) {
			t.Errorf("expected ErrNoContract, got %v", err)
		}
	})

	t.Run("keeps prices of chunks fetched before a failure", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if requests.Add(1) > 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			fmt.Fprint(w, `{"assets":[{"token_id":"0","sell_orders":[{"current_price":"1000000000000000000"}]}]}`)
		}))
		t.Cleanup(srv.Close)

		indices := make([]int, 45)
		for i := range indices {
			indices[i] = i
		}

		c := NewOpenSeaClient(srv.Client(), WithBaseURL(srv.URL), WithLogger(discardLogger()))
		prices, err := c.Prices(context.Background(), "0xabc", indices)
		if !errors.Is(err, ErrUnexpectedStatus) {
			t.Errorf("expected ErrUnexpectedStatus, got %v", err)
		}
		if p, ok := prices[0]; !ok || p != 1 {
			t.Errorf("expected 1 ether for index 0, got %v", prices)
		}
	})

	t.Run("queries by collection slug without a contract", func(t *testing.T) {
		t.Parallel()

		var query url.Values
		var mu sync.Mutex
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			query = r.URL.Query()
			mu.Unlock()
			fmt.Fprint(w, `{"assets":[{"token_id":"3","sell_orders":[{"current_price":"500000000000000000"}]}]}`)
		}))
		t.Cleanup(srv.Close)

		c := NewOpenSeaClient(srv.Client(),
			WithBaseURL(srv.URL),
			WithCollection("cool-cats"),
			WithLogger(discardLogger()),
		)
		if !c.HasCollection() {
			t.Fatal("expected HasCollection to be true")
		}
		prices, err := c.Prices(context.Background(), "", []int{3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if prices[3] != 0.5 {
			t.Errorf("expected 0.5 for index 3, got %v", prices)
		}

		mu.Lock()
		defer mu.Unlock()
		if query.Get("collection") != "cool-cats" {
			t.Errorf("expected collection cool-cats, got %q", query.Get("collection"))
		}
		if query.Has("asset_contract_address") {
			t.Error("expected no contract parameter")
		}
	})

	t.Run("contract wins over collection slug", func(t *testing.T) {
		t.Parallel()

		var query url.Values
		var mu sync.Mutex
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			query = r.URL.Query()
			mu.Unlock()
			fmt.Fprint(w, `{"assets":[]}`)
		}))
		t.Cleanup(srv.Close)

		c := NewOpenSeaClient(srv.Client(), WithBaseURL(srv.URL), WithCollection("cool-cats"), WithLogger(discardLogger()))
		if _, err := c.Prices(context.Background(), "0xabc", []int{1}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		if query.Get("asset_contract_address") != "0xabc" || query.Has("collection") {
			t.Errorf("unexpected query %v", query)
		}
	})

	t.Run("reports unexpected status", func(t *testing.T) {
		t.Parallel()

		var calls [][]string
		var mu sync.Mutex
		srv := newAssetServer(t, &calls, &mu)
		defer srv.Close()

		c := NewOpenSeaClient(srv.Client(),
			WithBaseURL(srv.URL),
			WithAPIKey("bad"),
			WithLogger(discardLogger()),
		)
		_, err := c.Prices(context.Background(), "0xabc", []int{1})
		if !errors.Is(err, ErrUnexpectedStatus) {
			t.Errorf("expected ErrUnexpectedStatus, got %v", err)
		}
	})
}
