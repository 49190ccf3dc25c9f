package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL is the marketplace API root.
	DefaultBaseURL = "https://api.opensea.io"

	// ChunkSize is the number of token ids requested per call.
	ChunkSize = 30

	// APIKeyHeader carries the optional API key.
	APIKeyHeader = "X-API-KEY"

	assetsPath = "/api/v1/assets"
)

// Lookup resolves listing prices for items of a contract.
// Items without an active listing are absent from the returned map.
type Lookup interface {
	Prices(ctx context.Context, contract string, indices []int) (map[int]float64, error)
}

// CollectionLookup is a Lookup that can also resolve prices by
// marketplace collection slug when no contract address is known.
type CollectionLookup interface {
	Lookup
	HasCollection() bool
}

// Asset is the subset of a marketplace asset the tool reads.
type Asset struct {
	TokenID       int
	Permalink     string
	NumSales      int
	CurrentPrice  *float64
	LastSalePrice *float64
	LastSaleTime  string
}

// OpenSeaClient queries the v1 assets endpoint.
type OpenSeaClient struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	collection string
	logger     *slog.Logger
	delay      time.Duration
}

// Option configures an OpenSeaClient.
type Option func(*OpenSeaClient)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *OpenSeaClient) {
		c.baseURL = u
	}
}

// WithAPIKey sets the API key sent in the X-API-KEY header.
func WithAPIKey(key string) Option {
	return func(c *OpenSeaClient) {
		c.apiKey = key
	}
}

// WithCollection sets the collection slug queried when a lookup has no
// contract address.
func WithCollection(slug string) Option {
	return func(c *OpenSeaClient) {
		c.collection = slug
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *OpenSeaClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithChunkDelay sets a pause between consecutive chunk requests.
func WithChunkDelay(d time.Duration) Option {
	return func(c *OpenSeaClient) {
		c.delay = d
	}
}

// NewOpenSeaClient creates a client. A nil http.Client uses a 30s-timeout default.
func NewOpenSeaClient(client *http.Client, opts ...Option) *OpenSeaClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	c := &OpenSeaClient{
		client:  client,
		baseURL: DefaultBaseURL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasCollection reports whether a collection slug is configured.
func (c *OpenSeaClient) HasCollection() bool {
	return c.collection != ""
}

// Prices returns the current listing price in ether for each listed index.
// When a chunk fails, the prices of the chunks fetched before it are
// returned together with the error.
func (c *OpenSeaClient) Prices(ctx context.Context, contract string, indices []int) (map[int]float64, error) {
	assets, err := c.Assets(ctx, contract, indices)
	prices := make(map[int]float64, len(assets))
	for _, a := range assets {
		if a.CurrentPrice != nil {
			prices[a.TokenID] = *a.CurrentPrice
		}
	}
	return prices, err
}

// Assets fetches asset records for indices in chunks of ChunkSize. Items
// are selected by contract, or by the configured collection slug when
// contract is empty.
func (c *OpenSeaClient) Assets(ctx context.Context, contract string, indices []int) ([]Asset, error) {
	if contract == "" && c.collection == "" {
		return nil, ErrNoContract
	}

	out := make([]Asset, 0, len(indices))
	for start := 0; start < len(indices); start += ChunkSize {
		end := min(start+ChunkSize, len(indices))
		if start > 0 && c.delay > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(c.delay):
			}
		}

		chunk, err := c.fetchChunk(ctx, contract, indices[start:end])
		if err != nil {
			return out, fmt.Errorf("failed to fetch assets %d-%d: %w", start, end-1, err)
		}
		out = append(out, chunk...)
	}

	c.logger.Debug("fetched marketplace assets",
		"contract", contract,
		"collection", c.collection,
		"requested", len(indices),
		"returned", len(out),
	)
	return out, nil
}

type assetsResponse struct {
	Assets []struct {
		TokenID    string `json:"token_id"`
		Permalink  string `json:"permalink"`
		NumSales   int    `json:"num_sales"`
		SellOrders []struct {
			CurrentPrice json.Number `json:"current_price"`
		} `json:"sell_orders"`
		LastSale *struct {
			TotalPrice     json.Number `json:"total_price"`
			EventTimestamp string      `json:"event_timestamp"`
		} `json:"last_sale"`
	} `json:"assets"`
}

func (c *OpenSeaClient) fetchChunk(ctx context.Context, contract string, ids []int) ([]Asset, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("token_ids", strconv.Itoa(id))
	}
	if contract != "" {
		q.Set("asset_contract_address", contract)
	} else {
		q.Set("collection", c.collection)
	}
	q.Set("order_direction", "desc")
	q.Set("offset", "0")
	q.Set("limit", "50")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+assetsPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body assetsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode assets: %w", err)
	}

	assets := make([]Asset, 0, len(body.Assets))
	for _, a := range body.Assets {
		id, err := strconv.Atoi(a.TokenID)
		if err != nil {
			c.logger.Debug("skipping asset with non-numeric token id", "token_id", a.TokenID)
			continue
		}
		asset := Asset{
			TokenID:   id,
			Permalink: a.Permalink,
			NumSales:  a.NumSales,
		}
		if len(a.SellOrders) > 0 {
			if p, err := FromWei(a.SellOrders[0].CurrentPrice.String()); err == nil {
				asset.CurrentPrice = &p
			}
		}
		if a.LastSale != nil {
			asset.LastSaleTime = a.LastSale.EventTimestamp
			if p, err := FromWei(a.LastSale.TotalPrice.String()); err == nil {
				asset.LastSalePrice = &p
			}
		}
		assets = append(assets, asset)
	}
	return assets, nil
}
