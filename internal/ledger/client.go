package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/ripnft/internal/model"
	"github.com/nao1215/ripnft/internal/source"
)

// DefaultConcurrency is the number of parallel tokenURI calls made by TokenURIs.
const DefaultConcurrency = 16

// Client performs read-only contract calls over JSON-RPC.
type Client struct {
	rpcURL      string
	client      *http.Client
	logger      *slog.Logger
	concurrency int
	nextID      atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// WithConcurrency sets the parallelism of TokenURIs.
func WithConcurrency(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.concurrency = n
		}
	}
}

// NewClient creates a client for the given endpoint.
func NewClient(rpcURL string, opts ...Option) (*Client, error) {
	if rpcURL == "" {
		return nil, ErrNoRPCURL
	}
	c := &Client{
		rpcURL:      rpcURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type callParams struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     int64     `json:"id"`
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

// Call executes eth_call against contract at the latest block and returns
// the raw return data.
func (c *Client) Call(ctx context.Context, contract, data string) ([]byte, error) {
	to, err := ChecksumAddress(contract)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "eth_call",
		Params:  []any{callParams{To: to, Data: data}, "latest"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w %d: %s", ErrRPC, out.Error.Code, out.Error.Message)
	}
	return decodeHex(out.Result)
}

// TotalSupply calls totalSupply().
func (c *Client) TotalSupply(ctx context.Context, contract string) (*big.Int, error) {
	data, err := c.Call(ctx, contract, encodeCall(totalSupplySelector))
	if err != nil {
		return nil, fmt.Errorf("totalSupply: %w", err)
	}
	return DecodeUint256(data)
}

// TokenURI calls tokenURI(index).
func (c *Client) TokenURI(ctx context.Context, contract string, index int) (string, error) {
	data, err := c.Call(ctx, contract, encodeCall(tokenURISelector, big.NewInt(int64(index))))
	if err != nil {
		return "", fmt.Errorf("tokenURI(%d): %w", index, err)
	}
	return DecodeString(data)
}

// ItemCount returns totalSupply()+1, the number of indices to enumerate
// when token ids start at zero, clamped to maximum when maximum > 0.
func (c *Client) ItemCount(ctx context.Context, contract string, maximum int) (int, error) {
	supply, err := c.TotalSupply(ctx, contract)
	if err != nil {
		return 0, err
	}
	if !supply.IsInt64() || supply.Int64() >= int64(^uint32(0)>>1) {
		return 0, fmt.Errorf("totalSupply %s is too large", supply)
	}
	count := int(supply.Int64()) + 1
	if maximum > 0 && count > maximum {
		count = maximum
	}
	return count, nil
}

// TokenURIs reads tokenURI for every index and returns one fetch task per
// index. Calls that fail leave the task URL empty so that the item is
// reported as absent downstream.
func (c *Client) TokenURIs(ctx context.Context, contract string, indices []int, opts ...source.Option) ([]model.FetchTask, error) {
	tasks := make([]model.FetchTask, len(indices))
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, index := range indices {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			uri, err := c.TokenURI(gctx, contract, index)
			task := model.FetchTask{Index: index}
			if err != nil {
				c.logger.Warn("tokenURI call failed", "index", index, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			} else if uri != "" {
				task.URL = source.RewriteGateway(uri, opts...)
			}
			tasks[i] = task
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.logger.Info("read token uris",
		"contract", contract,
		"requested", len(indices),
		"failed", failed,
	)
	return tasks, nil
}
