package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/ripnft/internal/model"
)

// DefaultMaxBodySize limits a single metadata document.
const DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

// Fetcher downloads metadata documents with bounded concurrency.
// A Fetcher is safe to reuse for several batches, one at a time or
// concurrently; every batch gets its own Progress.
type Fetcher struct {
	client *http.Client

	// concurrency is the maximum number of requests in flight.
	concurrency int

	// batchTimeout bounds a whole FetchAll call.
	batchTimeout time.Duration

	// taskTimeout bounds a single request. Zero disables it.
	taskTimeout time.Duration

	retry       RetryPolicy
	userAgent   string
	maxBodySize int64

	logger      *slog.Logger
	metrics     *Metrics
	progressOut io.Writer

	// lastProgress is the tracker of the most recent batch.
	lastProgress atomic.Pointer[Progress]
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithConcurrency sets the maximum number of simultaneous requests.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		f.concurrency = n
	}
}

// WithBatchTimeout sets the deadline for a whole batch.
func WithBatchTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.batchTimeout = d
	}
}

// WithTaskTimeout sets the timeout of each individual request.
func WithTaskTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.taskTimeout = d
	}
}

// WithRetryPolicy sets how rate-limited items are retried.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *Fetcher) {
		f.retry = p
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors to update.
func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithProgressWriter renders a progress bar to w during each batch.
func WithProgressWriter(w io.Writer) Option {
	return func(f *Fetcher) {
		f.progressOut = w
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize sets the maximum accepted document size in bytes.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// New creates a Fetcher. Concurrency and batch timeout have no defaults and
// must be given as positive values.
func New(client *http.Client, opts ...Option) (*Fetcher, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	f := &Fetcher{
		client:      client,
		retry:       DefaultRetryPolicy(),
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.concurrency <= 0 {
		return nil, ErrInvalidConcurrency
	}
	if f.batchTimeout <= 0 {
		return nil, ErrInvalidBatchTimeout
	}
	if f.taskTimeout < 0 {
		return nil, ErrInvalidTaskTimeout
	}
	return f, nil
}

// Progress returns the tracker of the most recent batch, or nil before the
// first call to FetchAll.
func (f *Fetcher) Progress() *Progress {
	return f.lastProgress.Load()
}

// FetchAll fetches every task and returns one result per task index.
//
// At most the configured number of requests run at once. A failing item
// never cancels the others. When the batch deadline expires, items still
// pending are recorded as timeouts and ErrBatchTimeout is returned along
// with the full result set. If ctx itself is cancelled, ctx.Err() is
// returned the same way.
func (f *Fetcher) FetchAll(ctx context.Context, tasks []model.FetchTask) (*model.ResultSet, error) {
	if err := checkUnique(tasks); err != nil {
		return nil, err
	}

	progress := NewProgress(len(tasks), f.progressOut)
	f.lastProgress.Store(progress)

	f.logger.Info("starting fetch batch",
		"tasks", len(tasks),
		"concurrency", f.concurrency,
		"batch_timeout", f.batchTimeout,
		"task_timeout", f.taskTimeout,
	)
	startTime := time.Now()

	batchCtx, cancel := context.WithTimeout(ctx, f.batchTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		timedOut atomic.Bool
	)
	results := model.NewResultSet(len(tasks))

	// A plain Group: no item's outcome may cancel its siblings.
	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for _, task := range tasks {
		g.Go(func() error {
			r := f.fetchOne(batchCtx, task, progress)
			if r.ErrKind == model.ErrorKindTimeout && batchCtx.Err() != nil {
				timedOut.Store(true)
			}
			f.metrics.observeOutcome(r.ErrKind)

			mu.Lock()
			results.Put(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	progress.Complete()

	f.logger.Info("fetch batch complete",
		"tasks", len(tasks),
		"succeeded", results.Succeeded(),
		"elapsed", time.Since(startTime),
	)

	if !timedOut.Load() {
		return results, nil
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	f.logger.Warn("batch deadline exceeded, returning partial results",
		"succeeded", results.Succeeded(),
		"tasks", len(tasks),
	)
	return results, fmt.Errorf("%w after %s: %w", ErrBatchTimeout, f.batchTimeout, context.DeadlineExceeded)
}

// checkUnique rejects batches with repeated indices.
func checkUnique(tasks []model.FetchTask) error {
	seen := make(map[int]struct{}, len(tasks))
	for _, t := range tasks {
		if _, ok := seen[t.Index]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateIndex, t.Index)
		}
		seen[t.Index] = struct{}{}
	}
	return nil
}

// fetchOne runs a single task to completion, retrying rate-limited
// responses. It always returns a result for task.Index.
func (f *Fetcher) fetchOne(ctx context.Context, task model.FetchTask, progress *Progress) *model.FetchResult {
	res := &model.FetchResult{Index: task.Index}

	if !task.HasURL() {
		res.ErrKind = model.ErrorKindNoURL
		return res
	}

	maxAttempts := f.retry.attempts()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			res.ErrKind = model.ErrorKindTimeout
			res.Err = err
			return res
		}
		res.Attempts = attempt

		status, header, body, err := f.do(ctx, task.URL)
		res.StatusCode = status

		switch {
		case err != nil:
			res.Err = err
			res.ErrKind = classifyError(ctx, err)
			f.logger.Debug("fetch failed",
				"index", task.Index,
				"url", task.URL,
				"kind", res.ErrKind,
				"error", err,
			)
			return res

		case status == http.StatusOK:
			if !json.Valid(body) {
				res.ErrKind = model.ErrorKindDecode
				res.Err = ErrInvalidJSON
				f.logger.Debug("invalid json body", "index", task.Index, "url", task.URL)
				return res
			}
			res.Payload = json.RawMessage(body)
			progress.Increment()
			return res

		case status == http.StatusTooManyRequests:
			if attempt >= maxAttempts {
				res.ErrKind = model.ErrorKindRateLimited
				res.Err = fmt.Errorf("%w after %d attempts", ErrRateLimited, attempt)
				f.logger.Warn("rate limited", "index", task.Index, "attempts", attempt)
				return res
			}
			delay := f.retry.Delay(attempt, parseRetryAfter(header))
			f.logger.Debug("rate limited, backing off",
				"index", task.Index,
				"attempt", attempt,
				"delay", delay,
			)
			f.metrics.incRetries()
			if err := sleep(ctx, delay); err != nil {
				res.ErrKind = model.ErrorKindTimeout
				res.Err = err
				return res
			}

		default:
			res.ErrKind = model.ErrorKindNetwork
			res.Err = fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
			f.logger.Debug("non-success status",
				"index", task.Index,
				"url", task.URL,
				"status", status,
			)
			return res
		}
	}
}

// do issues one GET request. The body is only read for 200 responses.
func (f *Fetcher) do(ctx context.Context, url string) (int, http.Header, []byte, error) {
	if f.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.taskTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.metrics.inFlight(1)
	defer f.metrics.inFlight(-1)
	start := time.Now()
	defer f.metrics.observeRequest(start)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck // drain for connection reuse
		return resp.StatusCode, resp.Header, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return resp.StatusCode, resp.Header, nil, ErrBodyTooLarge
	}
	return resp.StatusCode, resp.Header, body, nil
}

// classifyError maps a transport error to an ErrorKind. Expired deadlines
// (per item or per batch) and cancellation are timeouts; anything else is a
// network error.
func classifyError(ctx context.Context, err error) model.ErrorKind {
	if ctx.Err() != nil ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return model.ErrorKindTimeout
	}
	return model.ErrorKindNetwork
}
