package fetch

import "errors"

var (
	// ErrInvalidConcurrency is returned by New when the concurrency limit is
	// not a positive number.
	ErrInvalidConcurrency = errors.New("invalid concurrency limit: must be positive")

	// ErrInvalidBatchTimeout is returned by New when the batch timeout is not
	// a positive duration.
	ErrInvalidBatchTimeout = errors.New("invalid batch timeout: must be positive")

	// ErrInvalidTaskTimeout is returned by New when the per-item timeout is negative.
	ErrInvalidTaskTimeout = errors.New("invalid task timeout: must be non-negative")

	// ErrNilClient is returned by New when no HTTP client is given.
	ErrNilClient = errors.New("http client is nil")

	// ErrDuplicateIndex is returned by FetchAll when two tasks share an index.
	ErrDuplicateIndex = errors.New("duplicate task index")

	// ErrBatchTimeout is returned by FetchAll, together with the complete
	// result set, when the batch deadline expired before every item finished.
	ErrBatchTimeout = errors.New("batch timeout exceeded")

	// ErrUnexpectedStatus wraps non-success HTTP statuses.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrRateLimited is recorded on items that stayed rate limited after all retries.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidJSON is recorded on items whose 200 body is not JSON.
	ErrInvalidJSON = errors.New("response body is not valid JSON")

	// ErrBodyTooLarge is recorded on items whose body exceeds the size limit.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrInvalidProxyAddress is returned when a SOCKS5 proxy address is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)
