package config

import "errors"

// Validation errors returned by Config.Validate.
var (
	// ErrNoStub is returned when neither a URL stub nor a records file is given.
	ErrNoStub = errors.New("no url stub specified: provide a stub or use --from-records")

	// ErrInvalidCount is returned when the item count is not positive.
	ErrInvalidCount = errors.New("invalid count: must be positive")

	// ErrInvalidStart is returned when the first index is negative.
	ErrInvalidStart = errors.New("invalid start index: must be non-negative")

	// ErrInvalidConcurrency is returned when the concurrency limit is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when the batch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidTaskTimeout is returned when the per-item timeout is negative.
	ErrInvalidTaskTimeout = errors.New("invalid task timeout: must be non-negative")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidFormat is returned for an unknown output format.
	ErrInvalidFormat = errors.New("invalid format: must be csv, json, markdown or text")

	// ErrInvalidMaxBodySize is returned when the body size limit is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
