// Package fetch downloads item metadata with bounded concurrency.
//
// A Fetcher takes an ordered list of model.FetchTask values and returns a
// model.ResultSet holding exactly one result per task index. Individual
// failures (network errors, bad bodies, rate limiting, per-item timeouts)
// are recorded on the failing item only; they never cancel sibling requests.
// A batch deadline bounds the whole operation: items still running when it
// fires are recorded as timeouts, while completed items keep their payloads.
//
// Rate-limited items (HTTP 429) are retried according to a RetryPolicy with
// exponential backoff and jitter, honouring Retry-After when the server
// sends one.
//
// Progress is tracked by a Progress value owned by the Fetcher and updated
// atomically from the worker goroutines.
package fetch
