package model

import (
	"encoding/json"
	"sort"
)

// FetchTask is one unit of work for the fetch orchestrator.
// An empty URL means there is no content for the index; the orchestrator
// records an absent payload for it without touching the network.
type FetchTask struct {
	// Index is the item index. Indices are unique within a batch.
	Index int `json:"index"`

	// URL is the metadata location for the item.
	URL string `json:"url,omitempty"`
}

// HasURL reports whether the task needs a network request.
func (t FetchTask) HasURL() bool {
	return t.URL != ""
}

// FetchResult is the outcome of a single FetchTask.
type FetchResult struct {
	// Index is the index of the task this result belongs to.
	Index int `json:"index"`

	// Payload is the raw JSON document, or nil when absent.
	Payload json.RawMessage `json:"payload,omitempty"`

	// StatusCode is the last HTTP status seen, or 0 if no response arrived.
	StatusCode int `json:"status_code,omitempty"`

	// Attempts is the number of requests issued for this item.
	Attempts int `json:"attempts"`

	// ErrKind classifies the failure. ErrorKindNone on success.
	ErrKind ErrorKind `json:"error_kind"`

	// Err holds the underlying error, if any. Not serialized.
	Err error `json:"-"`
}

// OK reports whether the result carries a usable payload.
func (r *FetchResult) OK() bool {
	return r.ErrKind == ErrorKindNone && r.Payload != nil
}

// ResultSet maps every task index to exactly one FetchResult.
// Results are looked up by index, never by completion order.
type ResultSet struct {
	results map[int]*FetchResult
}

// NewResultSet creates an empty ResultSet sized for n results.
func NewResultSet(n int) *ResultSet {
	return &ResultSet{results: make(map[int]*FetchResult, n)}
}

// Put stores r, replacing any earlier result for the same index.
func (s *ResultSet) Put(r *FetchResult) {
	s.results[r.Index] = r
}

// Get returns the result for index, or nil if none was stored.
func (s *ResultSet) Get(index int) *FetchResult {
	return s.results[index]
}

// Len returns the number of stored results.
func (s *ResultSet) Len() int {
	return len(s.results)
}

// Indices returns all stored indices in ascending order.
func (s *ResultSet) Indices() []int {
	indices := make([]int, 0, len(s.results))
	for i := range s.results {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// Sorted returns all results ordered by ascending index.
func (s *ResultSet) Sorted() []*FetchResult {
	out := make([]*FetchResult, 0, len(s.results))
	for _, i := range s.Indices() {
		out = append(out, s.results[i])
	}
	return out
}

// Succeeded returns the number of results with a usable payload.
func (s *ResultSet) Succeeded() int {
	n := 0
	for _, r := range s.results {
		if r.OK() {
			n++
		}
	}
	return n
}

// CountByKind tallies results per ErrorKind.
func (s *ResultSet) CountByKind() map[ErrorKind]int {
	counts := make(map[ErrorKind]int)
	for _, r := range s.results {
		counts[r.ErrKind]++
	}
	return counts
}

// Failed returns the number of results without a usable payload.
func (s *ResultSet) Failed() int {
	return len(s.results) - s.Succeeded()
}

// Payloads returns the usable payloads keyed by index.
func (s *ResultSet) Payloads() map[int]json.RawMessage {
	out := make(map[int]json.RawMessage, len(s.results))
	for i, r := range s.results {
		if r.OK() {
			out[i] = r.Payload
		}
	}
	return out
}
