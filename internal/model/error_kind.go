package model

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies why a single fetch did not produce a payload.
// Every per-item failure is reported as a value of this type; none of them
// stops the rest of the batch.
type ErrorKind int

const (
	// ErrorKindNone means the fetch succeeded and the payload is present.
	ErrorKindNone ErrorKind = iota

	// ErrorKindNoURL means the task had no URL, so no request was made.
	ErrorKindNoURL

	// ErrorKindNetwork covers connection failures and non-success statuses
	// other than rate limiting.
	ErrorKindNetwork

	// ErrorKindDecode means the server answered 200 but the body was not JSON.
	ErrorKindDecode

	// ErrorKindRateLimited means the server kept answering 429 until the
	// retry budget for this item was exhausted.
	ErrorKindRateLimited

	// ErrorKindTimeout means the per-item timeout or the batch deadline
	// expired before the item completed.
	ErrorKindTimeout
)

// String returns the name used in logs, metrics labels and reports.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "ok"
	case ErrorKindNoURL:
		return "no_url"
	case ErrorKindNetwork:
		return "network_error"
	case ErrorKindDecode:
		return "decode_error"
	case ErrorKindRateLimited:
		return "rate_limited"
	case ErrorKindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind by name.
func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind previously encoded by MarshalJSON.
func (k *ErrorKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for c := ErrorKindNone; c <= ErrorKindTimeout; c++ {
		if c.String() == s {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", s)
}
