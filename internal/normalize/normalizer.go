package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nao1215/ripnft/internal/model"
)

// ErrMalformedRecord is wrapped by every decode failure.
var ErrMalformedRecord = errors.New("malformed record")

// Diagnostic describes one skipped item.
type Diagnostic struct {
	// Index is the item index.
	Index int `json:"index"`

	// Reason is the decode error.
	Reason error `json:"-"`

	// Message is Reason as text.
	Message string `json:"message"`
}

// Result is the output of Normalize.
type Result struct {
	// Records holds one record per well-formed payload, by ascending index.
	Records []model.TraitRecord

	// Skipped holds one diagnostic per payload that could not be decoded.
	Skipped []Diagnostic
}

// Normalizer converts fetch results into trait records.
type Normalizer struct {
	logger *slog.Logger
	sink   func(Diagnostic)
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger used for skipped items.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithDiagnostics registers a callback invoked for every skipped item.
func WithDiagnostics(sink func(Diagnostic)) Option {
	return func(n *Normalizer) {
		n.sink = sink
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize decodes every result that carries a payload. Results without a
// payload were already accounted for by the fetch stage and are ignored.
func (n *Normalizer) Normalize(rs *model.ResultSet) Result {
	var out Result
	if rs == nil {
		return out
	}

	for _, r := range rs.Sorted() {
		if !r.OK() {
			continue
		}
		rec, err := Decode(r.Index, r.Payload)
		if err != nil {
			d := Diagnostic{Index: r.Index, Reason: err, Message: err.Error()}
			out.Skipped = append(out.Skipped, d)
			n.logger.Warn("skipping malformed record", "index", r.Index, "error", err)
			if n.sink != nil {
				n.sink(d)
			}
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

// attribute mirrors one entry of the "attributes" list.
type attribute struct {
	TraitType json.RawMessage `json:"trait_type"`
	Value     json.RawMessage `json:"value"`
}

// Decode turns one metadata document into a TraitRecord.
// Later entries with the same trait_type overwrite earlier ones.
func Decode(index int, payload []byte) (model.TraitRecord, error) {
	rec := model.TraitRecord{Index: index}

	if len(bytes.TrimSpace(payload)) == 0 {
		return rec, fmt.Errorf("%w: empty payload", ErrMalformedRecord)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return rec, fmt.Errorf("%w: payload is not an object", ErrMalformedRecord)
	}

	raw, ok := doc["attributes"]
	if !ok || isNull(raw) {
		return rec, fmt.Errorf("%w: missing attributes", ErrMalformedRecord)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return rec, fmt.Errorf("%w: attributes is not a list", ErrMalformedRecord)
	}

	rec.Traits = make(map[string]string, len(entries))
	for i, entry := range entries {
		var attr attribute
		if err := json.Unmarshal(entry, &attr); err != nil {
			return rec, fmt.Errorf("%w: attribute %d is not an object", ErrMalformedRecord, i)
		}
		name := scalarString(attr.TraitType)
		if name == "" {
			return rec, fmt.Errorf("%w: attribute %d has no trait_type", ErrMalformedRecord, i)
		}
		rec.Traits[name] = scalarString(attr.Value)
	}
	return rec, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// scalarString renders a JSON value the way it reads: strings unquoted,
// numbers as their literal, null and absent as "". Objects and lists keep
// their compact JSON text.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return strconv.FormatBool(b)
		}
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.String()
		}
	}
	return string(raw)
}
