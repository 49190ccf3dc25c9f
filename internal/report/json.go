package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/ripnft/internal/model"
)

// JSONWriter writes the run and its table as a JSON document.
type JSONWriter struct {
	baseWriter
	indent       bool
	indentPrefix string
	indentString string
	version      string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the tool version in the document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter. Output is compact by default.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport wraps a run with output metadata.
type JSONReport struct {
	Version string     `json:"version,omitempty"`
	Status  string     `json:"status"`
	Message string     `json:"message,omitempty"`
	Run     *model.Run `json:"run"`
}

// Write renders run.
func (w *JSONWriter) Write(run *model.Run) (int, error) {
	doc := JSONReport{
		Version: w.version,
		Status:  statusText(run),
		Run:     run,
	}
	if run.Table.Empty() {
		doc.Message = NothingToRank
	}

	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(doc, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
