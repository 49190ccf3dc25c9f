package report

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/ripnft/internal/model"
)

// NothingToRank is rendered for runs without attribute data.
const NothingToRank = "No attribute data found: nothing to rank."

// ErrUnknownFormat is returned by ParseFormat and NewWriter.
var ErrUnknownFormat = errors.New("unknown output format")

// Format names an output format.
type Format string

const (
	// FormatCSV is a spreadsheet-friendly table, one row per item.
	FormatCSV Format = "csv"
	// FormatJSON is the full run as JSON.
	FormatJSON Format = "json"
	// FormatMarkdown is a Markdown document.
	FormatMarkdown Format = "markdown"
	// FormatText is a terminal summary.
	FormatText Format = "text"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatMarkdown, FormatText}
}

// ParseFormat validates a format name. "md" and "txt" are accepted aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Writer renders a run.
type Writer interface {
	// Write renders run to the writer's destination and returns the
	// number of bytes written.
	Write(run *model.Run) (int, error)
}

// Options are shared by NewWriter.
type Options struct {
	// Top limits the ranked rows shown by text and Markdown output. Zero
	// means all rows for Markdown and DefaultTop for text.
	Top int
	// Version is embedded in JSON output.
	Version string
	// Pretty indents JSON output.
	Pretty bool
}

// NewWriter returns the writer for format.
func NewWriter(format Format, output io.Writer, opts Options) (Writer, error) {
	switch format {
	case FormatCSV:
		return NewCSVWriter(output), nil
	case FormatJSON:
		jsonOpts := []JSONWriterOption{WithVersion(opts.Version)}
		if opts.Pretty {
			jsonOpts = append(jsonOpts, WithPrettyPrint())
		}
		return NewJSONWriter(output, jsonOpts...), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output, WithMarkdownTop(opts.Top)), nil
	case FormatText:
		return NewSimpleWriter(output, WithTop(opts.Top)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to several writers in turn.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a MultiWriter.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write writes to every writer and stops at the first error.
func (m *MultiWriter) Write(run *model.Run) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText describes how a run ended.
func statusText(run *model.Run) string {
	switch {
	case run.ErrorMessage != "":
		return "ERROR - " + run.ErrorMessage
	case run.Interrupted:
		return "INTERRUPTED (partial results)"
	case run.TimedOut:
		return "TIMED OUT (partial results)"
	case run.NoAttributeData() || run.Table == nil:
		return "NO ATTRIBUTE DATA"
	default:
		return "Complete"
	}
}

func formatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
