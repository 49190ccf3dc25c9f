package fetch

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// progressBarLength is the number of cells in the rendered bar.
const progressBarLength = 20

// Progress counts completed items out of a fixed total.
// Increment is safe for concurrent use. Rendering is optional and only
// observes the counter.
type Progress struct {
	total     int64
	completed atomic.Int64

	// out receives the rendered bar. Nil disables rendering.
	out io.Writer
	mu  sync.Mutex
}

// NewProgress creates a tracker for total items that renders to out.
// Pass a nil writer for a silent tracker.
func NewProgress(total int, out io.Writer) *Progress {
	if total < 0 {
		total = 0
	}
	return &Progress{total: int64(total), out: out}
}

// Increment records one completed item.
func (p *Progress) Increment() {
	n := p.completed.Add(1)
	if p.out != nil {
		p.render(p.fraction(n))
	}
}

// Completed returns the number of completed items.
func (p *Progress) Completed() int {
	return int(p.completed.Load())
}

// Total returns the number of items being tracked.
func (p *Progress) Total() int {
	return int(p.total)
}

// Fraction returns the completed share in [0, 1].
func (p *Progress) Fraction() float64 {
	return p.fraction(p.completed.Load())
}

func (p *Progress) fraction(n int64) float64 {
	if p.total == 0 {
		return 1
	}
	f := float64(n) / float64(p.total)
	if f > 1 {
		return 1
	}
	return f
}

// Render returns the textual bar for the current state,
// e.g. "Progress: [#####---------------] 25.0%".
func (p *Progress) Render() string {
	return renderBar(p.Fraction())
}

// Complete renders a full bar followed by a newline.
// The counter itself is left untouched.
func (p *Progress) Complete() {
	if p.out == nil {
		return
	}
	p.render(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
}

func (p *Progress) render(f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, "\r"+renderBar(f))
}

func renderBar(f float64) string {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	block := int(f*progressBarLength + 0.5)
	return fmt.Sprintf("Progress: [%s%s] %.1f%%",
		strings.Repeat("#", block),
		strings.Repeat("-", progressBarLength-block),
		f*100,
	)
}
