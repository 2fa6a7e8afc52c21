package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressBar reports how many items of a known total are done. It
// writes carriage-return updates, so w should be a terminal or stderr.
type ProgressBar struct {
	w       io.Writer
	title   string
	total   int
	current int
	width   int
	mu      sync.Mutex
}

// NewProgressBar creates a new progress bar.
func NewProgressBar(w io.Writer, title string, total int) *ProgressBar {
	return &ProgressBar{
		w:     w,
		title: title,
		total: total,
		width: 30,
	}
}

// Add marks n more items done.
func (p *ProgressBar) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += n
	if p.total > 0 && p.current > p.total {
		p.current = p.total
	}
	p.render()
}

// Finish renders the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %d", p.title, p.current)
		return
	}

	filled := p.width * p.current / p.total
	bar := strings.Repeat("#", filled) + strings.Repeat("-", p.width-filled)
	fmt.Fprintf(p.w, "\r%s [%s] %3d%% (%d/%d)",
		p.title, bar, 100*p.current/p.total, p.current, p.total)
}
