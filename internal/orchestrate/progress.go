package orchestrate

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/masahif/packfetch/internal/fetcher"
)

// Progress renders a bar over the fetch stage. Observe is safe to call
// from fetch workers.
type Progress struct {
	mu      sync.Mutex
	out     io.Writer
	visible bool
	bar     *progressbar.ProgressBar
	done    int
	failed  int
}

// NewProgress creates a reporter writing to out. An invisible reporter
// still counts outcomes.
func NewProgress(out io.Writer, visible bool) *Progress {
	return &Progress{out: out, visible: visible}
}

// Start resets the bar for total items
func (p *Progress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = 0
	p.failed = 0
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetVisibility(p.visible),
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("packs"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// Observe advances the bar by one finished item
func (p *Progress) Observe(o fetcher.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return
	}
	p.done++
	if o.Err != nil {
		p.failed++
		p.bar.Describe(fmt.Sprintf("Downloading (%d failed)", p.failed))
	}
	_ = p.bar.Add(1)
}

// Finish completes the bar and moves to a new line
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	if p.visible {
		_, _ = io.WriteString(p.out, "\n")
	}
}

// Done returns how many items were observed since Start
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.done
}
