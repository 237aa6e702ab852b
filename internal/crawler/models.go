package crawler

import (
	"time"

	"github.com/masahif/packfetch/internal/model"
)

// Options configures the crawl engine
type Options struct {
	QueueSize int               // Page queue capacity (0=unbounded)
	Limiter   RateLimiter       // Optional per-host pacing
	Robots    RobotsPolicy      // Optional robots.txt policy (nil=ignore)
	OnPage    func(PageOutcome) // Optional per-page callback, called from workers
}

// PageOutcome describes one processed secondary page
type PageOutcome struct {
	URL      string
	Items    int   // Items extracted from the page
	Err      error // Non-nil when the page failed
	Duration time.Duration
}

// Result is the outcome of one crawl run
type Result struct {
	SeedURL     string
	Pages       []string     // Secondary pages that were enqueued
	Items       []model.Item // Items from every page, unordered, unique by URL
	Errors      int          // Pages that failed
	FailedPages []string     // URLs of failed pages, not retried
	Duration    time.Duration
}
