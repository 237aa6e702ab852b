// Package crawler expands one seed page into the set of downloadable
// items found on every secondary page it links to. Secondary pages are
// processed by a fixed number of workers over a shared queue.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/masahif/packfetch/internal/model"
	"github.com/masahif/packfetch/internal/pool"
	"github.com/masahif/packfetch/internal/web"
)

// ErrNoPagesFound is returned when the seed page cannot be fetched or
// links to no secondary pages
var ErrNoPagesFound = errors.New("no secondary pages found on seed page")

// ErrDisallowed marks a page skipped because robots.txt forbids it
var ErrDisallowed = errors.New("disallowed by robots.txt")

// RateLimiter paces requests per host
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
	SetHostDelay(host string, delay time.Duration)
}

// Engine is the crawl stage. It holds no per-run state, so one Engine
// may serve several runs.
type Engine struct {
	source    PageSource
	extractor Extractor
	opts      Options
}

// New creates a crawl engine over a shared page source
func New(source PageSource, extractor Extractor, opts Options) *Engine {
	return &Engine{
		source:    source,
		extractor: extractor,
		opts:      opts,
	}
}

// run holds the mutable state of a single Run call
type run struct {
	mu    sync.Mutex
	items []model.Item
}

func (r *run) add(items []model.Item) {
	r.mu.Lock()
	r.items = append(r.items, items...)
	r.mu.Unlock()
}

// Run fetches the seed page, enqueues every secondary page it links to
// (at most maxPages when positive) and returns the items collected by
// the workers. It returns only after every page has been processed and
// all workers have exited.
func (e *Engine) Run(ctx context.Context, seedURL string, workers, maxPages int) (*Result, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("crawl workers must be positive, got %d", workers)
	}

	start := time.Now()
	slog.Info("Fetching seed page", "url", seedURL)

	pages, err := e.seedPages(ctx, seedURL, maxPages)
	if err != nil {
		return nil, err
	}

	slog.Info("Starting crawl", "pages", len(pages), "workers", workers, "queue_size", e.opts.QueueSize)

	state := &run{}
	outcome, runErr := pool.Run(ctx, pages, pool.Options{
		Name:      "crawl",
		Workers:   workers,
		QueueSize: e.opts.QueueSize,
	}, func(ctx context.Context, workerID int, pageURL string) error {
		return e.processPage(ctx, state, workerID, pageURL)
	})

	result := &Result{
		SeedURL:     seedURL,
		Pages:       pages,
		Items:       uniqueItems(state.items),
		Errors:      int(outcome.Stats.Failed),
		FailedPages: outcome.Failed,
		Duration:    time.Since(start),
	}

	slog.Info("Crawl finished",
		"pages", len(pages),
		"items", len(result.Items),
		"errors", result.Errors,
		"duration", result.Duration)

	if runErr != nil {
		return result, fmt.Errorf("crawl interrupted: %w", runErr)
	}
	return result, nil
}

// seedPages fetches the seed page and returns its secondary-page links
func (e *Engine) seedPages(ctx context.Context, seedURL string, maxPages int) ([]string, error) {
	if e.opts.Robots != nil {
		if u, err := url.Parse(seedURL); err == nil {
			if allowed, _ := e.opts.Robots.Allowed(ctx, seedURL); !allowed {
				return nil, fmt.Errorf("seed page %s: %w", seedURL, ErrDisallowed)
			}
			if delay := e.opts.Robots.CrawlDelay(u.Host); delay > 0 && e.opts.Limiter != nil {
				slog.Info("Applying robots.txt crawl delay", "host", u.Host, "delay", delay)
				e.opts.Limiter.SetHostDelay(u.Host, delay)
			}
		}
	}

	page, err := e.source.Get(ctx, seedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch seed page: %w", ErrNoPagesFound, err)
	}

	links, err := e.extractor.PageLinks(baseURL(page, seedURL), page.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed page: %w", err)
	}

	links = uniqueStrings(links)
	if maxPages > 0 && len(links) > maxPages {
		links = links[:maxPages]
	}

	if len(links) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPagesFound, seedURL)
	}
	return links, nil
}

// processPage fetches one secondary page and records its items. A
// returned error marks the page as failed; it never stops the worker.
func (e *Engine) processPage(ctx context.Context, state *run, workerID int, pageURL string) (err error) {
	start := time.Now()
	found := 0

	defer func() {
		if e.opts.OnPage != nil {
			e.opts.OnPage(PageOutcome{URL: pageURL, Items: found, Err: err, Duration: time.Since(start)})
		}
	}()

	if e.opts.Robots != nil {
		allowed, robotsErr := e.opts.Robots.Allowed(ctx, pageURL)
		if robotsErr == nil && !allowed {
			return fmt.Errorf("%s: %w", pageURL, ErrDisallowed)
		}
	}

	if e.opts.Limiter != nil {
		if err := e.opts.Limiter.Wait(ctx, pageURL); err != nil {
			return err
		}
	}

	page, err := e.source.Get(ctx, pageURL)
	if err != nil {
		return err
	}

	items, err := e.extractor.Items(baseURL(page, pageURL), page.Body)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	found = len(items)
	state.add(items)

	slog.Debug("Page processed", "worker_id", workerID, "url", pageURL, "items", found, "ttfb", page.Metrics.TTFB)
	return nil
}

// baseURL is the address relative links resolve against
func baseURL(page *web.Page, requested string) string {
	if page.FinalURL != "" {
		return page.FinalURL
	}
	return requested
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// uniqueItems drops repeated resource URLs linked from several pages.
// Items are saved under their file name, so a second URL ending in a
// name already taken is dropped too.
func uniqueItems(in []model.Item) []model.Item {
	urls := make(map[string]struct{}, len(in))
	names := make(map[string]string, len(in))
	out := make([]model.Item, 0, len(in))
	for _, item := range in {
		if _, ok := urls[item.URL()]; ok {
			continue
		}
		urls[item.URL()] = struct{}{}

		if first, ok := names[item.FileName()]; ok {
			slog.Warn("Dropping item with duplicate file name",
				"file", item.FileName(), "url", item.URL(), "kept", first)
			continue
		}
		names[item.FileName()] = item.URL()
		out = append(out, item)
	}
	return out
}
