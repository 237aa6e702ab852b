// Package orchestrate sequences one pipeline run: prepare the
// destination, crawl, drop what is already present, confirm, fetch and
// summarize.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/masahif/packfetch/internal/crawler"
	"github.com/masahif/packfetch/internal/dedup"
	"github.com/masahif/packfetch/internal/fetcher"
	"github.com/masahif/packfetch/internal/library"
	"github.com/masahif/packfetch/internal/model"
	"github.com/masahif/packfetch/internal/storage"
)

// Crawler is the crawl stage
type Crawler interface {
	Run(ctx context.Context, seedURL string, workers, maxPages int) (*crawler.Result, error)
}

// Fetcher is the fetch stage
type Fetcher interface {
	Run(ctx context.Context, items []model.Item, destDir string) (*fetcher.Result, error)
}

// Catalog records runs for later reporting
type Catalog interface {
	BeginRun(seedURL, destination string) (string, error)
	RecordItems(runID, status string, items []model.Item) error
	RecordDownloads(runID string, downloads []model.Download) error
	RecordPageErrors(runID string, urls []string) error
	FinishRun(runID string, totals storage.RunTotals) error
}

// Options configures a Runner
type Options struct {
	SeedURL       string
	Destination   string
	CrawlWorkers  int
	MaxPages      int
	ArchiveSuffix string

	// Confirm is asked before downloading; returning false ends the run
	// without fetching. Nil means proceed.
	Confirm func(count int) bool

	Out      io.Writer // User-facing output (nil=discard)
	Progress *Progress // Optional fetch progress reporter
	Catalog  Catalog   // Optional run log
}

// Summary reports what a run did
type Summary struct {
	RunID       string
	Destination string
	Created     bool // Destination was created by this run
	Existing    int  // Prior downloads found in the destination
	Pages       int
	PageErrors  int
	Discovered  int
	Skipped     int
	ToFetch     int
	Succeeded   int
	Failed      int
	Aborted     bool // Declined at confirmation
	Bytes       int64
	Downloads   []model.Download
	FailedItems []model.Item
	FailedPages []string
	Elapsed     time.Duration // Fetch stage duration
}

// Runner owns all per-run state; nothing is shared between runs
type Runner struct {
	crawler Crawler
	fetcher Fetcher
	opts    Options
}

// New creates a Runner
func New(c Crawler, f Fetcher, opts Options) *Runner {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.ArchiveSuffix == "" {
		opts.ArchiveSuffix = dedup.DefaultSuffix
	}
	return &Runner{crawler: c, fetcher: f, opts: opts}
}

// Run executes the pipeline once. Only setup failures (unusable
// destination, empty or unreachable seed page) and cancellation return
// an error; per-item failures are reported in the Summary.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	dest, err := library.Prepare(r.opts.Destination)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Destination: dest.Path, Created: dest.Created}
	if dest.Created {
		r.printf("Created directory at %s\n", dest.Path)
	}

	existing, err := dest.Inventory(r.opts.ArchiveSuffix)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", library.ErrDestination, err)
	}
	summary.Existing = len(existing)
	if !dest.Created {
		r.printf("Found %d sample packs at %s\n", len(existing), dest.Path)
	}

	summary.RunID = r.beginRun(dest.Path)

	err = r.run(ctx, dest, existing, summary)
	r.finishRun(summary, err)

	return summary, err
}

func (r *Runner) run(ctx context.Context, dest library.Destination, existing []string, summary *Summary) error {
	r.printf("Starting parser..\n")

	crawled, err := r.crawler.Run(ctx, r.opts.SeedURL, r.opts.CrawlWorkers, r.opts.MaxPages)
	if crawled != nil {
		summary.Pages = len(crawled.Pages)
		summary.PageErrors = crawled.Errors
		summary.Discovered = len(crawled.Items)
		summary.FailedPages = crawled.FailedPages
		r.record(summary, func(c Catalog) error { return c.RecordPageErrors(summary.RunID, crawled.FailedPages) })
	}
	if err != nil {
		return err
	}

	r.printf("Found %d sample packs on %d pages.\n", summary.Discovered, summary.Pages)
	if summary.PageErrors > 0 {
		r.printf("%d parser errors. Try adjusting the configuration.\n", summary.PageErrors)
	}

	toFetch, present := dedup.Filter{Suffix: r.opts.ArchiveSuffix}.Partition(crawled.Items, existing)
	summary.Skipped = len(present)
	summary.ToFetch = len(toFetch)
	if len(existing) > 0 {
		r.printf("Ignored %d sample packs already on local system.\n", len(present))
	}
	r.record(summary, func(c Catalog) error { return c.RecordItems(summary.RunID, storage.StatusSkipped, present) })

	if len(toFetch) == 0 {
		r.printf("There is nothing to download.\n")
		return nil
	}

	if r.opts.Confirm != nil && !r.opts.Confirm(len(toFetch)) {
		summary.Aborted = true
		r.printf("Download cancelled.\n")
		return nil
	}

	r.printf("Starting downloader, this might take a while...\n")
	if r.opts.Progress != nil {
		r.opts.Progress.Start(len(toFetch))
	}

	fetched, err := r.fetcher.Run(ctx, toFetch, dest.Path)

	if r.opts.Progress != nil {
		r.opts.Progress.Finish()
	}

	if fetched != nil {
		summary.Downloads = fetched.Downloads
		summary.FailedItems = fetched.Failed
		summary.Succeeded = len(fetched.Downloads)
		summary.Failed = len(fetched.Failed)
		summary.Elapsed = fetched.Duration
		for _, d := range fetched.Downloads {
			summary.Bytes += d.BytesWritten
		}
		r.record(summary, func(c Catalog) error { return c.RecordDownloads(summary.RunID, fetched.Downloads) })
		r.record(summary, func(c Catalog) error { return c.RecordItems(summary.RunID, storage.StatusFailed, fetched.Failed) })
	}
	if err != nil {
		return err
	}

	r.report(summary)
	return nil
}

func (r *Runner) report(s *Summary) {
	for _, d := range s.Downloads {
		r.printf("Downloaded %s (%s)\n", d.FileName(), d.DeclaredSize())
	}
	if s.Failed > 0 {
		r.printf("%d sample packs failed to download.\n", s.Failed)
	}
	if s.Succeeded == 0 {
		r.printf("Nothing was downloaded.\n")
		return
	}
	r.printf("\nDownloaded %d sample packs in %s.\n", s.Succeeded, FormatElapsed(s.Elapsed))
}

// FormatElapsed renders a duration as HH:MM:SS
func FormatElapsed(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

func (r *Runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.opts.Out, format, args...)
}

func (r *Runner) beginRun(destination string) string {
	if r.opts.Catalog == nil {
		return ""
	}
	id, err := r.opts.Catalog.BeginRun(r.opts.SeedURL, destination)
	if err != nil {
		slog.Warn("Catalog unavailable for this run", "error", err)
		return ""
	}
	return id
}

// record writes to the catalog when one is active. Catalog failures
// never fail the run.
func (r *Runner) record(s *Summary, fn func(Catalog) error) {
	if r.opts.Catalog == nil || s.RunID == "" {
		return
	}
	if err := fn(r.opts.Catalog); err != nil {
		slog.Warn("Failed to write catalog", "error", err)
	}
}

func (r *Runner) finishRun(s *Summary, runErr error) {
	status := storage.RunCompleted
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = storage.RunInterrupted
	case runErr != nil:
		status = storage.RunFailed
	}

	r.record(s, func(c Catalog) error {
		return c.FinishRun(s.RunID, storage.RunTotals{
			Status:       status,
			Pages:        s.Pages,
			PageErrors:   s.PageErrors,
			Discovered:   s.Discovered,
			Skipped:      s.Skipped,
			Succeeded:    s.Succeeded,
			Failed:       s.Failed,
			BytesWritten: s.Bytes,
			Err:          runErr,
		})
	})
}
