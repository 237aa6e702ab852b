package cmd

import (
	"fmt"
	"log/slog"

	"github.com/masahif/packfetch/internal/config"
	"github.com/masahif/packfetch/internal/crawler"
	"github.com/masahif/packfetch/internal/fetcher"
	"github.com/masahif/packfetch/internal/orchestrate"
	"github.com/masahif/packfetch/internal/parser"
	"github.com/masahif/packfetch/internal/storage"
	"github.com/masahif/packfetch/internal/web"
)

// app holds the process-wide collaborators of one invocation
type app struct {
	client  *web.Client
	catalog *storage.Catalog
	runner  *orchestrate.Runner
}

func newApp(cfg *config.Config, console *console) (*app, error) {
	client, err := web.NewClient(web.Options{
		Timeout:         cfg.HTTP.Timeout,
		DownloadTimeout: cfg.HTTP.DownloadTimeout,
		UserAgent:       cfg.HTTP.UserAgent,
		RandomUserAgent: cfg.HTTP.RandomUserAgent,
		Proxy:           cfg.HTTP.Proxy,
		Headers:         cfg.HTTP.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	a := &app{client: client}

	crawlOpts := crawler.Options{
		QueueSize: cfg.Crawl.QueueSize,
		Limiter:   web.NewRateLimiter(cfg.Crawl.RequestDelay),
		OnPage: func(o crawler.PageOutcome) {
			if o.Err != nil {
				slog.Debug("Page failed", "url", o.URL, "category", web.Categorize(o.Err))
			}
		},
	}
	if cfg.Crawl.RespectRobots {
		crawlOpts.Robots = web.NewRobots(client, cfg.HTTP.UserAgent)
	}
	extractor := parser.NewSelectorExtractor(parser.RulesFromConfig(cfg.Extract))
	crawl := crawler.New(client, extractor, crawlOpts)

	progress := orchestrate.NewProgress(console.out, console.interactive)
	fetchOpts := fetcher.OptionsFromConfig(cfg.Fetch)
	fetchOpts.OnComplete = progress.Observe
	fetch := fetcher.New(client, fetchOpts)

	opts := orchestrate.Options{
		SeedURL:       cfg.SeedURL,
		Destination:   cfg.Destination,
		CrawlWorkers:  cfg.Crawl.Workers,
		MaxPages:      cfg.Crawl.MaxPages,
		ArchiveSuffix: cfg.Extract.ArchiveSuffix,
		Out:           console.out,
		Progress:      progress,
	}
	if !cfg.AssumeYes {
		opts.Confirm = console.confirmDownload
	}

	if cfg.CatalogPath != "" {
		catalog, err := storage.Open(cfg.CatalogPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.catalog = catalog
		opts.Catalog = catalog
	}

	a.runner = orchestrate.New(crawl, fetch, opts)
	return a, nil
}

func (a *app) Close() {
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			slog.Warn("Failed to close catalog", "error", err)
		}
	}
	a.client.Close()
}
