// Package fetcher downloads discovered items into a destination
// directory. Bodies are streamed to a temporary file in fixed-size
// chunks and renamed into place only once the transfer succeeded.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/masahif/packfetch/internal/config"
	"github.com/masahif/packfetch/internal/model"
	"github.com/masahif/packfetch/internal/pool"
)

// DefaultChunkSize is the copy buffer size used when none is configured
const DefaultChunkSize = 32 * 1024

// ErrInvalidFileName is returned for items whose URL has no usable file name
var ErrInvalidFileName = errors.New("item has no usable file name")

// ErrDuplicateFileName is returned for an item whose file name is already
// taken by an earlier item of the same run
var ErrDuplicateFileName = errors.New("file name already used by another item")

// Source opens a streaming GET through the shared session. The caller
// closes the body.
type Source interface {
	Open(ctx context.Context, url string) (*http.Response, error)
}

// Options configures the fetch engine
type Options struct {
	Workers    int           // Concurrent downloads
	QueueSize  int           // Pool queue capacity (0=unbounded)
	Mode       string        // config.ModePool or config.ModeBatch
	BatchWait  time.Duration // Pause between chunks in batch mode
	ChunkSize  int           // Copy buffer size
	OnComplete func(Outcome) // Optional, called from workers after each item
}

// OptionsFromConfig converts fetch config into engine options
func OptionsFromConfig(c config.FetchConfig) Options {
	return Options{
		Workers:   c.Workers,
		QueueSize: c.QueueSize,
		Mode:      c.Mode,
		BatchWait: c.BatchWait,
		ChunkSize: c.ChunkSize,
	}
}

// Outcome reports one finished item. Download is nil when Err is set.
type Outcome struct {
	Item     model.Item
	Download *model.Download
	Err      error
}

// Result is the outcome of one fetch run
type Result struct {
	Downloads []model.Download // Completed transfers, unordered
	Failed    []model.Item     // Items that were not saved, not retried
	Duration  time.Duration
}

// Engine is the fetch stage
type Engine struct {
	source Source
	opts   Options
}

// New creates a fetch engine over a shared session
func New(source Source, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Mode == "" {
		opts.Mode = config.ModePool
	}
	return &Engine{source: source, opts: opts}
}

// Run downloads every item into destDir. Failed items are left out of
// Downloads and listed in Failed; they never stop the run. Run returns
// once every item has finished and no worker is left running.
func (e *Engine) Run(ctx context.Context, items []model.Item, destDir string) (*Result, error) {
	if e.opts.Workers <= 0 {
		return nil, fmt.Errorf("fetch workers must be positive, got %d", e.opts.Workers)
	}

	start := time.Now()
	slog.Info("Starting downloads", "items", len(items), "workers", e.opts.Workers, "mode", e.opts.Mode, "destination", destDir)

	var (
		mu        sync.Mutex
		downloads []model.Download
	)

	items, duplicates := claimFileNames(items)
	for _, item := range duplicates {
		err := fmt.Errorf("%w: %s (%s)", ErrDuplicateFileName, item.FileName(), item.URL())
		slog.Warn("Skipping item with duplicate file name", "file", item.FileName(), "url", item.URL())
		if e.opts.OnComplete != nil {
			e.opts.OnComplete(Outcome{Item: item, Err: err})
		}
	}

	handler := func(ctx context.Context, workerID int, item model.Item) error {
		download, err := e.download(ctx, item, destDir)
		if e.opts.OnComplete != nil {
			e.opts.OnComplete(Outcome{Item: item, Download: download, Err: err})
		}
		if err != nil {
			return err
		}

		mu.Lock()
		downloads = append(downloads, *download)
		mu.Unlock()

		slog.Debug("Download complete", "worker_id", workerID, "file", item.FileName(), "bytes", download.BytesWritten)
		return nil
	}

	var (
		outcome pool.Result[model.Item]
		err     error
	)
	switch e.opts.Mode {
	case config.ModeBatch:
		outcome, err = pool.Batches(ctx, items, e.opts.Workers, e.opts.BatchWait, handler)
	default:
		outcome, err = pool.Run(ctx, items, pool.Options{
			Name:      "fetch",
			Workers:   e.opts.Workers,
			QueueSize: e.opts.QueueSize,
		}, handler)
	}

	result := &Result{
		Downloads: downloads,
		Failed:    append(duplicates, outcome.Failed...),
		Duration:  time.Since(start),
	}

	slog.Info("Downloads finished",
		"succeeded", len(result.Downloads),
		"failed", len(result.Failed),
		"duration", result.Duration)

	if err != nil {
		return result, fmt.Errorf("fetch interrupted: %w", err)
	}
	return result, nil
}

// claimFileNames keeps the first item for every file name. Later items
// would be renamed onto the same path, so they are returned separately.
func claimFileNames(items []model.Item) (kept, duplicates []model.Item) {
	seen := make(map[string]struct{}, len(items))
	kept = make([]model.Item, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.FileName()]; ok {
			duplicates = append(duplicates, item)
			continue
		}
		seen[item.FileName()] = struct{}{}
		kept = append(kept, item)
	}
	return kept, duplicates
}

// download transfers one item. Nothing is left under the final name
// unless the whole body was written.
func (e *Engine) download(ctx context.Context, item model.Item, destDir string) (*model.Download, error) {
	name := item.FileName()
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFileName, item.URL())
	}
	target := filepath.Join(destDir, name)

	start := time.Now()
	resp, err := e.source.Open(ctx, item.URL())
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	tmp, err := os.CreateTemp(destDir, name+".*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := e.copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close temp file: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("download %s: %w", item.URL(), err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	download := item.Complete(target, written, resp.ContentLength, time.Since(start))
	if download.Truncated() {
		slog.Warn("Size differs from Content-Length", "file", name,
			"bytes_written", download.BytesWritten, "content_length", download.ContentLength)
	}
	return &download, nil
}

// copy streams src into dst in ChunkSize pieces. Both ends are wrapped
// so io.CopyBuffer cannot bypass the buffer through ReadFrom or WriteTo.
func (e *Engine) copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, e.opts.ChunkSize)
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, buf)
}
