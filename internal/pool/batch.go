package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Batches processes items in fixed-size chunks: every item of a chunk
// runs concurrently, the next chunk starts once the whole chunk is done,
// and wait is slept between chunks (not after the last one). It is the
// politeness-oriented alternative to Run.
func Batches[T any](ctx context.Context, items []T, size int, wait time.Duration, handler Handler[T]) (Result[T], error) {
	var (
		completed atomic.Int64
		mu        sync.Mutex
		failed    []T
	)

	if size <= 0 {
		size = len(items)
	}

	result := func() Result[T] {
		mu.Lock()
		defer mu.Unlock()
		return Result[T]{
			Stats: Stats{
				Submitted: int64(len(items)),
				Completed: completed.Load(),
				Failed:    int64(len(failed)),
			},
			Failed: append([]T(nil), failed...),
		}
	}

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))

		var g errgroup.Group
		for i, item := range items[start:end] {
			i, item := i, item
			g.Go(func() error {
				if err := handler(ctx, i, item); err != nil {
					slog.Warn("Batch item failed", "batch_start", start, "slot", i, "error", err)
					mu.Lock()
					failed = append(failed, item)
					mu.Unlock()
				}
				completed.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		slog.Debug("Batch finished", "from", start, "to", end, "total", len(items))

		if end == len(items) {
			break
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result(), ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return result(), err
		}
	}

	return result(), nil
}
