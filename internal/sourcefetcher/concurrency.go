package sourcefetcher

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fetchConcurrently runs fn(refs[i]) for every ref with at most
// concurrency goroutines in flight, mirroring the semaphore-bounded
// fan-out used by OllamaEmbedder.EmbedBatch. No fetcher in this package
// calls it; only its tests do.
func fetchConcurrently[T any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, item := range items {
		item := item
		g.Go(func() error {
			return fn(ctx, item)
		})
	}
	return g.Wait()
}
