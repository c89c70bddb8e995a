package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/procura/internal/domain"
)

// maxParallelBatches caps concurrent batch reads.
const maxParallelBatches = 4

// fanOutByBatch splits ids into IN-filter sized batches, fetches them with
// bounded concurrency and concatenates the results in batch order.
func fanOutByBatch[T any](ctx context.Context, ids []string, fetch func(ctx context.Context, batch []string) ([]T, error)) ([]T, error) {
	var batches [][]string
	for start := 0; start < len(ids); start += domain.MaxInFilterValues {
		end := min(start+domain.MaxInFilterValues, len(ids))
		batches = append(batches, ids[start:end])
	}

	results := make([][]T, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelBatches)
	for i, batch := range batches {
		g.Go(func() error {
			out, err := fetch(ctx, batch)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []T
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}
