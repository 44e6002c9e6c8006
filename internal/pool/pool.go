package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the number of in-flight operations allowed in every fan-out.
const DefaultLimit = 5

// ForEach runs fn for indices [0, n) with at most limit calls in flight.
// Once ctx is done, or a call returns an error, indices that have not
// started are skipped. The first error is returned.
func ForEach(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return ctx.Err()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Collect runs fn for every item with bounded concurrency and returns the
// results in input order. Errors are kept per item instead of aborting the
// siblings; items skipped because ctx ended carry the context error.
func Collect[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	ran := make([]bool, len(items))

	_ = ForEach(ctx, len(items), limit, func(ctx context.Context, i int) error {
		ran[i] = true
		results[i], errs[i] = fn(ctx, items[i])
		return nil
	})

	for i := range items {
		if !ran[i] {
			errs[i] = context.Cause(ctx)
		}
	}
	return results, errs
}
