package images

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FetchResult is the outcome for one reference
type FetchResult struct {
	Ref  string
	Data []byte
	Err  error
}

// FetchAll fetches refs with at most workers requests in flight. Results are
// in ref order and each reference fails independently.
func FetchAll(ctx context.Context, store Store, refs []string, workers int) []FetchResult {
	if workers <= 0 {
		workers = 4
	}

	results := make([]FetchResult, len(refs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			data, err := store.Fetch(ctx, ref)
			results[i] = FetchResult{Ref: ref, Data: data, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
