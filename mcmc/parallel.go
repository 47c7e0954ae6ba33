package mcmc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forTaxa calls f for every taxon 0 ... p-1 in at most threads
// goroutines, each handling a contiguous range of taxa. f must only
// write to the elements of the per-taxon buffers it is called for.
func forTaxa(ctx context.Context, threads, p int, f func(j int) error) error {
	if threads <= 1 || p <= 1 {
		for j := 0; j < p; j++ {
			if err := f(j); err != nil {
				return err
			}
		}
		return nil
	}
	if threads > p {
		threads = p
	}
	g, ctx := errgroup.WithContext(ctx)
	chunk := (p + threads - 1) / threads
	for lo := 0; lo < p; lo += chunk {
		lo, hi := lo, lo+chunk
		if hi > p {
			hi = p
		}
		g.Go(func() error {
			for j := lo; j < hi; j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := f(j); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
