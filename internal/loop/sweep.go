package loop

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/pidctl/internal/dynamo"
)

// Sweep runs every spec from the same initial state and returns the traces
// in spec order. The first failure cancels the remaining runs.
func Sweep(ctx context.Context, specs []Spec, x0 dynamo.State, cfg Config, opts func() []Option) ([]*Trace, error) {
	traces := make([]*Trace, len(specs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, spec := range specs {
		g.Go(func() error {
			var runOpts []Option
			if opts != nil {
				runOpts = opts()
			}
			r, err := Build(spec, runOpts...)
			if err != nil {
				return err
			}
			tr, err := r.Run(ctx, x0, cfg)
			if err != nil {
				return err
			}
			traces[i] = tr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return traces, nil
}
