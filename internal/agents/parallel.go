package agents

import (
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// RunParallel runs fns on a bounded pool and waits for all of them. The
// first error cancels the group's context and is returned; limit <= 0 means
// no bound.
func RunParallel(ctx domain.Context, limit int, fns []func(domain.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, fn := range fns {
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
