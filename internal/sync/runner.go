package sync

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner runs source pipelines concurrently.
type Runner struct {
	pipelines []*Pipeline
	limit     int
	log       *slog.Logger
}

// NewRunner creates a Runner that runs at most limit pipelines at once.
func NewRunner(pipelines []*Pipeline, limit int, logger *slog.Logger) *Runner {
	if limit <= 0 {
		limit = 1
	}
	return &Runner{pipelines: pipelines, limit: limit, log: logger}
}

// Run executes every pipeline and returns their summaries in input order.
// A failing source does not affect the others.
func (r *Runner) Run(ctx context.Context) []Summary {
	summaries := make([]Summary, len(r.pipelines))

	var g errgroup.Group
	g.SetLimit(r.limit)
	for i, p := range r.pipelines {
		g.Go(func() error {
			summaries[i] = p.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, s := range summaries {
		if s.State == StateFailed {
			failed++
		}
	}
	r.log.InfoContext(ctx, "sync finished",
		slog.Int("sources", len(summaries)),
		slog.Int("failed_sources", failed),
	)
	return summaries
}
