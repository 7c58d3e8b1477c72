// Package workpool runs per-example solver work on a fixed set of model
// clones, one clone per worker.
package workpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
)

// Pool owns size independent clones of a template model. A clone is handed
// to exactly one task at a time.
type Pool struct {
	size   int
	models chan optmodel.Model
}

// New clones tmpl size times. The template itself is never used by the pool.
func New(tmpl optmodel.Model, size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{size: size, models: make(chan optmodel.Model, size)}
	for i := 0; i < size; i++ {
		p.models <- tmpl.Clone()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Run calls fn for every index in [0, n) with at most Size calls in flight and
// waits for all of them. The first error stops tasks that have not started yet
// and is returned once the running ones finish.
func (p *Pool) Run(ctx context.Context, n int, fn func(i int, m optmodel.Model) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m := <-p.models
			defer func() { p.models <- m }()
			if err := fn(i, m); err != nil {
				return fmt.Errorf("task %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
