package sync

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency keeps renders well inside Notion's rate limit.
	DefaultConcurrency = 4

	maxConcurrency = 16
)

// OnStartFunc is called when a worker begins rendering a page.
type OnStartFunc func(pageID string)

// RenderPool runs per-page work with bounded concurrency. A failing page
// never cancels its siblings.
type RenderPool struct {
	concurrency int
	onStart     OnStartFunc
}

// NewRenderPool creates a pool clamped to [1, 16] workers.
func NewRenderPool(concurrency int) *RenderPool {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}
	return &RenderPool{concurrency: concurrency}
}

// SetOnStart sets a callback fired after a worker slot is acquired.
func (p *RenderPool) SetOnStart(fn OnStartFunc) {
	p.onStart = fn
}

// Concurrency returns the worker limit.
func (p *RenderPool) Concurrency() int {
	return p.concurrency
}

// Run calls fn once per id and waits for every started call to return.
// No new work starts once ctx is done; Run then reports ctx.Err().
func (p *RenderPool) Run(ctx context.Context, ids []string, fn func(ctx context.Context, id string)) error {
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if p.onStart != nil {
				p.onStart(id)
			}
			fn(ctx, id)
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}
