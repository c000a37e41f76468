// Package sync incrementally mirrors a Notion database into a store,
// re-rendering only pages whose last-edited time changed.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jomei/notionapi"

	"github.com/natikgadzhi/notopress/internal/asset"
	"github.com/natikgadzhi/notopress/internal/blocks"
	"github.com/natikgadzhi/notopress/internal/notion"
	"github.com/natikgadzhi/notopress/internal/render"
	"github.com/natikgadzhi/notopress/internal/store"
	"github.com/natikgadzhi/notopress/internal/transform"
)

// ErrEnumeration means the page query failed. The run stops before any
// page is rendered or deleted.
var ErrEnumeration = errors.New("enumerating pages")

// PageSource is the subset of the Notion client the engine needs.
type PageSource interface {
	QueryDatabase(ctx context.Context, databaseID string, params notion.QueryParams) ([]notionapi.Page, error)
	ListChildren(ctx context.Context, blockID string) ([]notionapi.Block, error)
}

// TreeBuilder resolves a page's block tree.
type TreeBuilder interface {
	Build(ctx context.Context, rootID string) (*blocks.Tree, error)
}

// Observer receives per-page outcomes and timings.
type Observer interface {
	PageOutcome(outcome string)
	ObserveRender(d time.Duration)
	RunFinished(at time.Time, err error)
}

// Engine runs sync passes. It is safe to call Run repeatedly, but not
// concurrently.
type Engine struct {
	source     PageSource
	databaseID string
	query      notion.QueryParams
	builder    TreeBuilder
	pipeline   *render.Pipeline
	images     blocks.ImageFetcher
	store      store.Store
	observer   Observer
	logger     *slog.Logger
	pool       *RenderPool
	workers    int
	onStart    OnStartFunc
	dryRun     bool
	force      bool
	project    []transform.Option
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithQuery narrows and orders the page query.
func WithQuery(q notion.QueryParams) Option {
	return func(e *Engine) {
		e.query = q
	}
}

// WithPipeline replaces the default render pipeline.
func WithPipeline(p *render.Pipeline) Option {
	return func(e *Engine) {
		if p != nil {
			e.pipeline = p
		}
	}
}

// WithImageFetcher caches page cover images through f.
func WithImageFetcher(f blocks.ImageFetcher) Option {
	return func(e *Engine) {
		e.images = f
	}
}

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithConcurrency sets how many pages render at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithOnStart is called as each page render begins.
func WithOnStart(fn OnStartFunc) Option {
	return func(e *Engine) {
		e.onStart = fn
	}
}

// WithDryRun decides outcomes without rendering, writing or deleting.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) {
		e.dryRun = dryRun
	}
}

// WithSanitizedKeys stores page data under lowercase, underscored property
// names.
func WithSanitizedKeys(enabled bool) Option {
	return func(e *Engine) {
		if enabled {
			e.project = append(e.project, transform.WithSanitizedKeys())
		}
	}
}

// WithForce re-renders every page regardless of its digest.
func WithForce(force bool) Option {
	return func(e *Engine) {
		e.force = force
	}
}

// NewEngine creates an engine syncing databaseID into st.
func NewEngine(source PageSource, databaseID string, builder TreeBuilder, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		source:     source,
		databaseID: databaseID,
		builder:    builder,
		pipeline:   render.NewPipeline(),
		store:      st,
		logger:     slog.Default(),
		workers:    DefaultConcurrency,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = NewRenderPool(e.workers)
	e.pool.SetOnStart(e.onStart)
	return e
}

// Run performs one sync pass: enumerate, decide, render, delete.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := e.now()
	res := newResult(uuid.NewString(), e.dryRun)
	logger := e.logger.With("run_id", res.RunID)

	err := e.run(ctx, logger, res)
	res.Duration = e.now().Sub(start)
	if e.observer != nil {
		e.observer.RunFinished(e.now(), err)
	}

	logger.Info("sync complete",
		"unchanged", res.Unchanged,
		"committed", res.Committed,
		"fallback", res.Fallbacks,
		"failed", res.Failed,
		"deleted", res.Deleted,
		"pending", res.Pending,
		"duration", res.Duration,
		"dry_run", e.dryRun,
	)
	return res, err
}

func (e *Engine) run(ctx context.Context, logger *slog.Logger, res *Result) error {
	logger.Info("starting sync", "database_id", e.databaseID, "dry_run", e.dryRun, "force", e.force)

	pages, err := e.source.QueryDatabase(ctx, e.databaseID, e.query)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnumeration, err)
	}

	known, err := e.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("listing stored pages: %w", err)
	}
	remaining := make(map[string]struct{}, len(known))
	for _, id := range known {
		remaining[id] = struct{}{}
	}

	pending := make(map[string]notionapi.Page)
	seen := make(map[string]struct{}, len(pages))
	var order []string
	for _, page := range pages {
		id := string(page.ID)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		delete(remaining, id)

		if e.unchanged(ctx, logger, page) {
			e.record(res, PageResult{ID: id, Title: transform.PageTitle(&page), Outcome: OutcomeUnchanged})
			continue
		}
		pending[id] = page
		order = append(order, id)
	}

	logger.Info("enumerated pages", "total", len(pages), "pending", len(order), "stale", len(remaining))

	if e.dryRun {
		for _, id := range order {
			page := pending[id]
			logger.Info("would render page", "page_id", id, "title", transform.PageTitle(&page))
			e.record(res, PageResult{ID: id, Title: transform.PageTitle(&page), Outcome: OutcomePending})
		}
		for _, id := range sortedKeys(remaining) {
			logger.Info("would delete page", "page_id", id)
			res.add(PageResult{ID: id, Outcome: OutcomeDeleted})
		}
		return nil
	}

	if err := e.pool.Run(ctx, order, func(ctx context.Context, id string) {
		e.renderPage(ctx, logger, pending[id], res)
	}); err != nil {
		for _, id := range order {
			if !res.has(id) {
				res.add(PageResult{ID: id, Outcome: OutcomePending})
			}
		}
		return fmt.Errorf("sync interrupted, skipping deletions: %w", err)
	}

	for _, id := range sortedKeys(remaining) {
		if err := e.store.Delete(ctx, id); err != nil {
			logger.Error("deleting stale page failed", "page_id", id, "error", err)
			e.record(res, PageResult{ID: id, Outcome: OutcomeFailed, Err: err})
			continue
		}
		logger.Info("deleted page", "page_id", id)
		e.record(res, PageResult{ID: id, Outcome: OutcomeDeleted})
	}
	return nil
}

// unchanged reports whether the stored digest matches the page.
func (e *Engine) unchanged(ctx context.Context, logger *slog.Logger, page notionapi.Page) bool {
	if e.force {
		return false
	}
	prev, err := e.store.Get(ctx, string(page.ID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("reading stored page failed, re-rendering", "page_id", page.ID, "error", err)
		}
		return false
	}
	return prev.Digest.Equal(page.LastEditedTime)
}

// renderPage renders and commits one page. On render failure it commits the
// fallback rendering; if that fails too the previous entry stays in place.
func (e *Engine) renderPage(ctx context.Context, logger *slog.Logger, page notionapi.Page, res *Result) {
	id := string(page.ID)
	title := transform.PageTitle(&page)
	logger = logger.With("page_id", id, "title", title)
	start := e.now()

	entry, err := e.renderFull(ctx, logger, page)
	if err != nil {
		logger.Warn("render failed, using fallback renderer", "error", err)
		entry, err = e.renderFallback(ctx, page)
		if err != nil {
			logger.Error("fallback render failed, keeping previous version", "error", err)
			e.record(res, PageResult{ID: id, Title: title, Outcome: OutcomeFailed, Err: err})
			return
		}
	}

	if err := e.store.Set(ctx, entry); err != nil {
		logger.Error("store write failed, keeping previous version", "error", err)
		e.record(res, PageResult{ID: id, Title: title, Outcome: OutcomeFailed, Err: err})
		return
	}

	if e.observer != nil {
		e.observer.ObserveRender(e.now().Sub(start))
	}
	logger.Debug("committed page", "fallback", entry.Fallback, "assets", len(entry.AssetPaths))
	e.record(res, PageResult{ID: id, Title: title, Outcome: OutcomeCommitted, Fallback: entry.Fallback})
}

func (e *Engine) renderFull(ctx context.Context, logger *slog.Logger, page notionapi.Page) (*store.Entry, error) {
	id := string(page.ID)

	tree, err := e.builder.Build(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("building block tree: %w", err)
	}

	out, err := e.pipeline.Run(render.FromBlocks(tree.Blocks), render.NewAssetIndex(tree.Assets))
	if err != nil {
		return nil, err
	}

	entry := e.newEntry(page)
	entry.HTML = out.HTML
	entry.Headings = out.Headings
	entry.AssetPaths = append(entry.AssetPaths, tree.Assets...)
	e.attachCover(ctx, logger, page, entry)
	return entry, nil
}

func (e *Engine) renderFallback(ctx context.Context, page notionapi.Page) (*store.Entry, error) {
	raw, err := e.source.ListChildren(ctx, string(page.ID))
	if err != nil {
		return nil, fmt.Errorf("listing blocks for fallback: %w", err)
	}
	html, err := render.Fallback(raw)
	if err != nil {
		return nil, fmt.Errorf("fallback render: %w", err)
	}

	entry := e.newEntry(page)
	entry.HTML = html
	entry.Fallback = true
	return entry, nil
}

func (e *Engine) newEntry(page notionapi.Page) *store.Entry {
	return &store.Entry{
		ID:         string(page.ID),
		Title:      transform.PageTitle(&page),
		Digest:     page.LastEditedTime,
		Data:       transform.Project(page.Properties, e.project...),
		Headings:   []render.Heading{},
		AssetPaths: []string{},
		UpdatedAt:  e.now().UTC(),
	}
}

// attachCover stores the page cover under data["cover"], cached locally when
// possible and as the remote URL otherwise.
func (e *Engine) attachCover(ctx context.Context, logger *slog.Logger, page notionapi.Page, entry *store.Entry) {
	if page.Cover == nil {
		return
	}
	var src, source string
	switch {
	case page.Cover.File != nil && page.Cover.File.URL != "":
		src, source = page.Cover.File.URL, string(asset.SourceFile)
	case page.Cover.External != nil && page.Cover.External.URL != "":
		src, source = page.Cover.External.URL, string(asset.SourceExternal)
	default:
		return
	}

	entry.Data["cover"] = src
	if e.images == nil {
		return
	}
	rec, err := e.images.Fetch(ctx, asset.Descriptor{URL: src, Source: asset.Source(source)})
	if err != nil {
		logger.Warn("keeping remote cover image", "error", err)
		return
	}
	entry.Data["cover"] = rec.LocalPath
	entry.AssetPaths = append(entry.AssetPaths, rec.LocalPath)
}

func (e *Engine) record(res *Result, pr PageResult) {
	res.add(pr)
	if e.observer != nil {
		e.observer.PageOutcome(string(pr.Outcome))
	}
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
