package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jomei/notionapi"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/natikgadzhi/notopress/internal/asset"
	"github.com/natikgadzhi/notopress/internal/blocks"
	"github.com/natikgadzhi/notopress/internal/config"
	"github.com/natikgadzhi/notopress/internal/metrics"
	"github.com/natikgadzhi/notopress/internal/notion"
	"github.com/natikgadzhi/notopress/internal/store"
	"github.com/natikgadzhi/notopress/internal/sync"
)

// app holds the dependencies shared by sync and watch.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	databaseID string
	client     *notion.Client
	store      store.Store
	fetcher    *asset.Fetcher
	metrics    *metrics.Observer
}

// newApp wires the Notion client, asset fetcher, store and metrics from cfg.
// Collectors are registered on reg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	databaseID, err := cfg.DatabaseID()
	if err != nil {
		return nil, fmt.Errorf("parsing source database: %w", err)
	}

	obs, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	client := notion.NewClient(cfg.NotionToken, logger,
		notion.WithRetryPolicy(cfg.RetryPolicy()),
		notion.WithRetryObserver(obs),
	)

	var fetcher *asset.Fetcher
	if cfg.Options.ShouldDownloadImages() {
		fetcher, err = asset.NewFetcher(cfg.Output.ContentRoot, cfg.Output.AssetDir,
			asset.WithTimeout(cfg.Options.ImageTimeout),
			asset.WithLogger(logger),
			asset.WithObserver(obs),
		)
		if err != nil {
			return nil, fmt.Errorf("creating asset fetcher: %w", err)
		}
		logger.Info("image downloading enabled", "asset_root", fetcher.AssetRoot())
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		databaseID: databaseID,
		client:     client,
		store:      st,
		fetcher:    fetcher,
		metrics:    obs,
	}, nil
}

// newEngine creates a sync engine over the app's dependencies.
func (a *app) newEngine(opts ...sync.Option) *sync.Engine {
	var builderOpts []blocks.BuilderOption
	builderOpts = append(builderOpts, blocks.WithLogger(a.logger))

	base := []sync.Option{
		sync.WithQuery(queryParams(a.cfg.Source)),
		sync.WithConcurrency(a.cfg.Options.Concurrency),
		sync.WithSanitizedKeys(a.cfg.Options.SanitizeKeys),
		sync.WithLogger(a.logger),
		sync.WithObserver(a.metrics),
		sync.WithOnStart(func(pageID string) {
			a.logger.Debug("rendering page", "page_id", pageID)
		}),
	}
	if a.fetcher != nil {
		builderOpts = append(builderOpts, blocks.WithImageFetcher(a.fetcher))
		base = append(base, sync.WithImageFetcher(a.fetcher))
	}

	builder := blocks.NewBuilder(a.client, builderOpts...)
	return sync.NewEngine(a.client, a.databaseID, builder, a.store, append(base, opts...)...)
}

func (a *app) Close() error {
	return a.store.Close()
}

// queryParams turns the source section into a database query: an optional
// checked-checkbox filter and an optional descending sort.
func queryParams(src config.SourceConfig) notion.QueryParams {
	var q notion.QueryParams
	if src.FilterProperty != "" {
		q.Filter = &notionapi.PropertyFilter{
			Property: src.FilterProperty,
			Checkbox: &notionapi.CheckboxFilterCondition{Equals: true},
		}
	}
	if src.SortProperty != "" {
		q.Sorts = []notionapi.SortObject{{
			Property:  src.SortProperty,
			Direction: notionapi.SortOrderDESC,
		}}
	}
	return q
}
