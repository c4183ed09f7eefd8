package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/heartmarshall/eventsync/internal/adapter/fetch"
	"github.com/heartmarshall/eventsync/internal/adapter/postgres"
	eventrepo "github.com/heartmarshall/eventsync/internal/adapter/postgres/event"
	"github.com/heartmarshall/eventsync/internal/adapter/postgres/pagestate"
	"github.com/heartmarshall/eventsync/internal/adapter/vision"
	"github.com/heartmarshall/eventsync/internal/config"
	"github.com/heartmarshall/eventsync/internal/metrics"
	"github.com/heartmarshall/eventsync/internal/source"
	"github.com/heartmarshall/eventsync/internal/source/kinderwelt"
	"github.com/heartmarshall/eventsync/internal/sync"
	"github.com/heartmarshall/eventsync/pkg/ctxutil"
)

// ErrNoSources is returned when the source filter leaves nothing to run.
var ErrNoSources = errors.New("no sources selected")

const pushTimeout = 10 * time.Second

// Options are the command-line overrides of a run.
type Options struct {
	ConfigPath    string
	FirstPageOnly bool
	Sources       []string
}

// Run is the application entry point. It loads configuration, opens and
// migrates the store, synchronizes every enabled source and pushes metrics.
// Only configuration and store setup errors are returned; source and row
// failures are logged and counted.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.LoadFrom(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.FirstPageOnly {
		cfg.Sync.FirstPageOnly = true
	}

	runID := uuid.New()
	ctx = ctxutil.WithRunID(ctx, runID)
	logger := NewLogger(cfg.Log)

	logger.Info("starting sync",
		slog.String("version", BuildVersion()),
		slog.String("run_id", runID.String()),
		slog.Bool("first_page_only", cfg.Sync.FirstPageOnly),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, logger); err != nil {
		return err
	}

	repo := eventrepo.New(pool, cfg.Enrichment.Marker)
	if n, err := repo.RepairDates(ctx); err != nil {
		logger.Warn("date repair failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("dates repaired", slog.Int("rows", n))
	}

	rec := metrics.New()
	c := components{
		fetcher:  fetch.New(cfg.HTTP, logger),
		store:    repo,
		pages:    pagestate.New(pool),
		recorder: rec,
		logger:   logger,
	}
	if client := visionModel(cfg.Enrichment, logger); client != nil {
		c.model, c.text = client, client
	}
	runner, err := buildRunner(cfg, c, opts.Sources)
	if err != nil {
		return err
	}

	summaries := runner.Run(ctx)
	for _, s := range summaries {
		if s.State == sync.StateFailed {
			logger.Warn("source failed", slog.String("source", s.Source), slog.Any("error", s.Err))
		}
	}

	if url := cfg.Metrics.PushgatewayURL; url != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if err := rec.Push(pushCtx, url, cfg.Metrics.Job); err != nil {
			logger.Warn("metrics push failed", slog.String("error", err.Error()))
		}
	}

	return nil
}

// components are the collaborators shared by all pipelines.
type components struct {
	fetcher  sync.Fetcher
	model    sync.VisionModel
	text     kinderwelt.TextModel
	store    sync.EventStore
	pages    sync.PageStateStore
	recorder sync.Recorder
	logger   *slog.Logger
}

// buildRunner creates one pipeline per enabled source, restricted to only
// when it is non-empty.
func buildRunner(cfg *config.Config, c components, only []string) (*sync.Runner, error) {
	sources := cfg.EnabledSources(only...)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w (filter: %v)", ErrNoSources, only)
	}

	pacer := sync.NewPacer(cfg.Pacing.MinDelay, cfg.Pacing.MaxDelay)
	enricher := sync.NewEnricher(c.model, sync.EnrichPolicy{
		Instruction:    cfg.Enrichment.Instruction,
		Sentinel:       cfg.Enrichment.Sentinel,
		RefusalPhrases: cfg.Enrichment.RefusalPhrases,
		Marker:         cfg.Enrichment.Marker,
	},
		rate.NewLimiter(rate.Limit(cfg.Enrichment.RequestsPerSecond), cfg.Enrichment.Burst),
		semaphore.NewWeighted(cfg.Enrichment.MaxConcurrent),
		c.logger,
	)

	var srcOpts []source.Option
	if c.text != nil {
		srcOpts = append(srcOpts, source.WithTextModel(throttledText{model: c.text, enricher: enricher}))
	}

	pipelines := make([]*sync.Pipeline, 0, len(sources))
	for _, src := range sources {
		adapter, err := source.New(src, srcOpts...)
		if err != nil {
			return nil, err
		}

		required := cfg.Gate.RequiredFields
		if len(src.RequiredFields) > 0 {
			required = src.RequiredFields
		}
		gate := sync.NewGate(sync.GatePolicy{
			ForceRefresh:   cfg.Gate.ForceRefresh,
			RefreshAfter:   cfg.Gate.RefreshAfter,
			RequiredFields: required,
		})

		pipelines = append(pipelines, sync.NewPipeline(adapter, sync.Deps{
			Fetcher:  c.fetcher,
			Pacer:    pacer,
			Gate:     gate,
			Enricher: enricher,
			Store:    c.store,
			Pages:    c.pages,
			Recorder: c.recorder,
			Logger:   c.logger,
		}, cfg.PageBudget(src)))
	}

	return sync.NewRunner(pipelines, cfg.Sync.MaxParallelSources, c.logger), nil
}

// visionModel returns the model client, or nil when enrichment is disabled
// or no API key is configured.
func visionModel(cfg config.EnrichmentConfig, logger *slog.Logger) *vision.Client {
	if cfg.Disabled {
		logger.Info("enrichment disabled")
		return nil
	}
	if cfg.APIKey == "" {
		logger.Warn("enrichment has no api key; stored sections are reused, new posters are not described")
		return nil
	}
	return vision.New(cfg, logger)
}

// throttledText runs text extraction under the enricher's rate limit and
// concurrency bound.
type throttledText struct {
	model    kinderwelt.TextModel
	enricher *sync.Enricher
}

func (t throttledText) Extract(ctx context.Context, instruction, content string, imageURLs []string) (string, error) {
	return t.enricher.Do(ctx, func(ctx context.Context) (string, error) {
		return t.model.Extract(ctx, instruction, content, imageURLs)
	})
}
