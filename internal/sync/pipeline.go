package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/heartmarshall/eventsync/internal/adapter/fetch"
	"github.com/heartmarshall/eventsync/internal/domain"
	"github.com/heartmarshall/eventsync/internal/source"
	"github.com/heartmarshall/eventsync/pkg/ctxutil"
)

// EventStore is the record store the pipeline reads and writes.
// Get returns an error wrapping domain.ErrNotFound for unknown keys.
type EventStore interface {
	Get(ctx context.Context, key string) (*domain.Event, error)
	Upsert(ctx context.Context, ev domain.Event, opts domain.UpsertOptions) (domain.UpsertResult, error)
}

// PageStateStore keeps the content hash of pages whose rows a model derives.
// GetPageState returns an error wrapping domain.ErrNotFound for unknown pages.
type PageStateStore interface {
	GetPageState(ctx context.Context, source, pageURL string) (*domain.PageState, error)
	SavePageState(ctx context.Context, st domain.PageState) error
}

var errPageUnchanged = errors.New("page unchanged")

// RowResult is the per-row outcome counted in summaries and metrics.
type RowResult string

const (
	RowSkipped   RowResult = "skipped"
	RowInserted  RowResult = "inserted"
	RowUpdated   RowResult = "updated"
	RowUnchanged RowResult = "unchanged"
	RowFailed    RowResult = "failed"
)

// Recorder observes pipeline progress.
type Recorder interface {
	PageFetched(source string)
	RowProcessed(source string, result RowResult)
	EnrichmentDone(source string, outcome Outcome)
	SourceFinished(s Summary)
}

type nopRecorder struct{}

func (nopRecorder) PageFetched(string)             {}
func (nopRecorder) RowProcessed(string, RowResult) {}
func (nopRecorder) EnrichmentDone(string, Outcome) {}
func (nopRecorder) SourceFinished(Summary)         {}

// Deps are the collaborators shared by all pipelines of a run.
type Deps struct {
	Fetcher  Fetcher
	Pacer    Waiter
	Gate     *Gate
	Enricher *Enricher
	Store    EventStore
	Pages    PageStateStore
	Recorder Recorder
	Logger   *slog.Logger
}

// Pipeline synchronizes one source.
type Pipeline struct {
	adapter source.Adapter
	deps    Deps
	budget  int
	log     *slog.Logger
	now     func() time.Time
}

// NewPipeline creates the pipeline of one source. budget bounds the number of
// listing pages; <= 0 means unlimited.
func NewPipeline(adapter source.Adapter, deps Deps, budget int) *Pipeline {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		adapter: adapter,
		deps:    deps,
		budget:  budget,
		log:     logger.With("source", adapter.Name()),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the source name.
func (p *Pipeline) Name() string { return p.adapter.Name() }

// Run walks the source and processes every row. It never returns an error:
// a listing fetch failure ends the source in StateFailed, row failures are
// counted and logged.
func (p *Pipeline) Run(ctx context.Context) Summary {
	ctx = ctxutil.WithSource(ctx, p.adapter.Name())
	sum := newSummary(p.adapter.Name(), p.now())
	log := p.log
	if id, ok := ctxutil.RunIDFromCtx(ctx); ok {
		log = log.With("run_id", id.String())
	}

	log.InfoContext(ctx, "source started", slog.String("start_url", p.adapter.StartURL()), slog.Int("page_budget", p.budget))

	w := NewWalker(p.deps.Fetcher, p.deps.Pacer, p.adapter.StartURL(), p.budget)
	for page, err := range w.Pages(ctx) {
		if err != nil {
			sum.fail(err)
			log.ErrorContext(ctx, "listing fetch failed", slog.String("error", err.Error()))
			break
		}
		sum.Pages++
		p.deps.Recorder.PageFetched(sum.Source)
		log.InfoContext(ctx, "page fetched", slog.String("url", page.URL), slog.Int("page", sum.Pages))

		listing, state, err := p.listPage(ctx, log, page)
		if errors.Is(err, errPageUnchanged) {
			sum.PagesUnchanged++
			continue
		}
		if err != nil {
			log.WarnContext(ctx, "listing not parsed", slog.String("url", page.URL), slog.String("error", err.Error()))
			if len(listing.Rows) == 0 {
				continue
			}
			state = nil
		}
		w.Follow(listing.Links...)

		failed := sum.Failed
		for _, row := range listing.Rows {
			if err := ctx.Err(); err != nil {
				sum.fail(err)
				break
			}
			sum.Rows++
			res := p.processRow(ctx, log, row, &sum)
			sum.count(res)
			p.deps.Recorder.RowProcessed(sum.Source, res)
		}
		if sum.State == StateFailed {
			break
		}
		if state != nil && sum.Failed == failed {
			p.savePage(ctx, log, *state)
		}
	}

	sum.Duration = p.now().Sub(sum.StartedAt)
	p.deps.Recorder.SourceFinished(sum)
	log.InfoContext(ctx, "source finished", sum.LogAttrs()...)
	return sum
}

// listPage parses one listing page. Pages of an extracting adapter pass the
// page gate first; the returned state is saved once all their rows are written.
func (p *Pipeline) listPage(ctx context.Context, log *slog.Logger, page fetch.Page) (domain.Listing, *domain.PageState, error) {
	doc, err := page.Document()
	if err != nil {
		return domain.Listing{}, nil, err
	}
	u, err := url.Parse(page.URL)
	if err != nil {
		return domain.Listing{}, nil, fmt.Errorf("page url: %w", err)
	}

	ex, ok := p.adapter.(source.Extractor)
	if !ok {
		listing, err := p.adapter.ParseListing(doc, u)
		return listing, nil, err
	}

	state := &domain.PageState{Source: p.adapter.Name(), URL: page.URL, Hash: ex.PageHash(doc)}
	if p.deps.Pages != nil {
		prev, err := p.deps.Pages.GetPageState(ctx, state.Source, state.URL)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.WarnContext(ctx, "page state lookup failed", slog.String("url", page.URL), slog.String("error", err.Error()))
			}
			prev = nil
		}
		dec := p.deps.Gate.DecidePage(state.Hash, prev)
		if !dec.Proceed {
			log.InfoContext(ctx, "page unchanged", slog.String("url", page.URL))
			return domain.Listing{}, nil, errPageUnchanged
		}
		log.DebugContext(ctx, "page extracted", slog.String("url", page.URL), slog.String("reason", string(dec.Reason)))
	}

	listing, err := ex.ExtractRows(ctx, doc, u)
	return listing, state, err
}

func (p *Pipeline) savePage(ctx context.Context, log *slog.Logger, st domain.PageState) {
	if p.deps.Pages == nil {
		return
	}
	st.CheckedAt = p.now()
	if err := p.deps.Pages.SavePageState(ctx, st); err != nil {
		log.WarnContext(ctx, "page state not saved", slog.String("url", st.URL), slog.String("error", err.Error()))
	}
}

// processRow runs gate, detail, enrichment and write for one row.
func (p *Pipeline) processRow(ctx context.Context, log *slog.Logger, row domain.Row, sum *Summary) RowResult {
	log = log.With(slog.String("key", row.Key))

	prev, err := p.deps.Store.Get(ctx, row.Key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.ErrorContext(ctx, "row lookup failed", slog.String("error", err.Error()))
			return RowFailed
		}
		prev = nil
	}

	dec := p.deps.Gate.Decide(row, prev)
	if !dec.Proceed {
		log.DebugContext(ctx, "row skipped", slog.String("title", row.Title), slog.String("reason", string(dec.Reason)))
		return RowSkipped
	}

	detail, err := p.detail(ctx, row)
	if err != nil {
		log.WarnContext(ctx, "detail fetch failed", slog.String("error", err.Error()))
		return RowFailed
	}
	if len(detail.Missing) > 0 {
		log.DebugContext(ctx, "detail fields missing", slog.Any("fields", detail.Missing))
	}

	ev := domain.BuildEvent(p.adapter.Name(), row, detail)
	var opts domain.UpsertOptions

	if row.Inline == nil && p.deps.Enricher != nil {
		enr := p.deps.Enricher.Enrich(ctx, detail.PrimaryImage, prev)
		sum.Enrichment[enr.Outcome]++
		p.deps.Recorder.EnrichmentDone(sum.Source, enr.Outcome)
		switch enr.Outcome {
		case OutcomeReused:
			ev.Description = domain.WithEnrichment(ev.Description, p.deps.Enricher.Marker(), enr.Section)
			opts.PreserveEnrichment = true
		case OutcomeAccepted:
			ev.Description = domain.WithEnrichment(ev.Description, p.deps.Enricher.Marker(), enr.Section)
		}
	}

	ev.LastSyncedAt = p.now()
	res, err := p.deps.Store.Upsert(ctx, ev, opts)
	if err != nil {
		log.ErrorContext(ctx, "row write failed", slog.String("error", err.Error()))
		return RowFailed
	}

	log.InfoContext(ctx, "row written",
		slog.String("title", ev.Title),
		slog.String("reason", string(dec.Reason)),
		slog.String("result", string(res)),
	)
	switch res {
	case domain.UpsertInserted:
		return RowInserted
	case domain.UpsertUnchanged:
		return RowUnchanged
	default:
		return RowUpdated
	}
}

// detail returns the inline detail of a row or fetches and parses its page.
func (p *Pipeline) detail(ctx context.Context, row domain.Row) (domain.Detail, error) {
	if row.Inline != nil {
		return *row.Inline, nil
	}
	dp, ok := p.adapter.(source.DetailParser)
	if !ok {
		return domain.Detail{}, nil
	}

	if err := p.deps.Pacer.Wait(ctx); err != nil {
		return domain.Detail{}, err
	}
	page, err := p.deps.Fetcher.Get(ctx, row.Key)
	if err != nil {
		return domain.Detail{}, err
	}
	doc, err := page.Document()
	if err != nil {
		return domain.Detail{}, err
	}
	u, err := url.Parse(page.URL)
	if err != nil {
		return domain.Detail{}, fmt.Errorf("detail url: %w", err)
	}
	return dp.ParseDetail(doc, u, row), nil
}
