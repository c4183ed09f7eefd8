// Package source defines the contract every event source implements and
// builds the configured adapters.
package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/heartmarshall/eventsync/internal/config"
	"github.com/heartmarshall/eventsync/internal/domain"
	"github.com/heartmarshall/eventsync/internal/source/kinderwelt"
	"github.com/heartmarshall/eventsync/internal/source/ligaportal"
	"github.com/heartmarshall/eventsync/internal/source/municipal"
	"github.com/heartmarshall/eventsync/internal/source/nuliga"
)

// Adapter turns listing pages of one source into row stubs and follow links.
// A missing listing table is reported as an error wrapping domain.ErrNotFound.
type Adapter interface {
	Name() string
	StartURL() string
	ParseListing(doc *goquery.Document, pageURL *url.URL) (domain.Listing, error)
}

// DetailParser is implemented by adapters whose rows link to detail pages.
// Adapters without it deliver complete rows via domain.Row.Inline.
type DetailParser interface {
	ParseDetail(doc *goquery.Document, pageURL *url.URL, row domain.Row) domain.Detail
}

// Extractor is implemented by adapters whose rows are derived from the
// listing text by a model. PageHash summarizes what the extraction depends on,
// so an unchanged page can be skipped before any model call.
type Extractor interface {
	PageHash(doc *goquery.Document) string
	ExtractRows(ctx context.Context, doc *goquery.Document, pageURL *url.URL) (domain.Listing, error)
}

// Option configures optional collaborators of the built adapters.
type Option func(*options)

type options struct {
	text kinderwelt.TextModel
}

// WithTextModel sets the model used by adapters that extract events from text.
func WithTextModel(m kinderwelt.TextModel) Option {
	return func(o *options) { o.text = m }
}

// New builds the adapter for a source configuration.
func New(cfg config.SourceConfig, opts ...Option) (Adapter, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.Kind {
	case config.KindMunicipal:
		return municipal.New(cfg)
	case config.KindNuliga:
		return nuliga.New(cfg)
	case config.KindLigaportal:
		return ligaportal.New(cfg)
	case config.KindKinderwelt:
		return kinderwelt.New(cfg, o.text)
	default:
		return nil, fmt.Errorf("source %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
}
