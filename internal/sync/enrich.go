package sync

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/heartmarshall/eventsync/internal/domain"
	"github.com/heartmarshall/eventsync/internal/extract"
)

// VisionModel reads an image and answers an instruction about it.
type VisionModel interface {
	Describe(ctx context.Context, instruction, imageURL string) (string, error)
}

// Outcome is what the enricher did for one record.
type Outcome string

const (
	OutcomeNone     Outcome = "none"
	OutcomeNotImage Outcome = "not_image"
	OutcomeReused   Outcome = "reused"
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// EnrichPolicy configures prompt and answer filtering.
type EnrichPolicy struct {
	Instruction    string
	Sentinel       string
	RefusalPhrases []string
	Marker         string
}

// Enrichment is the result of Enricher.Enrich. Section is set for
// OutcomeReused and OutcomeAccepted.
type Enrichment struct {
	Outcome Outcome
	Section string
}

// Enricher derives the poster section of a description, reusing the stored
// one whenever the primary image did not change. Model calls are throttled by
// a shared token bucket and a concurrency limit.
type Enricher struct {
	model   VisionModel
	policy  EnrichPolicy
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	log     *slog.Logger
}

// NewEnricher creates an Enricher. A nil model disables model calls; stored
// sections are still reused.
func NewEnricher(model VisionModel, p EnrichPolicy, limiter *rate.Limiter, sem *semaphore.Weighted, logger *slog.Logger) *Enricher {
	if p.Marker == "" {
		p.Marker = domain.DefaultEnrichmentMarker
	}
	return &Enricher{
		model:   model,
		policy:  p,
		limiter: limiter,
		sem:     sem,
		log:     logger.With("component", "enricher"),
	}
}

// Marker returns the section marker in use.
func (e *Enricher) Marker() string { return e.policy.Marker }

// Enrich decides the enrichment section for a record whose primary image is
// primaryImage. prev is the stored record or nil.
func (e *Enricher) Enrich(ctx context.Context, primaryImage string, prev *domain.Event) Enrichment {
	if primaryImage == "" {
		return Enrichment{Outcome: OutcomeNone}
	}

	if prev != nil && prev.PrimaryImage() == primaryImage {
		if _, section, ok := domain.SplitEnrichment(prev.Description, e.policy.Marker); ok && e.acceptable(section) {
			e.log.DebugContext(ctx, "enrichment reused", slog.String("image", primaryImage))
			return Enrichment{Outcome: OutcomeReused, Section: section}
		}
	}

	if !extract.LooksLikeImage(primaryImage) {
		return Enrichment{Outcome: OutcomeNotImage}
	}
	if e.model == nil {
		return Enrichment{Outcome: OutcomeNone}
	}

	text, err := e.call(ctx, primaryImage)
	if err != nil {
		e.log.WarnContext(ctx, "enrichment failed", slog.String("image", primaryImage), slog.String("error", err.Error()))
		return Enrichment{Outcome: OutcomeFailed}
	}
	if !e.acceptable(text) {
		e.log.InfoContext(ctx, "enrichment rejected", slog.String("image", primaryImage))
		return Enrichment{Outcome: OutcomeRejected}
	}

	e.log.InfoContext(ctx, "enrichment accepted", slog.String("image", primaryImage), slog.Int("chars", len(text)))
	return Enrichment{Outcome: OutcomeAccepted, Section: strings.TrimSpace(text)}
}

func (e *Enricher) call(ctx context.Context, imageURL string) (string, error) {
	return e.Do(ctx, func(ctx context.Context) (string, error) {
		return e.model.Describe(ctx, e.policy.Instruction, imageURL)
	})
}

// Do runs a model call under the shared rate limit and concurrency bound.
func (e *Enricher) Do(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer e.sem.Release(1)
	}
	return fn(ctx)
}

// containsSentinel reports whether the sentinel appears as a whole word,
// ignoring case. "SKIP - kein Plakat" matches, "Skipiste" does not.
func (e *Enricher) containsSentinel(text string) bool {
	if e.policy.Sentinel == "" {
		return false
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if strings.EqualFold(w, e.policy.Sentinel) {
			return true
		}
	}
	return false
}

// acceptable rejects empty answers, answers naming the sentinel and refusals.
func (e *Enricher) acceptable(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if e.containsSentinel(t) {
		return false
	}
	lower := strings.ToLower(t)
	for _, p := range e.policy.RefusalPhrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return false
		}
	}
	return true
}
