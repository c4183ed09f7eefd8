// Package event implements the event store using PostgreSQL.
package event

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	postgres "github.com/heartmarshall/eventsync/internal/adapter/postgres"
	"github.com/heartmarshall/eventsync/internal/domain"
)

const table = "events"

var columns = []string{
	"key", "source", "title", "tags", "raw_date", "event_date", "time_of_day",
	"location", "description", "image_urls", "fingerprint", "last_synced_at",
}

var candidateColumns = append(slices.Clone(columns), "COALESCE(embedding_hash, '')")

const defaultCandidateLimit = 100

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const upsertSQL = `
INSERT INTO events (key, source, title, tags, raw_date, event_date, time_of_day,
                    location, description, image_urls, fingerprint, last_synced_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (key) DO UPDATE SET
    source         = EXCLUDED.source,
    title          = EXCLUDED.title,
    tags           = EXCLUDED.tags,
    raw_date       = EXCLUDED.raw_date,
    event_date     = EXCLUDED.event_date,
    time_of_day    = EXCLUDED.time_of_day,
    location       = EXCLUDED.location,
    description    = EXCLUDED.description,
    image_urls     = EXCLUDED.image_urls,
    fingerprint    = EXCLUDED.fingerprint,
    last_synced_at = EXCLUDED.last_synced_at`

const touchSQL = `UPDATE events SET last_synced_at = $2 WHERE key = $1`

// Repo provides event persistence backed by PostgreSQL.
type Repo struct {
	db     postgres.DB
	tx     *postgres.TxManager
	marker string
}

// New creates a new event repository. marker separates the enrichment
// section inside descriptions.
func New(db postgres.DB, marker string) *Repo {
	if marker == "" {
		marker = domain.DefaultEnrichmentMarker
	}
	return &Repo{db: db, tx: postgres.NewTxManager(db), marker: marker}
}

// Get returns the record stored under key, or an error wrapping
// domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, key string) (*domain.Event, error) {
	ev, err := r.get(ctx, postgres.QuerierFromCtx(ctx, r.db), key, false)
	if err != nil {
		return nil, fmt.Errorf("event.Get: %w", err)
	}
	return ev, nil
}

func (r *Repo) get(ctx context.Context, q postgres.Querier, key string, forUpdate bool) (*domain.Event, error) {
	b := psql.Select(columns...).From(table).Where(sq.Eq{"key": key})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	ev, err := scanEvent(q.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, postgres.MapError(err, "event", key)
	}
	return &ev, nil
}

// Upsert writes ev. Inside one transaction the stored row is locked, merged
// with ev according to opts and written only when its content changed; an
// unchanged row only gets its last_synced_at refreshed.
func (r *Repo) Upsert(ctx context.Context, ev domain.Event, opts domain.UpsertOptions) (domain.UpsertResult, error) {
	if err := ev.Validate(); err != nil {
		return "", fmt.Errorf("event.Upsert: %w", err)
	}

	var res domain.UpsertResult
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := postgres.QuerierFromCtx(ctx, r.db)

		cur, err := r.get(ctx, q, ev.Key, true)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		next := domain.MergeForWrite(cur, ev, opts, r.marker)
		if cur != nil && domain.SameContent(*cur, next) {
			res = domain.UpsertUnchanged
			_, err := q.Exec(ctx, touchSQL, next.Key, next.LastSyncedAt)
			return postgres.MapError(err, "event", next.Key)
		}

		if _, err := q.Exec(ctx, upsertSQL, values(next)...); err != nil {
			return postgres.MapError(err, "event", next.Key)
		}
		res = domain.UpsertUpdated
		if cur == nil {
			res = domain.UpsertInserted
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("event.Upsert: %w", err)
	}
	return res, nil
}

// ListUpcoming returns records dated on or after from, ordered by date and
// time of day.
func (r *Repo) ListUpcoming(ctx context.Context, from time.Time) ([]domain.Event, error) {
	query, args, err := psql.Select(columns...).
		From(table).
		Where(sq.GtOrEq{"event_date": from.UTC().Format(time.DateOnly)}).
		OrderBy("event_date ASC", "time_of_day ASC", "title ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("event.ListUpcoming: build query: %w", err)
	}
	return r.list(ctx, "event.ListUpcoming", query, args)
}

// ListEmbeddingCandidates returns up to limit dated records whose embedding is
// missing or was computed from different content, oldest dates first.
func (r *Repo) ListEmbeddingCandidates(ctx context.Context, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	query, args, err := psql.Select(candidateColumns...).
		From(table).
		Where(sq.NotEq{"event_date": nil}).
		OrderBy("event_date ASC", "key ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("event.ListEmbeddingCandidates: build query: %w", err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("event.ListEmbeddingCandidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() && len(out) < limit {
		var c Candidate
		if err := rows.Scan(append(scanTargets(&c.Event), &c.EmbeddingHash)...); err != nil {
			return nil, fmt.Errorf("event.ListEmbeddingCandidates: scan: %w", err)
		}
		c.Event = normalize(c.Event)
		if c.EmbeddingHash == domain.EmbeddingContentHash(c.Event) {
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event.ListEmbeddingCandidates: %w", err)
	}
	return out, nil
}

// Candidate is a record together with the content hash of its stored
// embedding ("" when there is none).
type Candidate struct {
	domain.Event
	EmbeddingHash string
}

// SaveEmbedding stores the vector computed for key together with the content
// hash it was computed from.
func (r *Repo) SaveEmbedding(ctx context.Context, key string, vector []float32, hash string) error {
	query, args, err := psql.Update(table).
		Set("embedding", vector).
		Set("embedding_hash", hash).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("event.SaveEmbedding: build query: %w", err)
	}

	tag, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("event.SaveEmbedding: %w", postgres.MapError(err, "event", key))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event.SaveEmbedding: event %s: %w", key, domain.ErrNotFound)
	}
	return nil
}

// RepairDates fills event_date for legacy rows that have none although their
// raw date contains a DD.MM.YYYY date. It returns the number of fixed rows.
func (r *Repo) RepairDates(ctx context.Context) (int, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	query, args, err := psql.Select("key", "raw_date").
		From(table).
		Where(sq.Eq{"event_date": nil}).
		Where(sq.NotEq{"raw_date": ""}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("event.RepairDates: build query: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("event.RepairDates: %w", err)
	}
	type fix struct {
		key  string
		date time.Time
	}
	var fixes []fix
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("event.RepairDates: scan: %w", err)
		}
		if d := domain.ParseRawDate(raw); d != nil {
			fixes = append(fixes, fix{key: key, date: *d})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("event.RepairDates: %w", err)
	}
	if len(fixes) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, f := range fixes {
		batch.Queue(`UPDATE events SET event_date = $2 WHERE key = $1 AND event_date IS NULL`, f.key, f.date)
	}
	br := q.SendBatch(ctx, batch)
	defer br.Close()

	fixed := 0
	for _, f := range fixes {
		tag, err := br.Exec()
		if err != nil {
			return fixed, fmt.Errorf("event.RepairDates: %w", postgres.MapError(err, "event", f.key))
		}
		fixed += int(tag.RowsAffected())
	}
	return fixed, nil
}

func (r *Repo) list(ctx context.Context, op, query string, args []any) ([]domain.Event, error) {
	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func scanEvent(row pgx.Row) (domain.Event, error) {
	var ev domain.Event
	if err := row.Scan(scanTargets(&ev)...); err != nil {
		return domain.Event{}, err
	}
	return normalize(ev), nil
}

func scanTargets(ev *domain.Event) []any {
	return []any{
		&ev.Key, &ev.Source, &ev.Title, &ev.Tags, &ev.RawDate, &ev.Date, &ev.TimeOfDay,
		&ev.Location, &ev.Description, &ev.ImageURLs, &ev.Fingerprint, &ev.LastSyncedAt,
	}
}

// normalize maps empty arrays to nil so stored and freshly built records
// compare equal.
func normalize(ev domain.Event) domain.Event {
	if len(ev.Tags) == 0 {
		ev.Tags = nil
	}
	if len(ev.ImageURLs) == 0 {
		ev.ImageURLs = nil
	}
	if ev.Date != nil {
		d := time.Date(ev.Date.Year(), ev.Date.Month(), ev.Date.Day(), 0, 0, 0, 0, time.UTC)
		ev.Date = &d
	}
	return ev
}

func values(ev domain.Event) []any {
	tags, images := ev.Tags, ev.ImageURLs
	if tags == nil {
		tags = []string{}
	}
	if images == nil {
		images = []string{}
	}
	return []any{
		ev.Key, ev.Source, ev.Title, tags, ev.RawDate, ev.Date, ev.TimeOfDay,
		ev.Location, ev.Description, images, ev.Fingerprint, ev.LastSyncedAt,
	}
}
