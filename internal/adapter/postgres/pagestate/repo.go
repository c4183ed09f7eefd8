// Package pagestate stores the content hash of listing pages whose rows are
// extracted by a model.
package pagestate

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	postgres "github.com/heartmarshall/eventsync/internal/adapter/postgres"
	"github.com/heartmarshall/eventsync/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const saveSQL = `
INSERT INTO page_states (source, page_url, hash, checked_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (source, page_url) DO UPDATE SET
    hash       = EXCLUDED.hash,
    checked_at = EXCLUDED.checked_at`

// Repo provides page state persistence backed by PostgreSQL.
type Repo struct {
	db postgres.DB
}

// New creates a new page state repository.
func New(db postgres.DB) *Repo {
	return &Repo{db: db}
}

// GetPageState returns the stored state of a page, or an error wrapping
// domain.ErrNotFound.
func (r *Repo) GetPageState(ctx context.Context, source, pageURL string) (*domain.PageState, error) {
	query, args, err := psql.Select("source", "page_url", "hash", "checked_at").
		From("page_states").
		Where(sq.Eq{"source": source, "page_url": pageURL}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("pagestate.Get: build query: %w", err)
	}

	var st domain.PageState
	err = postgres.QuerierFromCtx(ctx, r.db).QueryRow(ctx, query, args...).
		Scan(&st.Source, &st.URL, &st.Hash, &st.CheckedAt)
	if err != nil {
		return nil, fmt.Errorf("pagestate.Get: %w", postgres.MapError(err, "page", pageURL))
	}
	return &st, nil
}

// SavePageState inserts or replaces the state of a page.
func (r *Repo) SavePageState(ctx context.Context, st domain.PageState) error {
	_, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, saveSQL, st.Source, st.URL, st.Hash, st.CheckedAt)
	if err != nil {
		return fmt.Errorf("pagestate.Save: %w", postgres.MapError(err, "page", st.URL))
	}
	return nil
}
