package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/eventsync/internal/domain"
)

// UniqueKey returns a record key that does not collide with other tests
// sharing the container.
func UniqueKey(prefix string) string {
	return "https://test.invalid/" + prefix + "/" + uuid.New().String()[:8]
}

// SeedEvent inserts ev verbatim, bypassing the repository merge rules.
// Empty Key and Title are filled in. Returns the stored record.
func SeedEvent(t *testing.T, pool *pgxpool.Pool, ev domain.Event) domain.Event {
	t.Helper()
	ctx := context.Background()

	if ev.Key == "" {
		ev.Key = UniqueKey("seed")
	}
	if ev.Title == "" {
		ev.Title = "Seed " + ev.Key
	}
	if ev.Source == "" {
		ev.Source = "seed"
	}
	if ev.LastSyncedAt.IsZero() {
		ev.LastSyncedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	if ev.Tags == nil {
		ev.Tags = []string{}
	}
	if ev.ImageURLs == nil {
		ev.ImageURLs = []string{}
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO events (key, source, title, tags, raw_date, event_date, time_of_day,
		                     location, description, image_urls, fingerprint, last_synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ev.Key, ev.Source, ev.Title, ev.Tags, ev.RawDate, ev.Date, ev.TimeOfDay,
		ev.Location, ev.Description, ev.ImageURLs, ev.Fingerprint, ev.LastSyncedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedEvent insert: %v", err)
	}
	return ev
}
