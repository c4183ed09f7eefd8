//go:build e2e

package e2e_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/eventsync/internal/adapter/postgres/event"
	"github.com/heartmarshall/eventsync/internal/adapter/postgres/testhelper"
	"github.com/heartmarshall/eventsync/internal/app"
	"github.com/heartmarshall/eventsync/internal/domain"
)

const posterAnswer = "Eintritt frei. Bei Regen im Stadtsaal."

// TestE2E_IncrementalSync runs the binary's entry point three times against a
// fake calendar, a fake vision model and a real database.
func TestE2E_IncrementalSync(t *testing.T) {
	pool := testhelper.SetupTestDB(t)
	site := newSiteServer(t)
	model := newModelServer(t, posterAnswer)
	gateway := newPushServer(t)

	cfgPath := writeConfig(t, configParams{
		DSN:        testhelper.DSN(t),
		SourceName: "stadt",
		SiteURL:    site.URL,
		ModelURL:   model.URL,
		PushURL:    gateway.URL,
	})
	run := func() {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		require.NoError(t, app.Run(ctx, app.Options{ConfigPath: cfgPath}))
	}

	repo := event.New(pool, domain.DefaultEnrichmentMarker)
	ctx := context.Background()
	flohmarktKey := site.URL + "/Veranstaltungen/Flohmarkt"
	exhibitionKey := site.URL + "/Veranstaltungen/Ausstellung"

	// First run: both events are new, only the poster goes to the model.
	site.serveCalendar("Werft", "Bilder aus der Region.")
	run()

	assert.EqualValues(t, 1, model.calls.Load())
	flohmarkt, err := repo.Get(ctx, flohmarktKey)
	require.NoError(t, err)
	assert.Equal(t, "stadt", flohmarkt.Source)
	assert.Equal(t, "10:00 Uhr", flohmarkt.TimeOfDay)
	require.NotNil(t, flohmarkt.Date)
	assert.Equal(t, "2025-03-15", flohmarkt.Date.Format(time.DateOnly))
	assert.NotContains(t, flohmarkt.Description, domain.DefaultEnrichmentMarker)

	exhibition, err := repo.Get(ctx, exhibitionKey)
	require.NoError(t, err)
	assert.Equal(t, "Werft", exhibition.Location)
	assert.Equal(t, 1, strings.Count(exhibition.Description, domain.DefaultEnrichmentMarker))
	assert.True(t, strings.HasSuffix(exhibition.Description, posterAnswer))

	// Second run: nothing changed, no detail page is fetched.
	site.resetHits()
	run()

	assert.EqualValues(t, 1, model.calls.Load())
	assert.Zero(t, site.count("/Veranstaltungen/Flohmarkt"))
	assert.Zero(t, site.count("/Veranstaltungen/Ausstellung"))
	unchanged, err := repo.Get(ctx, exhibitionKey)
	require.NoError(t, err)
	assert.Equal(t, exhibition.Description, unchanged.Description)

	// Third run: the exhibition moved; the same poster is reused.
	site.resetHits()
	site.serveCalendar("Rathaus", "Bilder aus der Region. Neu im Rathaus.")
	run()

	assert.EqualValues(t, 1, model.calls.Load())
	assert.Equal(t, 1, site.count("/Veranstaltungen/Ausstellung"))
	assert.Zero(t, site.count("/Veranstaltungen/Flohmarkt"))

	moved, err := repo.Get(ctx, exhibitionKey)
	require.NoError(t, err)
	assert.Equal(t, "Rathaus", moved.Location)
	assert.Contains(t, moved.Description, "Neu im Rathaus.")
	assert.Equal(t, 1, strings.Count(moved.Description, domain.DefaultEnrichmentMarker))
	assert.True(t, strings.HasSuffix(moved.Description, posterAnswer))

	// Every run pushed its metrics.
	pushed := gateway.pushed()
	require.Len(t, pushed, 3)
	assert.Equal(t, "/metrics/job/eventsync-e2e", pushed[0])
}

// TestE2E_FirstPageOnly stops after the first listing page.
func TestE2E_FirstPageOnly(t *testing.T) {
	pool := testhelper.SetupTestDB(t)
	site := newSiteServer(t)
	model := newModelServer(t, posterAnswer)
	gateway := newPushServer(t)

	cfgPath := writeConfig(t, configParams{
		DSN:        testhelper.DSN(t),
		SourceName: "stadt",
		SiteURL:    site.URL,
		ModelURL:   model.URL,
		PushURL:    gateway.URL,
	})
	site.serveCalendar("Werft", "Bilder aus der Region.")

	err := app.Run(context.Background(), app.Options{ConfigPath: cfgPath, FirstPageOnly: true})
	require.NoError(t, err)

	assert.Zero(t, site.count("/Veranstaltungen?page=2"))
	assert.Zero(t, model.calls.Load())

	repo := event.New(pool, domain.DefaultEnrichmentMarker)
	_, err = repo.Get(context.Background(), site.URL+"/Veranstaltungen/Flohmarkt")
	require.NoError(t, err)
	_, err = repo.Get(context.Background(), site.URL+"/Veranstaltungen/Ausstellung")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestE2E_UnknownSourceFilter fails before any page is fetched.
func TestE2E_UnknownSourceFilter(t *testing.T) {
	site := newSiteServer(t)
	cfgPath := writeConfig(t, configParams{
		DSN:        testhelper.DSN(t),
		SourceName: "stadt",
		SiteURL:    site.URL,
		ModelURL:   "http://127.0.0.1:1",
		PushURL:    "",
	})

	err := app.Run(context.Background(), app.Options{ConfigPath: cfgPath, Sources: []string{"nope"}})
	assert.ErrorIs(t, err, app.ErrNoSources)
	assert.Zero(t, site.count("/Veranstaltungen"))
}
