package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/heartmarshall/eventsync/internal/adapter/fetch"
	"github.com/heartmarshall/eventsync/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noWait never sleeps.
type noWait struct{}

func (noWait) Wait(ctx context.Context) error { return ctx.Err() }

// countingWait counts calls.
type countingWait struct {
	mu    stdsync.Mutex
	calls int
}

func (w *countingWait) Wait(ctx context.Context) error {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	return ctx.Err()
}

// fakeFetcher serves pages from a map keyed by URL.
type fakeFetcher struct {
	mu    stdsync.Mutex
	pages map[string]string
	fail  map[string]error
	// redirect maps a requested URL to the final URL reported in the page.
	redirect map[string]string
	calls    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:    make(map[string]string),
		fail:     make(map[string]error),
		redirect: make(map[string]string),
	}
}

func (f *fakeFetcher) Get(ctx context.Context, url string) (fetch.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)

	if err := ctx.Err(); err != nil {
		return fetch.Page{}, err
	}
	if err, ok := f.fail[url]; ok {
		return fetch.Page{}, err
	}
	body, ok := f.pages[url]
	if !ok {
		return fetch.Page{}, &fetch.StatusError{URL: url, StatusCode: 404}
	}
	final := url
	if r, ok := f.redirect[url]; ok {
		final = r
	}
	return fetch.Page{URL: final, StatusCode: 200, Body: []byte(body), FetchedAt: time.Now()}, nil
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	f.pages[url] = body
	f.mu.Unlock()
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// memStore is an in-memory EventStore with the same merge rules as the
// postgres repository.
type memStore struct {
	mu      stdsync.Mutex
	marker  string
	events  map[string]domain.Event
	getErr  error
	putErr  map[string]error
	writes  int
	upserts int
}

func newMemStore() *memStore {
	return &memStore{
		marker: domain.DefaultEnrichmentMarker,
		events: make(map[string]domain.Event),
		putErr: make(map[string]error),
	}
}

func (s *memStore) Get(_ context.Context, key string) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	ev, ok := s.events[key]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", key, domain.ErrNotFound)
	}
	return &ev, nil
}

func (s *memStore) Upsert(_ context.Context, ev domain.Event, opts domain.UpsertOptions) (domain.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if err := s.putErr[ev.Key]; err != nil {
		return "", err
	}
	if err := ev.Validate(); err != nil {
		return "", err
	}

	cur, exists := s.events[ev.Key]
	var curPtr *domain.Event
	if exists {
		curPtr = &cur
	}
	next := domain.MergeForWrite(curPtr, ev, opts, s.marker)
	switch {
	case !exists:
		s.events[ev.Key] = next
		s.writes++
		return domain.UpsertInserted, nil
	case domain.SameContent(cur, next):
		cur.LastSyncedAt = next.LastSyncedAt
		s.events[ev.Key] = cur
		return domain.UpsertUnchanged, nil
	default:
		s.events[ev.Key] = next
		s.writes++
		return domain.UpsertUpdated, nil
	}
}

// upsertCount is the number of Upsert calls, including unchanged ones.
func (s *memStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.events))
	for k := range s.events {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *memStore) event(key string) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[key]
}

// fakeVision answers every image with the same text.
type fakeVision struct {
	mu     stdsync.Mutex
	answer string
	err    error
	calls  []string
}

func (v *fakeVision) Describe(_ context.Context, _, imageURL string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, imageURL)
	return v.answer, v.err
}

func (v *fakeVision) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.calls)
}

var errBoom = errors.New("boom")

// blockingVision holds every call until release is closed.
type blockingVision struct {
	started atomic.Int32
	release chan struct{}
}

func (v *blockingVision) Describe(ctx context.Context, _, _ string) (string, error) {
	v.started.Add(1)
	select {
	case <-v.release:
		return "Plakat", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// fakeRecorder records pipeline events.
type fakeRecorder struct {
	mu       stdsync.Mutex
	pages    int
	rows     map[RowResult]int
	outcomes map[Outcome]int
	finished []Summary
	onRow    func()
}

func (r *fakeRecorder) PageFetched(string) {
	r.mu.Lock()
	r.pages++
	r.mu.Unlock()
}

func (r *fakeRecorder) RowProcessed(_ string, res RowResult) {
	r.mu.Lock()
	if r.rows == nil {
		r.rows = make(map[RowResult]int)
	}
	r.rows[res]++
	onRow := r.onRow
	r.mu.Unlock()
	if onRow != nil {
		onRow()
	}
}

func (r *fakeRecorder) EnrichmentDone(_ string, o Outcome) {
	r.mu.Lock()
	if r.outcomes == nil {
		r.outcomes = make(map[Outcome]int)
	}
	r.outcomes[o]++
	r.mu.Unlock()
}

func (r *fakeRecorder) SourceFinished(s Summary) {
	r.mu.Lock()
	r.finished = append(r.finished, s)
	r.mu.Unlock()
}

// fakeText answers every extraction with the same JSON.
type fakeText struct {
	mu     stdsync.Mutex
	answer string
	err    error
	calls  int
}

func (m *fakeText) Extract(_ context.Context, _, _ string, _ []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

func (m *fakeText) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// memPages is an in-memory PageStateStore.
type memPages struct {
	mu     stdsync.Mutex
	states map[string]domain.PageState
	saves  int
}

func newMemPages() *memPages {
	return &memPages{states: make(map[string]domain.PageState)}
}

func (m *memPages) GetPageState(_ context.Context, source, pageURL string) (*domain.PageState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[source+" "+pageURL]
	if !ok {
		return nil, fmt.Errorf("page %s: %w", pageURL, domain.ErrNotFound)
	}
	return &st, nil
}

func (m *memPages) SavePageState(_ context.Context, st domain.PageState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.states[st.Source+" "+st.URL] = st
	return nil
}

func (m *memPages) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
