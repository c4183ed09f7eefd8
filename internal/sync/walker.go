package sync

import (
	"context"
	"iter"
	"net/url"

	"github.com/heartmarshall/eventsync/internal/adapter/fetch"
)

// Fetcher retrieves one page.
type Fetcher interface {
	Get(ctx context.Context, url string) (fetch.Page, error)
}

// Walker traverses the listing pages of one source breadth-first.
// Links are added with Follow while iterating; URLs differing only in their
// fragment count as the same page.
type Walker struct {
	fetcher Fetcher
	pacer   Waiter
	budget  int

	queue   []string
	visited map[string]bool
	fetched int
	started bool
}

// NewWalker creates a Walker starting at start. A budget <= 0 means no page limit.
func NewWalker(f Fetcher, pacer Waiter, start string, budget int) *Walker {
	return &Walker{
		fetcher: f,
		pacer:   pacer,
		budget:  budget,
		queue:   []string{start},
		visited: make(map[string]bool),
	}
}

// Follow queues links for later visits. Already visited links are ignored.
func (w *Walker) Follow(links ...string) {
	for _, l := range links {
		if l == "" || w.visited[visitKey(l)] {
			continue
		}
		w.queue = append(w.queue, l)
	}
}

// Fetched returns the number of pages fetched so far.
func (w *Walker) Fetched() int { return w.fetched }

// Pages yields fetched pages until the queue is empty or the budget is spent.
// A fetch failure is yielded once and ends the sequence. The sequence can be
// ranged over only once; later calls yield nothing.
func (w *Walker) Pages(ctx context.Context) iter.Seq2[fetch.Page, error] {
	return func(yield func(fetch.Page, error) bool) {
		if w.started {
			return
		}
		w.started = true

		for len(w.queue) > 0 {
			if w.budget > 0 && w.fetched >= w.budget {
				return
			}
			next := w.queue[0]
			w.queue = w.queue[1:]

			key := visitKey(next)
			if w.visited[key] {
				continue
			}
			w.visited[key] = true

			if w.fetched > 0 {
				if err := w.pacer.Wait(ctx); err != nil {
					yield(fetch.Page{}, err)
					return
				}
			} else if err := ctx.Err(); err != nil {
				yield(fetch.Page{}, err)
				return
			}

			page, err := w.fetcher.Get(ctx, next)
			w.fetched++
			if err != nil {
				yield(fetch.Page{}, err)
				return
			}
			if page.URL != "" {
				w.visited[visitKey(page.URL)] = true
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

func visitKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
