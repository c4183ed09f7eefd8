// Package sync runs the incremental synchronization of event sources: it walks
// listing pages, gates unchanged rows, enriches posters and writes records.
package sync

import (
	"context"
	"math/rand/v2"
	"time"
)

// Waiter pauses between network requests.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Pacer waits a random duration in [min, max] before returning.
type Pacer struct {
	min, max time.Duration
}

// NewPacer creates a Pacer. max below min is treated as min.
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{min: min, max: max}
}

// Wait sleeps for a jittered delay or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return sleepContext(ctx, p.next())
}

func (p *Pacer) next() time.Duration {
	span := p.max - p.min
	if span <= 0 {
		return p.min
	}
	return p.min + time.Duration(rand.Int64N(int64(span)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
