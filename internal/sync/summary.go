package sync

import (
	"log/slog"
	"time"
)

// State is the terminal state of a source run.
type State string

const (
	StateDone   State = "done"
	StateFailed State = "failed"
)

// Summary counts what one source run did.
type Summary struct {
	Source    string
	State     State
	Err       error
	StartedAt time.Time
	Duration  time.Duration

	Pages          int
	PagesUnchanged int

	Rows      int
	Skipped   int
	Inserted  int
	Updated   int
	Unchanged int
	Failed    int

	Enrichment map[Outcome]int
}

func newSummary(source string, start time.Time) Summary {
	return Summary{
		Source:     source,
		State:      StateDone,
		StartedAt:  start,
		Enrichment: make(map[Outcome]int),
	}
}

// Written is the number of rows that reached the store with a change.
func (s Summary) Written() int { return s.Inserted + s.Updated }

func (s *Summary) fail(err error) {
	s.State = StateFailed
	s.Err = err
}

func (s *Summary) count(r RowResult) {
	switch r {
	case RowSkipped:
		s.Skipped++
	case RowInserted:
		s.Inserted++
	case RowUpdated:
		s.Updated++
	case RowUnchanged:
		s.Unchanged++
	case RowFailed:
		s.Failed++
	}
}

// LogAttrs renders the summary for a log record.
func (s Summary) LogAttrs() []any {
	attrs := []any{
		slog.String("state", string(s.State)),
		slog.Int("pages", s.Pages),
		slog.Int("pages_unchanged", s.PagesUnchanged),
		slog.Int("rows", s.Rows),
		slog.Int("skipped", s.Skipped),
		slog.Int("inserted", s.Inserted),
		slog.Int("updated", s.Updated),
		slog.Int("unchanged", s.Unchanged),
		slog.Int("failed", s.Failed),
		slog.Duration("took", s.Duration),
	}
	if len(s.Enrichment) > 0 {
		group := make([]any, 0, len(s.Enrichment))
		for o, n := range s.Enrichment {
			group = append(group, slog.Int(string(o), n))
		}
		attrs = append(attrs, slog.Group("enrichment", group...))
	}
	if s.Err != nil {
		attrs = append(attrs, slog.String("error", s.Err.Error()))
	}
	return attrs
}
