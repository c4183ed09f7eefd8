package domain

import "strings"

// DefaultEnrichmentMarker separates the scraped description from the
// model-derived section.
const DefaultEnrichmentMarker = "--- ZUSATZINFO AUS PLAKAT ---"

// SplitEnrichment separates a description into its body and enrichment
// section. ok is false when there is no non-empty section.
func SplitEnrichment(desc, marker string) (body, section string, ok bool) {
	idx := strings.Index(desc, marker)
	if marker == "" || idx < 0 {
		return desc, "", false
	}
	body = strings.TrimRight(desc[:idx], " \t\n")
	section = strings.TrimSpace(desc[idx+len(marker):])
	return body, section, section != ""
}

// WithEnrichment returns body followed by exactly one enrichment section.
// Any section already present in body is dropped first. An empty text leaves
// only the body.
func WithEnrichment(body, marker, text string) string {
	body, _, _ = SplitEnrichment(body, marker)
	text = strings.TrimSpace(text)
	if text == "" {
		return body
	}
	return body + "\n\n" + marker + "\n" + text
}

// UpsertOptions tunes how a write merges with the stored record.
type UpsertOptions struct {
	// PreserveEnrichment keeps the stored enrichment section verbatim.
	PreserveEnrichment bool
}

// UpsertResult is the effect an upsert had on the store.
type UpsertResult string

const (
	UpsertInserted  UpsertResult = "inserted"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
)

// MergeForWrite computes the record to store from the current row (nil if
// absent) and the freshly extracted one.
func MergeForWrite(current *Event, next Event, opts UpsertOptions, marker string) Event {
	next.Tags = NormalizeTags(next.Tags)
	if current == nil || !opts.PreserveEnrichment {
		return next
	}
	_, section, ok := SplitEnrichment(current.Description, marker)
	if !ok {
		return next
	}
	next.Description = WithEnrichment(next.Description, marker, section)
	return next
}
