package domain

import (
	"slices"
	"strings"
	"time"
)

// Field names usable as required fields in the fingerprint gate.
const (
	FieldTimeOfDay   = "time_of_day"
	FieldTags        = "tags"
	FieldImages      = "images"
	FieldDescription = "description"
	FieldDate        = "date"
)

// KnownFields lists every field name accepted by Event.IsEmpty.
var KnownFields = []string{FieldTimeOfDay, FieldTags, FieldImages, FieldDescription, FieldDate}

// Event is the canonical record of one happening, keyed by its stable source URL.
type Event struct {
	Key          string
	Source       string
	Title        string
	Tags         []string
	RawDate      string
	Date         *time.Time
	TimeOfDay    string
	Location     string
	Description  string
	ImageURLs    []string
	Fingerprint  string
	LastSyncedAt time.Time
}

// PrimaryImage returns the first image URL, or "" when the record has none.
func (e Event) PrimaryImage() string {
	if len(e.ImageURLs) == 0 {
		return ""
	}
	return e.ImageURLs[0]
}

// IsEmpty reports whether the named field carries no value.
// Unknown field names are never empty.
func (e Event) IsEmpty(field string) bool {
	switch field {
	case FieldTimeOfDay:
		return strings.TrimSpace(e.TimeOfDay) == ""
	case FieldTags:
		return len(e.Tags) == 0
	case FieldImages:
		return len(e.ImageURLs) == 0
	case FieldDescription:
		return strings.TrimSpace(e.Description) == ""
	case FieldDate:
		return e.Date == nil
	default:
		return false
	}
}

// Validate checks the fields the store relies on.
func (e Event) Validate() error {
	var errs []FieldError
	if strings.TrimSpace(e.Key) == "" {
		errs = append(errs, FieldError{Field: "key", Message: "required"})
	}
	if strings.TrimSpace(e.Title) == "" {
		errs = append(errs, FieldError{Field: "title", Message: "required"})
	}
	if strings.TrimSpace(e.Source) == "" {
		errs = append(errs, FieldError{Field: "source", Message: "required"})
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

// Row is the listing-level stub of an event, enough to compute its fingerprint.
type Row struct {
	Key      string
	Title    string
	RawDate  string
	Location string

	// Inline is set by sources whose listing already carries every field.
	Inline *Detail
}

// Fingerprint returns the change-detection hash of the row's identity fields.
func (r Row) Fingerprint() string {
	return Fingerprint(r.Title, r.RawDate, r.Location)
}

// Listing is what one listing page yields: row stubs plus the absolute URLs
// of further listing pages to visit, in order.
type Listing struct {
	Rows  []Row
	Links []string
}

// Detail is what a detail page (or a complete listing row) yields.
type Detail struct {
	Tags         []string
	ImageURLs    []string
	PrimaryImage string
	TimeOfDay    string
	Description  string

	// Missing names the fields whose page elements were not found.
	Missing []string
}

// BuildEvent assembles a record from a listing row and its detail.
func BuildEvent(source string, row Row, d Detail) Event {
	return Event{
		Key:         row.Key,
		Source:      source,
		Title:       row.Title,
		Tags:        NormalizeTags(d.Tags),
		RawDate:     row.RawDate,
		Date:        ParseRawDate(row.RawDate),
		TimeOfDay:   d.TimeOfDay,
		Location:    row.Location,
		Description: d.Description,
		ImageURLs:   slices.Clone(d.ImageURLs),
		Fingerprint: row.Fingerprint(),
	}
}

// NormalizeTags trims, deduplicates and sorts tags. Empty tokens are dropped.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// SameContent reports whether two records would be stored identically.
// LastSyncedAt is ignored.
func SameContent(a, b Event) bool {
	if a.Key != b.Key || a.Source != b.Source || a.Title != b.Title ||
		a.RawDate != b.RawDate || a.TimeOfDay != b.TimeOfDay ||
		a.Location != b.Location || a.Description != b.Description ||
		a.Fingerprint != b.Fingerprint {
		return false
	}
	if !slices.Equal(a.Tags, b.Tags) || !slices.Equal(a.ImageURLs, b.ImageURLs) {
		return false
	}
	switch {
	case a.Date == nil && b.Date == nil:
		return true
	case a.Date == nil || b.Date == nil:
		return false
	default:
		return a.Date.Equal(*b.Date)
	}
}
