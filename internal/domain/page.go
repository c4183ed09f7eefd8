package domain

import "time"

// PageState remembers the content hash of a listing page whose rows are
// derived by a model, so an unchanged page is not extracted again.
type PageState struct {
	Source    string
	URL       string
	Hash      string
	CheckedAt time.Time
}
