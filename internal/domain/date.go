package domain

import (
	"regexp"
	"time"
)

var rawDatePattern = regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`)

// ParseRawDate extracts the first valid DD.MM.YYYY date from free text and
// returns it as UTC midnight. It returns nil when no valid date is present.
func ParseRawDate(raw string) *time.Time {
	for _, m := range rawDatePattern.FindAllString(raw, -1) {
		t, err := time.Parse("02.01.2006", m)
		if err == nil {
			return &t
		}
	}
	return nil
}

// HasRawDate reports whether the text contains something shaped like DD.MM.YYYY.
func HasRawDate(raw string) bool {
	return rawDatePattern.MatchString(raw)
}

// FindRawDate returns the first DD.MM.YYYY substring of text, or "".
func FindRawDate(text string) string {
	return rawDatePattern.FindString(text)
}
