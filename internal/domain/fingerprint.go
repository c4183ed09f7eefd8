package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const fieldSeparator = "\x1f"

// Fingerprint hashes the fields whose change forces a re-sync.
func Fingerprint(title, rawDate, location string) string {
	return hashFields(title, rawDate, location)
}

// EmbeddingContentHash hashes the text an embedding is computed from, so the
// retrieval side can tell when a stored vector is stale.
func EmbeddingContentHash(e Event) string {
	date := ""
	if e.Date != nil {
		date = e.Date.Format("2006-01-02")
	}
	return hashFields(
		e.Title,
		e.Description,
		strings.Join(e.Tags, ", "),
		e.Location,
		date,
		e.TimeOfDay,
	)
}

func hashFields(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, fieldSeparator)))
	return hex.EncodeToString(sum[:])
}
