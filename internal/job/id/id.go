// Package id generates chop job identifiers.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix marks every chop job id so it is never confused with a track id.
const Prefix = "chop-"

// Generate returns a new job id of the form chop-<uuidv7>. Version 7
// uuids embed a millisecond timestamp, so ids sort by creation time.
func Generate() string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return Prefix + u.String()
}

// Valid reports whether s looks like an id produced by Generate.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
