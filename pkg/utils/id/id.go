// Package id generates the ULIDs used for request and evaluation-run
// identifiers. IDs sort by creation time.
package id

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new monotonic ULID, e.g. "01ARZ3NDEKTSV4RRFFQ69G5FAV".
func NewULID() string {
	return ulid.Make().String()
}

// IsULID reports whether s is a well-formed ULID.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time returns the creation time encoded in s.
func Time(s string) (time.Time, bool) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
