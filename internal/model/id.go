package model

import "github.com/oklog/ulid/v2"

// NewID generates a ULID string used as a run identifier. ULIDs sort
// lexicographically by creation time.
func NewID() string {
	return ulid.Make().String()
}
