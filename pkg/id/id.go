package id

import "github.com/oklog/ulid/v2"

// New returns a ULID string. ulid.Make draws from a locked monotonic
// crypto-rand source, so IDs are unpredictable yet strictly increasing
// within this process: sorting by ID sorts by creation time, which the
// transaction history relies on for stable ordering.
func New() string {
	return ulid.Make().String()
}
