package store

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a compare-and-swap write loses the race
// after exhausting its retries.
var ErrConflict = errors.New("revision conflict")
