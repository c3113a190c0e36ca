package store

import "errors"

// ErrNotFound is returned when a job or segment does not exist.
var ErrNotFound = errors.New("record not found")
