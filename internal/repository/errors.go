package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrConflict indicates a write lost a concurrent-update race or would
// violate a uniqueness constraint. Callers may re-read and retry.
var ErrConflict = errors.New("repository: conflict")
