// Package store implements the durable mask catalog, reason template
// table, and change log on top of an embedded bbolt database.
package store

import "errors"

// ErrNotFound is returned when a mask id is not present in the catalog.
var ErrNotFound = errors.New("store: mask not found")

// ErrAlreadyType is returned by SetType when new_type equals the mask's
// current type — a no-op the caller must reject rather than silently accept.
var ErrAlreadyType = errors.New("store: mask already has that type")

// ErrReasonNotFound is returned when a reason alias does not exist.
var ErrReasonNotFound = errors.New("store: reason alias not found")
