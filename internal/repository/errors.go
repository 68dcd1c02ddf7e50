// Package repository defines the persistence contracts for users, refresh
// tokens and events, plus the MySQL implementation. The sentinel errors
// below are shared by every store implementation so services can tell
// failure scenarios apart without knowing which driver is in use.
package repository

import "errors"

// ErrNotFound is returned when the referenced row or document does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write would violate a uniqueness
// constraint, such as registering a username or email that is
// already taken. Handlers should translate this into an HTTP 409
// response.
var ErrConflict = errors.New("conflict")
