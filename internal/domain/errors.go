// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidState indicates an operation that is not valid for the entity's
// current status, such as chatting with a session that is not ready.
var ErrInvalidState = errors.New("invalid state for operation")

// ErrPatchConflict indicates a structural patch referenced an epic or story
// that does not exist. The stored plan is left unchanged.
var ErrPatchConflict = errors.New("patch conflict")

// ErrValidation indicates invalid input. The wrapping error carries details.
var ErrValidation = errors.New("validation failed")

// ErrBackendTimeout indicates the inference backend exceeded the configured
// per-turn or per-session ceiling.
var ErrBackendTimeout = errors.New("inference backend timeout")
