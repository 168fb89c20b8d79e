package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports malformed or missing input. It is never retried.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// AuthorizationError reports a gatekeeper denial. It carries the actor and
// target identities so callers can log the denial for audit.
type AuthorizationError struct {
	ActorID  string
	TargetID string
	Op       string
}

func NewAuthorizationError(actorID, targetID, op string) error {
	return &AuthorizationError{ActorID: actorID, TargetID: targetID, Op: op}
}

func (err AuthorizationError) Error() string { return "permission denied" }

// ConflictError reports an operation that has already been performed
// (event already allocated, duplicate ledger entry). Callers treat it as
// "already done" rather than "bad input".
type ConflictError struct {
	Err error
}

func NewConflictError(err error) error { return &ConflictError{Err: err} }

func (err ConflictError) Error() string {
	if err.Err == nil {
		return "conflict"
	}
	return err.Err.Error()
}

// NotFoundError reports a missing certificate/house/event/user.
type NotFoundError struct {
	Err error
}

func NewNotFoundError(err error) error { return &NotFoundError{Err: err} }

func (err NotFoundError) Error() string {
	if err.Err == nil {
		return "not found"
	}
	return err.Err.Error()
}

// StorageError reports an underlying persistence failure. It is the only
// class eligible for transparent retry, and only for reads or for writes
// guarded by idempotency checks.
type StorageError struct {
	Err error
}

func NewStorageError(err error) error { return &StorageError{Err: err} }

func (err StorageError) Error() string {
	if err.Err == nil {
		return "storage failure"
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
