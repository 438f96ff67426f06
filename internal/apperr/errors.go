// Package apperr defines the error taxonomy shared by the API, the upload
// service, and the transcode worker. Handlers map these types to HTTP
// statuses in one place instead of matching on message strings.
package apperr

import "fmt"

// ValidationError reports malformed or unacceptable input: a missing file,
// an unknown uploader, an oversized payload, or an unparseable Range header.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError from a format string.
func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// QuotaExceededError reports an upload that would push the user past the
// cumulative duration budget of their plan.
type QuotaExceededError struct {
	UserID string
}

func (e *QuotaExceededError) Error() string {
	return "upload quota exceeded for current plan"
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// RangeNotSatisfiableError reports a syntactically valid Range header whose
// bounds fall outside the object.
type RangeNotSatisfiableError struct {
	Start int64
	Size  int64
}

func (e *RangeNotSatisfiableError) Error() string {
	return fmt.Sprintf("range start %d not satisfiable for size %d", e.Start, e.Size)
}

// ForbiddenError reports an operation on a track the caller does not own.
type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string { return e.Msg }

// StorageError wraps a failure in the object store gateway.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// QueueError wraps a failure enqueueing a background job.
type QueueError struct {
	Task string
	Err  error
}

func (e *QueueError) Error() string { return fmt.Sprintf("enqueue %s: %v", e.Task, e.Err) }
func (e *QueueError) Unwrap() error { return e.Err }

// PersistenceError wraps a database failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
