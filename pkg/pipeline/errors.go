package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures.
type Kind string

const (
	KindLockContention  Kind = "lock_contention"
	KindConfiguration   Kind = "configuration"
	KindProjectNotFound Kind = "project_not_found"
	KindSourceFetch     Kind = "source_fetch"
	KindIndexingTimeout Kind = "indexing_timeout"
	KindIndexingFailed  Kind = "indexing_failed"
	KindAnnotationBatch Kind = "annotation_batch"
	KindPersistence     Kind = "persistence"
	KindUnexpected      Kind = "unexpected"
)

// Sentinels for errors.Is. A sentinel matches any *Error of the same kind.
var (
	ErrLockContention  = &Error{Kind: KindLockContention}
	ErrConfiguration   = &Error{Kind: KindConfiguration}
	ErrProjectNotFound = &Error{Kind: KindProjectNotFound}
	ErrSourceFetch     = &Error{Kind: KindSourceFetch}
	ErrIndexingTimeout = &Error{Kind: KindIndexingTimeout}
	ErrIndexingFailed  = &Error{Kind: KindIndexingFailed}
	ErrAnnotationBatch = &Error{Kind: KindAnnotationBatch}
	ErrPersistence     = &Error{Kind: KindPersistence}
	ErrUnexpected      = &Error{Kind: KindUnexpected}
)

// ErrSnapshotNotFound is returned when a project has no snapshot yet.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Error is a classified pipeline failure raised by a stage.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Stage == "" && e.Err == nil:
		return string(e.Kind)
	case e.Stage == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Stage != "" || t.Err != nil {
		return false
	}

	return t.Kind == e.Kind
}

// Message returns the underlying cause without the stage and kind prefix.
func (e *Error) Message() string {
	if e.Err == nil {
		return string(e.Kind)
	}

	return e.Err.Error()
}

// classify turns any error into an *Error attributed to stage.
func classify(err error, stage string) *Error {
	var pe *Error
	if !errors.As(err, &pe) {
		pe = newError(KindUnexpected, err)
	}

	if pe.Stage == "" {
		attributed := *pe
		attributed.Stage = stage

		return &attributed
	}

	return pe
}
