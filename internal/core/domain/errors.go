package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch without matching on messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage_error"
	default:
		return "unknown_error"
	}
}

// ErrSequenceConflict is returned by a repository when an allocated GRN number
// collided with a concurrent writer. The allocation may be retried.
var ErrSequenceConflict = errors.New("grn sequence conflict")

// ErrDuplicateGRN is returned by a repository when a record update would reuse
// a GRN number held by another record.
var ErrDuplicateGRN = errors.New("grn number already in use")

type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Detail
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func Conflict(op string, err error) error {
	return &Error{Kind: KindConflict, Op: op, Detail: err.Error(), Err: err}
}

// Storage tags a store failure. The detail carries the underlying message.
func Storage(op string, err error) error {
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStorage, Op: op, Detail: err.Error(), Err: err}
}

// KindOf reports the kind of err, or KindUnknown if err is not a *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// DetailOf returns the human-readable detail of err.
func DetailOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	return err.Error()
}
