package table

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a table failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindQuota
	KindNotFound
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Errors
var (
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
	ErrFatal         = errors.New("fatal table error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindQuota:
		return ErrQuotaExceeded
	case KindNotFound:
		return ErrNotFound
	case KindTransient:
		return ErrTransient
	case KindFatal:
		return ErrFatal
	default:
		return nil
	}
}

// Error is a classified failure of a table operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError wraps err with a kind and the operation that produced it.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf classifies err. Deadline errors not otherwise classified are transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}

	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}
	return KindUnknown
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return KindOf(err) == KindFatal
}
