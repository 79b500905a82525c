package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies a failure by how the capture pipeline reacts to it.
type Kind string

const (
	KindDevice       Kind = "device"
	KindLocation     Kind = "location"
	KindPersistence  Kind = "persistence"
	KindNotification Kind = "notification"
	KindNotFound     Kind = "not_found"
	KindInvalid      Kind = "invalid_argument"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error is a classified failure raised by one operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Device(op string, err error) error       { return newErr(KindDevice, op, err) }
func Location(op string, err error) error     { return newErr(KindLocation, op, err) }
func Persistence(op string, err error) error  { return newErr(KindPersistence, op, err) }
func Notification(op string, err error) error { return newErr(KindNotification, op, err) }
func NotFound(op string, err error) error     { return newErr(KindNotFound, op, err) }
func Conflict(op string, err error) error     { return newErr(KindConflict, op, err) }

// Invalid reports a caller mistake.
func Invalid(op, msg string) error { return newErr(KindInvalid, op, errors.New(msg)) }

// KindOf returns the kind of the outermost classified error in the chain,
// or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalid:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDevice:
		return http.StatusFailedDependency
	case KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
