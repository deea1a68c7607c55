package catalog

import (
	"errors"
	"fmt"

	"github.com/praxisworks/tabula/schema"
)

// Error is the catalog's error type. NotFound carries schema.KindNotFound so
// the request adapter can map it to a 404-shaped envelope; everything else is
// a plain store failure that aborts the enclosing pipeline step.
type Error struct {
	Op   string
	Kind schema.ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// notFound builds a NotFound error for the given entity description.
func notFound(op, what string) *Error {
	return &Error{Op: op, Kind: schema.KindNotFound, Err: fmt.Errorf("%s not found", what)}
}

// IsNotFound reports whether err is a catalog NotFound.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == schema.KindNotFound
}
