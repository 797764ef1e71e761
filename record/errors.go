package record

import (
	"errors"
	"fmt"
)

var (
	// Schema errors, always fatal at the point of definition.
	ErrNoFields       = errors.New("no fields specified")
	ErrDuplicateField = errors.New("duplicate field name")
	ErrFieldNotFound  = errors.New("field not found")

	ErrNoHeader      = errors.New("stream has no header")
	ErrNotReiterable = errors.New("stream is not reiterable")

	ErrUnknownType = errors.New("unrecognized data type")
)

type (
	// RecordError wraps a failure local to a single record, carrying the
	// raw record (possibly partial) for diagnostics. These are the only
	// errors routed to an ErrorHandler.
	RecordError struct {
		Rec Record
		Err error
	}

	// ErrorHandler receives each record-local failure. When a handler is
	// bound, iteration continues with the next record. Without one, the
	// first failure propagates and terminates iteration.
	ErrorHandler func(err error, rec Record)
)

func (e *RecordError) Error() string {
	return fmt.Sprintf("bad record %v: %s", e.Rec, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
