package record

import (
	"errors"
	"fmt"
	"io"
)

type (
	// Record is an ordered tuple of values whose arity and per-position
	// types are expected to conform to an associated Header. Conformance
	// is advisory and never checked during iteration.
	Record []any

	// Iterator is a single pass over records. Next returns io.EOF when
	// the sequence is exhausted. Close releases any underlying resource
	// and is safe to call more than once.
	Iterator interface {
		Next() (Record, error)
		Close() error
	}

	// Stream is a named, lazily-produced sequence of records: the common
	// contract satisfied by every tabular source (file-backed,
	// database-backed, in-memory).
	//
	// Header may return nil, meaning the schema is unknown. Provenance
	// is an opaque description of where the records come from, for
	// diagnostics. A stream with Reiterable() == false may have Records
	// called only once; a second call returns ErrNotReiterable.
	Stream interface {
		Name() string
		Header() *Header
		Provenance() string
		Reiterable() bool
		// Records opens iteration using the stream's bound error
		// handler, if any.
		Records() (Iterator, error)
	}

	// Projector, Selector, and Orderer are optional upgrades a source
	// implements when it has a native realization (e.g. a SQL table
	// pushing ORDER BY down to the database). The package-level Project,
	// Select, and OrderBy functions prefer these over the generic views.
	Projector interface {
		Project(cols ...Column) (Stream, error)
	}

	Selector interface {
		Select(pred Predicate) Stream
	}

	Orderer interface {
		OrderBy(ords ...Ordering) (Stream, error)
	}

	// Predicate decides whether a record is kept by Select.
	Predicate func(rec Record) bool
)

// The placeholder name carried by streams that were never named.
const UnknownName = "<unknown>"

type (
	// MemoryStream is a reiterable Stream over records already held in
	// memory. It is the canonical Stream implementation and the one
	// tests build relations from.
	MemoryStream struct {
		name       string
		header     *Header
		recs       []Record
		provenance string
		eh         ErrorHandler
	}

	sliceIterator struct {
		recs []Record
		pos  int
	}

	guardedIterator struct {
		inner Iterator
		eh    ErrorHandler
	}
)

func NewMemoryStream(name string, header *Header, recs []Record) *MemoryStream {
	return &MemoryStream{
		name:       name,
		header:     header,
		recs:       recs,
		provenance: fmt.Sprintf("memory[%d records]", len(recs)),
	}
}

// WithErrorHandler returns a copy of the stream with eh bound as the
// handler used by Records.
func (ms *MemoryStream) WithErrorHandler(eh ErrorHandler) *MemoryStream {
	c := *ms
	c.eh = eh
	return &c
}

func (ms *MemoryStream) Name() string {
	if ms.name == "" {
		return UnknownName
	}
	return ms.name
}

func (ms *MemoryStream) Header() *Header {
	return ms.header
}

func (ms *MemoryStream) Provenance() string {
	return ms.provenance
}

func (ms *MemoryStream) Reiterable() bool {
	return true
}

func (ms *MemoryStream) Records() (Iterator, error) {
	return Guard(&sliceIterator{recs: ms.recs}, ms.eh), nil
}

func (it *sliceIterator) Next() (Record, error) {
	if it.pos >= len(it.recs) {
		return nil, io.EOF
	}
	rec := it.recs[it.pos]
	it.pos++
	return rec, nil
}

func (it *sliceIterator) Close() error {
	it.pos = len(it.recs)
	return nil
}

// Guard wraps an iterator with per-record error routing. Failures that are
// local to one record (RecordError) go to eh and iteration continues with
// the next record. Any other failure, or any failure when eh is nil,
// propagates and terminates iteration. A nil handler makes Guard a no-op.
func Guard(it Iterator, eh ErrorHandler) Iterator {
	if eh == nil {
		return it
	}
	return &guardedIterator{inner: it, eh: eh}
}

func (g *guardedIterator) Next() (Record, error) {
	for {
		rec, err := g.inner.Next()
		if err == nil || err == io.EOF {
			return rec, err
		}
		var recErr *RecordError
		if !errors.As(err, &recErr) {
			return nil, err
		}
		g.eh(recErr, recErr.Rec)
	}
}

func (g *guardedIterator) Close() error {
	return g.inner.Close()
}

// Drain reads the remaining records of it into a slice, closing it after.
func Drain(it Iterator) ([]Record, error) {
	defer it.Close()
	var recs []Record
	for {
		rec, err := it.Next()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}
