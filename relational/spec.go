package relational

import (
	"github.com/danthegoodman1/recollect/record"
)

type (
	// RelationSpec is a closed set of accepted relation shapes: a bare
	// stream, a stream with an explicit key column, or raw
	// (name, header, records) parts. Every shape normalizes to a
	// (stream, key) pair during merge-collect validation; a spec without
	// an explicit key uses the engine's default key column.
	RelationSpec struct {
		stream record.Stream
		key    record.Column
		hasKey bool
	}
)

// Rel specifies a relation keyed on the engine's default key column.
func Rel(s record.Stream) RelationSpec {
	return RelationSpec{stream: s}
}

// RelOn specifies a relation with its own key column.
func RelOn(s record.Stream, key record.Column) RelationSpec {
	return RelationSpec{stream: s, key: key, hasKey: true}
}

// RelFrom specifies an in-memory relation from raw parts, keyed on the
// engine's default key column.
func RelFrom(name string, header *record.Header, recs []record.Record) RelationSpec {
	return Rel(record.NewMemoryStream(name, header, recs))
}

// RelFromOn is RelFrom with an explicit key column.
func RelFromOn(name string, header *record.Header, recs []record.Record, key record.Column) RelationSpec {
	return RelOn(record.NewMemoryStream(name, header, recs), key)
}

// normalize resolves the spec against the engine default key.
func (rs RelationSpec) normalize(defaultKey record.Column) (record.Stream, record.Column) {
	if rs.hasKey {
		return rs.stream, rs.key
	}
	return rs.stream, defaultKey
}
