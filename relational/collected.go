package relational

import (
	"github.com/danthegoodman1/recollect/record"
)

type (
	// CollectedRecords is one output group of a merge-collect: for a
	// single key value, the records from every registered relation whose
	// key equals it. A relation with no records for the key contributes
	// an empty list, never an absence, so callers can always look up
	// every registered relation name. Consumers must treat a group as
	// read-only.
	CollectedRecords struct {
		key    any
		names  []string
		idxs   map[string]int
		groups [][]record.Record
	}
)

func newCollectedRecords(key any, rels *Relations) *CollectedRecords {
	cr := &CollectedRecords{
		key:    key,
		names:  rels.Names(),
		idxs:   make(map[string]int, rels.Len()),
		groups: make([][]record.Record, rels.Len()),
	}
	for i, name := range cr.names {
		cr.idxs[name] = i
		cr.groups[i] = []record.Record{}
	}
	return cr
}

// set is the engine's population step, performed before the group is
// yielded.
func (cr *CollectedRecords) set(index int, recs []record.Record) {
	if recs == nil {
		recs = []record.Record{}
	}
	cr.groups[index] = recs
}

// GroupKey is the value of the shared join column for this group.
func (cr *CollectedRecords) GroupKey() any {
	return cr.key
}

func (cr *CollectedRecords) Len() int {
	return len(cr.names)
}

func (cr *CollectedRecords) Names() []string {
	names := make([]string, len(cr.names))
	copy(names, cr.names)
	return names
}

// Records returns the records collected from the named relation, or nil
// if the name was never registered.
func (cr *CollectedRecords) Records(name string) []record.Record {
	idx, ok := cr.idxs[name]
	if !ok {
		return nil
	}
	return cr.groups[idx]
}

func (cr *CollectedRecords) RecordsAt(index int) []record.Record {
	return cr.groups[index]
}

// Total is the number of records in the group across all relations.
func (cr *CollectedRecords) Total() int {
	n := 0
	for _, g := range cr.groups {
		n += len(g)
	}
	return n
}
