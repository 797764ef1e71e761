package relational

import (
	"errors"
	"fmt"

	"github.com/danthegoodman1/recollect/record"
)

var (
	ErrNotRelation       = errors.New("not a relation")
	ErrNoName            = errors.New("relation has no name")
	ErrNoHeader          = errors.New("relation has no header")
	ErrKeyNotFound       = errors.New("key column not found in relation")
	ErrDuplicateRelation = errors.New("duplicate relation name")
)

type (
	// Relations is an insertion-ordered, name-unique collection of
	// record streams: the set of sources participating in a
	// merge-collect.
	Relations struct {
		names   []string
		streams []record.Stream
		idxs    map[string]int
	}
)

func NewRelations(streams ...record.Stream) (*Relations, error) {
	r := &Relations{idxs: make(map[string]int)}
	for _, s := range streams {
		if err := r.Add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a stream. The stream must carry a real name (not the unnamed
// placeholder) that no prior member uses. A missing header is accepted
// here; merge-collect validation rejects it later.
func (r *Relations) Add(s record.Stream) error {
	if s == nil {
		return ErrNotRelation
	}
	name := s.Name()
	if name == "" || name == record.UnknownName {
		return fmt.Errorf("%w: %s", ErrNoName, s.Provenance())
	}
	if _, exists := r.idxs[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateRelation, name)
	}
	r.idxs[name] = len(r.names)
	r.names = append(r.names, name)
	r.streams = append(r.streams, s)
	return nil
}

func (r *Relations) Len() int {
	return len(r.names)
}

func (r *Relations) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

func (r *Relations) NameAt(index int) string {
	return r.names[index]
}

func (r *Relations) At(index int) record.Stream {
	return r.streams[index]
}

func (r *Relations) Of(name string) (record.Stream, bool) {
	idx, ok := r.idxs[name]
	if !ok {
		return nil, false
	}
	return r.streams[idx], true
}

func (r *Relations) Has(name string) bool {
	_, ok := r.idxs[name]
	return ok
}

func (r *Relations) Streams() []record.Stream {
	streams := make([]record.Stream, len(r.streams))
	copy(streams, r.streams)
	return streams
}
