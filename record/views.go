package record

import (
	"fmt"
	"sort"
)

// Project returns a stream restricted to the given columns in the given
// order. Sources implementing Projector provide their own realization
// (e.g. pushing the column list into a SELECT); everything else gets a
// lazy remapping view. The stream must have a header.
func Project(s Stream, cols ...Column) (Stream, error) {
	if p, ok := s.(Projector); ok {
		return p.Project(cols...)
	}
	h := s.Header()
	if h == nil {
		return nil, fmt.Errorf("%s: cannot project: %w", s.Name(), ErrNoHeader)
	}
	idxs := make([]int, len(cols))
	for i, col := range cols {
		idx, err := col.Resolve(h)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
		idxs[i] = idx
	}
	header, err := h.Project(cols...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}
	return &projectedStream{source: s, header: header, idxs: idxs}, nil
}

// Select returns a stream of the records matching pred. Sources
// implementing Selector provide their own realization.
func Select(s Stream, pred Predicate) Stream {
	if sel, ok := s.(Selector); ok {
		return sel.Select(pred)
	}
	return &selectedStream{source: s, pred: pred}
}

// OrderBy returns a stream whose iteration is sorted by the given
// orderings. Sources implementing Orderer provide their own realization;
// the generic view defers to iteration time, then materializes the source
// and stable-sorts it, so it holds the whole relation in memory. The
// stream must have a header.
func OrderBy(s Stream, ords ...Ordering) (Stream, error) {
	if o, ok := s.(Orderer); ok {
		return o.OrderBy(ords...)
	}
	h := s.Header()
	if h == nil {
		return nil, fmt.Errorf("%s: cannot order: %w", s.Name(), ErrNoHeader)
	}
	idxs := make([]int, len(ords))
	for i, ord := range ords {
		idx, err := ord.Column.Resolve(h)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
		idxs[i] = idx
	}
	return &orderedStream{source: s, ords: ords, idxs: idxs}, nil
}

// Rename overrides a stream's name, leaving everything else in place.
// Native Project/Select/OrderBy realizations of the source still apply,
// and their results keep the new name.
func Rename(s Stream, name string) Stream {
	return &renamedStream{source: s, name: name}
}

type renamedStream struct {
	source Stream
	name   string
}

var _ Projector = (*renamedStream)(nil)
var _ Selector = (*renamedStream)(nil)
var _ Orderer = (*renamedStream)(nil)

func (rs *renamedStream) Name() string       { return rs.name }
func (rs *renamedStream) Header() *Header    { return rs.source.Header() }
func (rs *renamedStream) Provenance() string { return rs.source.Provenance() }
func (rs *renamedStream) Reiterable() bool   { return rs.source.Reiterable() }

func (rs *renamedStream) Records() (Iterator, error) {
	return rs.source.Records()
}

func (rs *renamedStream) Project(cols ...Column) (Stream, error) {
	s, err := Project(rs.source, cols...)
	if err != nil {
		return nil, err
	}
	return Rename(s, rs.name), nil
}

func (rs *renamedStream) Select(pred Predicate) Stream {
	return Rename(Select(rs.source, pred), rs.name)
}

func (rs *renamedStream) OrderBy(ords ...Ordering) (Stream, error) {
	s, err := OrderBy(rs.source, ords...)
	if err != nil {
		return nil, err
	}
	return Rename(s, rs.name), nil
}

type (
	projectedStream struct {
		source Stream
		header *Header
		idxs   []int
	}

	selectedStream struct {
		source Stream
		pred   Predicate
	}

	orderedStream struct {
		source Stream
		ords   []Ordering
		idxs   []int
	}

	projectedIterator struct {
		inner Iterator
		idxs  []int
	}

	selectedIterator struct {
		inner Iterator
		pred  Predicate
	}
)

func (ps *projectedStream) Name() string       { return ps.source.Name() }
func (ps *projectedStream) Header() *Header    { return ps.header }
func (ps *projectedStream) Provenance() string { return ps.source.Provenance() }
func (ps *projectedStream) Reiterable() bool   { return ps.source.Reiterable() }

func (ps *projectedStream) Records() (Iterator, error) {
	it, err := ps.source.Records()
	if err != nil {
		return nil, err
	}
	return &projectedIterator{inner: it, idxs: ps.idxs}, nil
}

func (it *projectedIterator) Next() (Record, error) {
	rec, err := it.inner.Next()
	if err != nil {
		return nil, err
	}
	out := make(Record, len(it.idxs))
	for i, idx := range it.idxs {
		// Short records leave missing positions nil
		if idx < len(rec) {
			out[i] = rec[idx]
		}
	}
	return out, nil
}

func (it *projectedIterator) Close() error { return it.inner.Close() }

func (ss *selectedStream) Name() string       { return ss.source.Name() }
func (ss *selectedStream) Header() *Header    { return ss.source.Header() }
func (ss *selectedStream) Provenance() string { return ss.source.Provenance() }
func (ss *selectedStream) Reiterable() bool   { return ss.source.Reiterable() }

func (ss *selectedStream) Records() (Iterator, error) {
	it, err := ss.source.Records()
	if err != nil {
		return nil, err
	}
	return &selectedIterator{inner: it, pred: ss.pred}, nil
}

func (it *selectedIterator) Next() (Record, error) {
	for {
		rec, err := it.inner.Next()
		if err != nil {
			return nil, err
		}
		if it.pred(rec) {
			return rec, nil
		}
	}
}

func (it *selectedIterator) Close() error { return it.inner.Close() }

func (os *orderedStream) Name() string       { return os.source.Name() }
func (os *orderedStream) Header() *Header    { return os.source.Header() }
func (os *orderedStream) Provenance() string { return os.source.Provenance() }
func (os *orderedStream) Reiterable() bool   { return os.source.Reiterable() }

func (os *orderedStream) Records() (Iterator, error) {
	it, err := os.source.Records()
	if err != nil {
		return nil, err
	}
	recs, err := Drain(it)
	if err != nil {
		return nil, fmt.Errorf("error draining %s for sort: %w", os.source.Name(), err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return os.less(recs[i], recs[j])
	})
	return &sliceIterator{recs: recs}, nil
}

func (os *orderedStream) less(a, b Record) bool {
	for k, idx := range os.idxs {
		var av, bv any
		if idx < len(a) {
			av = a[idx]
		}
		if idx < len(b) {
			bv = b[idx]
		}
		c := Compare(av, bv)
		if c == 0 {
			continue
		}
		if os.ords[k].Descending {
			return c > 0
		}
		return c < 0
	}
	return false
}
