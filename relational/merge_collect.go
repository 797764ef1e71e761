package relational

import (
	"fmt"
	"io"

	"github.com/danthegoodman1/recollect/record"
)

type (
	// MergeCollect collects all the records from multiple relations
	// together by key, yielding one CollectedRecords per distinct key in
	// strictly increasing key order.
	//
	// Each relation is sorted by its key column and partitioned into
	// consecutive runs of equal key, then the runs are merged k-way by
	// minimum key. This is similar to a natural join by key except that
	// the records come back as a collection instead of the concatenated
	// tuples of their cross product, which is wastefully large compared
	// to having the records themselves. Memory is bounded by the largest
	// single-key run across relations, not by table size.
	//
	// Construction validates every relation (name, header, key column)
	// and plans the sorted iteration; no source I/O happens until the
	// first call to Next. Each relation's sorted stream is iterated
	// exactly once, so non-reiterable sources are safe.
	MergeCollect struct {
		rels    *Relations
		sorted  []record.Stream
		keyIdxs []int
		cursors []*groupCursor
		primed  bool
		done    bool
	}

	// groupCursor partitions one sorted iteration into consecutive runs
	// of equal non-null key. It exposes the current run explicitly so
	// the k-way merge can hold and compare N cursors as plain values.
	groupCursor struct {
		it         record.Iterator
		keyIdx     int
		key        any
		run        []record.Record
		pending    record.Record
		hasPending bool
	}
)

// NewMergeCollect merge-collects the given relations keyed on each
// relation's first column unless a spec declares its own key.
func NewMergeCollect(specs ...RelationSpec) (*MergeCollect, error) {
	return NewMergeCollectOn(record.ColAt(0), specs...)
}

// NewMergeCollectOn is NewMergeCollect with an explicit default key
// column, applied to every spec that does not declare its own.
func NewMergeCollectOn(defaultKey record.Column, specs ...RelationSpec) (*MergeCollect, error) {
	mc := &MergeCollect{
		rels: &Relations{idxs: make(map[string]int)},
	}
	for _, spec := range specs {
		stream, key := spec.normalize(defaultKey)
		if stream == nil {
			return nil, ErrNotRelation
		}
		header := stream.Header()
		if header == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoHeader, stream.Name())
		}
		keyIdx, err := key.Resolve(header)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %s", stream.Name(), ErrKeyNotFound, key)
		}
		if err := mc.rels.Add(stream); err != nil {
			return nil, err
		}
		// Sort ascending by key. The sorted view is lazy; the key
		// column keeps its position, so keyIdx is valid there too.
		sorted, err := record.OrderBy(stream, record.Asc(key))
		if err != nil {
			return nil, fmt.Errorf("error in record.OrderBy for %s: %w", stream.Name(), err)
		}
		mc.sorted = append(mc.sorted, sorted)
		mc.keyIdxs = append(mc.keyIdxs, keyIdx)
	}
	return mc, nil
}

// Relations is the registered relation set, in registration order.
func (mc *MergeCollect) Relations() *Relations {
	return mc.rels
}

// Next yields the group for the smallest key not yet emitted, or io.EOF
// when every relation is exhausted. Keys are strictly increasing across
// calls. Records whose key is null never form or join a group.
func (mc *MergeCollect) Next() (*CollectedRecords, error) {
	if mc.done {
		return nil, io.EOF
	}
	if !mc.primed {
		if err := mc.prime(); err != nil {
			mc.done = true
			return nil, err
		}
	}

	// Find the minimum key among relations that still have a group.
	// Multiple relations may share it.
	var minKey any
	var minIdxs []int
	for i, cur := range mc.cursors {
		if !cur.live() {
			continue
		}
		if minIdxs == nil {
			minKey = cur.key
			minIdxs = []int{i}
			continue
		}
		switch c := record.Compare(cur.key, minKey); {
		case c < 0:
			minKey = cur.key
			minIdxs = minIdxs[:0]
			minIdxs = append(minIdxs, i)
		case c == 0:
			minIdxs = append(minIdxs, i)
		}
	}
	if minIdxs == nil {
		mc.done = true
		mc.Close()
		return nil, io.EOF
	}

	out := newCollectedRecords(minKey, mc.rels)
	for _, i := range minIdxs {
		out.set(i, mc.cursors[i].run)
		if err := mc.cursors[i].advance(); err != nil {
			mc.done = true
			mc.Close()
			return nil, fmt.Errorf("error advancing %s: %w", mc.rels.NameAt(i), err)
		}
	}
	return out, nil
}

// Collect drains the remaining groups into a slice.
func (mc *MergeCollect) Collect() ([]*CollectedRecords, error) {
	var out []*CollectedRecords
	for {
		group, err := mc.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, group)
	}
}

// Close releases every open source iterator. A consumer that stops early
// should call it; a drained merge closes itself.
func (mc *MergeCollect) Close() error {
	var firstErr error
	for _, cur := range mc.cursors {
		if cur == nil || cur.it == nil {
			continue
		}
		if err := cur.it.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// prime opens each sorted stream and positions every cursor on its first
// non-null-keyed group.
func (mc *MergeCollect) prime() error {
	mc.primed = true
	for i, sorted := range mc.sorted {
		it, err := sorted.Records()
		if err != nil {
			mc.Close()
			return fmt.Errorf("error opening %s: %w", mc.rels.NameAt(i), err)
		}
		cur := &groupCursor{it: it, keyIdx: mc.keyIdxs[i]}
		mc.cursors = append(mc.cursors, cur)
		if err := cur.advance(); err != nil {
			mc.Close()
			return fmt.Errorf("error reading %s: %w", mc.rels.NameAt(i), err)
		}
	}
	return nil
}

// live reports whether the cursor currently holds a group.
func (c *groupCursor) live() bool {
	return c.run != nil
}

// advance moves to the next maximal run of records sharing one non-null
// key. Records with a null key are silently discarded wherever they
// appear. On exhaustion the run is left nil.
func (c *groupCursor) advance() error {
	c.key = nil
	c.run = nil
	for {
		rec, err := c.read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		k := keyOf(rec, c.keyIdx)
		if k == nil {
			continue
		}
		c.key = k
		c.run = []record.Record{rec}
		break
	}
	for {
		rec, err := c.read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		k := keyOf(rec, c.keyIdx)
		if k == nil {
			continue
		}
		if record.Compare(k, c.key) == 0 {
			c.run = append(c.run, rec)
			continue
		}
		// First record of the next run; hold it for the next advance
		c.pending = rec
		c.hasPending = true
		return nil
	}
}

func (c *groupCursor) read() (record.Record, error) {
	if c.hasPending {
		c.hasPending = false
		return c.pending, nil
	}
	return c.it.Next()
}

func keyOf(rec record.Record, idx int) any {
	if idx >= len(rec) {
		return nil
	}
	return rec[idx]
}
