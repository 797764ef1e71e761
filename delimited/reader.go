package delimited

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/danthegoodman1/recollect/record"
)

type (
	// Reader is a record stream over a delimited text file. It is
	// reiterable: every Records call reopens the content. Projection is
	// pushed down so dropped columns are never parsed.
	Reader struct {
		path      string
		name      string
		format    Format
		header    *record.Header
		isMissing func(string) bool
		eh        record.ErrorHandler
		// new field index -> original field index, when projected
		invProjection []int
	}

	readerIterator struct {
		cr        *csv.Reader
		closer    func()
		header    *record.Header
		isMissing func(string) bool
		invProj   []int
		skipBlank bool
		closed    bool
	}
)

var _ record.Stream = (*Reader)(nil)
var _ record.Projector = (*Reader)(nil)

func (r *Reader) Name() string {
	if r.name == "" {
		return record.UnknownName
	}
	return r.name
}

func (r *Reader) Header() *record.Header {
	return r.header
}

func (r *Reader) Provenance() string {
	return r.path
}

func (r *Reader) Reiterable() bool {
	return true
}

// Project composes with any prior projection, so a projected reader still
// reads the file once and parses only the surviving columns.
func (r *Reader) Project(cols ...record.Column) (record.Stream, error) {
	newInv := make([]int, len(cols))
	for i, col := range cols {
		idx, err := col.Resolve(r.header)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Name(), err)
		}
		if r.invProjection != nil {
			idx = r.invProjection[idx]
		}
		newInv[i] = idx
	}
	header, err := r.header.Project(cols...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Name(), err)
	}
	c := *r
	c.header = header
	c.invProjection = newInv
	return &c, nil
}

func (r *Reader) Records() (record.Iterator, error) {
	content, closer, err := openContent(context.Background(), r.path)
	if err != nil {
		return nil, err
	}
	cr := r.format.NewReader(content)
	// Skip past the header row(s) before data starts
	for line := 1; line < r.format.dataStart(); line++ {
		if _, err := cr.Read(); err != nil && err != io.EOF {
			closer()
			return nil, fmt.Errorf("error skipping to data in %s: %w", r.path, err)
		}
	}
	it := &readerIterator{
		cr:        cr,
		closer:    closer,
		header:    r.header,
		isMissing: r.isMissing,
		invProj:   r.invProjection,
		skipBlank: r.format.SkipBlankLines,
	}
	return record.Guard(it, r.eh), nil
}

func (it *readerIterator) Next() (record.Record, error) {
	for {
		row, err := it.cr.Read()
		if err == io.EOF {
			it.Close()
			return nil, io.EOF
		}
		if err != nil {
			// Malformed CSV row: local, recoverable
			return nil, &record.RecordError{Rec: rawRecord(row), Err: err}
		}
		if it.skipBlank && blankRow(row) {
			continue
		}
		rec, err := it.parseRow(row)
		if err != nil {
			return nil, &record.RecordError{Rec: rawRecord(row), Err: err}
		}
		return rec, nil
	}
}

func (it *readerIterator) parseRow(row []string) (record.Record, error) {
	n := it.header.Len()
	rec := make(record.Record, n)
	for outIdx := 0; outIdx < n; outIdx++ {
		inIdx := outIdx
		if it.invProj != nil {
			inIdx = it.invProj[outIdx]
		}
		// Fields absent from a short row stay nil
		if inIdx >= len(row) {
			continue
		}
		text := row[inIdx]
		if it.isMissing != nil && it.isMissing(text) {
			continue
		}
		v, err := it.header.TypeAt(outIdx).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", it.header.NameAt(outIdx), err)
		}
		rec[outIdx] = v
	}
	return rec, nil
}

func (it *readerIterator) Close() error {
	if !it.closed {
		it.closed = true
		it.closer()
	}
	return nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func rawRecord(row []string) record.Record {
	rec := make(record.Record, len(row))
	for i, cell := range row {
		rec[i] = cell
	}
	return rec
}
