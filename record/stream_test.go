package record

import (
	"errors"
	"io"
	"testing"
)

func mustHeader(t *testing.T, fields ...Field) *Header {
	t.Helper()
	h, err := NewHeader(fields...)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func drainStream(t *testing.T, s Stream) []Record {
	t.Helper()
	it, err := s.Records()
	if err != nil {
		t.Fatal(err)
	}
	recs, err := Drain(it)
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestMemoryStreamDefaults(t *testing.T) {
	ms := NewMemoryStream("", nil, nil)
	if ms.Name() != UnknownName {
		t.Fatal("expected placeholder name, got", ms.Name())
	}
	if ms.Header() != nil {
		t.Fatal("expected nil header")
	}
	if !ms.Reiterable() {
		t.Fatal("memory streams are reiterable")
	}
}

func TestMemoryStreamReiteration(t *testing.T) {
	h := mustHeader(t, Field{Name: "id", Type: TypeInt})
	ms := NewMemoryStream("ids", h, []Record{{int64(1)}, {int64(2)}})

	for pass := 0; pass < 2; pass++ {
		recs := drainStream(t, ms)
		if len(recs) != 2 || recs[0][0] != int64(1) || recs[1][0] != int64(2) {
			t.Fatalf("pass %d: wrong records %v", pass, recs)
		}
	}
}

type failingIterator struct {
	recs []Record
	errs []error
	pos  int
}

func (f *failingIterator) Next() (Record, error) {
	if f.pos >= len(f.recs) {
		return nil, io.EOF
	}
	rec, err := f.recs[f.pos], f.errs[f.pos]
	f.pos++
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (f *failingIterator) Close() error { return nil }

func TestGuardRoutesRecordErrors(t *testing.T) {
	bad := &RecordError{Rec: Record{"oops"}, Err: errors.New("parse failed")}
	it := &failingIterator{
		recs: []Record{{int64(1)}, nil, {int64(3)}},
		errs: []error{nil, bad, nil},
	}

	var handled []Record
	guarded := Guard(it, func(err error, rec Record) {
		handled = append(handled, rec)
	})

	recs, err := Drain(guarded)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0][0] != int64(1) || recs[1][0] != int64(3) {
		t.Fatal("wrong surviving records:", recs)
	}
	if len(handled) != 1 || handled[0][0] != "oops" {
		t.Fatal("handler did not receive the failed record:", handled)
	}
}

func TestGuardWithoutHandlerPropagates(t *testing.T) {
	bad := &RecordError{Rec: Record{"oops"}, Err: errors.New("parse failed")}
	it := &failingIterator{
		recs: []Record{{int64(1)}, nil},
		errs: []error{nil, bad},
	}

	guarded := Guard(it, nil)
	if _, err := guarded.Next(); err != nil {
		t.Fatal(err)
	}
	_, err := guarded.Next()
	var recErr *RecordError
	if !errors.As(err, &recErr) {
		t.Fatal("expected the record error to propagate, got", err)
	}
}

func TestGuardFatalErrorsPropagateToHandler(t *testing.T) {
	fatal := errors.New("disk on fire")
	it := &failingIterator{
		recs: []Record{{int64(1)}, nil},
		errs: []error{nil, fatal},
	}

	called := false
	guarded := Guard(it, func(err error, rec Record) { called = true })
	if _, err := guarded.Next(); err != nil {
		t.Fatal(err)
	}
	if _, err := guarded.Next(); !errors.Is(err, fatal) {
		t.Fatal("expected fatal error, got", err)
	}
	if called {
		t.Fatal("non-record errors must not be swallowed by the handler")
	}
}

func TestSelectView(t *testing.T) {
	h := mustHeader(t, Field{Name: "id", Type: TypeInt})
	ms := NewMemoryStream("ids", h, []Record{{int64(1)}, {int64(2)}, {int64(3)}})

	odd := Select(ms, func(rec Record) bool { return rec[0].(int64)%2 == 1 })
	recs := drainStream(t, odd)
	if len(recs) != 2 || recs[0][0] != int64(1) || recs[1][0] != int64(3) {
		t.Fatal("wrong selection:", recs)
	}
}

func TestOrderByViewIsLazyAndStable(t *testing.T) {
	h := mustHeader(t,
		Field{Name: "id", Type: TypeInt},
		Field{Name: "seq", Type: TypeInt},
	)
	ms := NewMemoryStream("events", h, []Record{
		{int64(2), int64(0)},
		{int64(1), int64(1)},
		{int64(2), int64(2)},
		{nil, int64(3)},
		{int64(1), int64(4)},
	})

	sorted, err := OrderBy(ms, Asc(Col("id")))
	if err != nil {
		t.Fatal(err)
	}
	recs := drainStream(t, sorted)

	// nil key first, then ascending; equal keys keep input order
	wantSeq := []int64{3, 1, 4, 0, 2}
	if len(recs) != len(wantSeq) {
		t.Fatal("wrong record count:", len(recs))
	}
	for i, want := range wantSeq {
		if recs[i][1] != want {
			t.Fatalf("position %d: got seq %v, want %d", i, recs[i][1], want)
		}
	}
}

func TestOrderByDescending(t *testing.T) {
	h := mustHeader(t, Field{Name: "id", Type: TypeInt})
	ms := NewMemoryStream("ids", h, []Record{{int64(1)}, {int64(3)}, {int64(2)}})

	sorted, err := OrderBy(ms, Desc(Col("id")))
	if err != nil {
		t.Fatal(err)
	}
	recs := drainStream(t, sorted)
	if recs[0][0] != int64(3) || recs[1][0] != int64(2) || recs[2][0] != int64(1) {
		t.Fatal("wrong descending order:", recs)
	}
}

func TestProjectRequiresHeader(t *testing.T) {
	ms := NewMemoryStream("anon", nil, nil)
	if _, err := Project(ms, ColAt(0)); !errors.Is(err, ErrNoHeader) {
		t.Fatal("expected ErrNoHeader, got", err)
	}
	if _, err := OrderBy(ms, Asc(ColAt(0))); !errors.Is(err, ErrNoHeader) {
		t.Fatal("expected ErrNoHeader, got", err)
	}
}
