package tabledb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danthegoodman1/recollect/record"
)

func testHeader(t *testing.T) *record.Header {
	t.Helper()
	h, err := record.HeaderOf(
		[]string{"patient_id", "age", "active", "seen"},
		[]record.Type{record.TypeInt, record.TypeFloat, record.TypeBool, record.TypeDate},
	)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func testRecords() []record.Record {
	day := func(d int) time.Time {
		return time.Date(2015, time.March, d, 0, 0, 0, 0, time.UTC)
	}
	return []record.Record{
		{int64(3), 61.5, true, day(2)},
		{int64(1), 48.0, false, day(9)},
		{int64(2), nil, true, day(4)},
	}
}

func openLoaded(t *testing.T) (*SQLiteDatabase, Table) {
	t.Helper()
	db, err := NewSQLiteDatabase("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Shutdown(context.Background()) })

	tbl, err := db.CreateTable(context.Background(), "patients", testHeader(t))
	if err != nil {
		t.Fatal(err)
	}
	ms := record.NewMemoryStream("patients", nil, testRecords())
	it, err := ms.Records()
	if err != nil {
		t.Fatal(err)
	}
	n, err := tbl.AddAll(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatal("wrong rows written:", n)
	}
	return db, tbl
}

func TestSQLiteRoundTrip(t *testing.T) {
	_, tbl := openLoaded(t)

	count, err := tbl.CountRows(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatal("wrong count:", count)
	}

	it, err := tbl.Records()
	if err != nil {
		t.Fatal(err)
	}
	recs, err := record.Drain(it)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatal("wrong record count:", len(recs))
	}
	byID := map[int64]record.Record{}
	for _, rec := range recs {
		byID[rec[0].(int64)] = rec
	}
	if byID[3][1] != 61.5 || byID[3][2] != true {
		t.Fatal("values did not round-trip:", byID[3])
	}
	if byID[2][1] != nil {
		t.Fatal("null did not round-trip:", byID[2])
	}
	seen, ok := byID[1][3].(time.Time)
	if !ok || !seen.Equal(time.Date(2015, time.March, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("date did not round-trip:", byID[1][3])
	}

	// Streams over tables are reiterable
	it, err = tbl.Records()
	if err != nil {
		t.Fatal(err)
	}
	recs, err = record.Drain(it)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatal("reiteration failed")
	}
}

func TestSQLiteOrderByPushdown(t *testing.T) {
	_, tbl := openLoaded(t)

	ordered, err := record.OrderBy(tbl, record.Asc(record.Col("patient_id")))
	if err != nil {
		t.Fatal(err)
	}
	// The table's own pushdown serves the view
	if _, ok := ordered.(*sqliteTable); !ok {
		t.Fatalf("expected native ordering, got %T", ordered)
	}
	it, err := ordered.Records()
	if err != nil {
		t.Fatal(err)
	}
	recs, err := record.Drain(it)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, rec := range recs {
		ids = append(ids, rec[0].(int64))
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatal("wrong order:", ids)
	}
}

func TestSQLiteProjectPushdown(t *testing.T) {
	_, tbl := openLoaded(t)

	proj, err := record.Project(tbl, record.Col("age"), record.Col("patient_id"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := proj.(*sqliteTable); !ok {
		t.Fatalf("expected native projection, got %T", proj)
	}
	if proj.Header().NameAt(0) != "age" || proj.Header().NameAt(1) != "patient_id" {
		t.Fatal("projected header wrong:", proj.Header())
	}

	ordered, err := record.OrderBy(proj, record.Asc(record.Col("patient_id")))
	if err != nil {
		t.Fatal(err)
	}
	it, err := ordered.Records()
	if err != nil {
		t.Fatal(err)
	}
	recs, err := record.Drain(it)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 || len(recs[0]) != 2 {
		t.Fatal("wrong projected shape:", recs)
	}
	if recs[0][0] != 48.0 || recs[0][1] != int64(1) {
		t.Fatal("wrong projected record:", recs[0])
	}

	if _, err := record.Project(tbl, record.Col("nope")); !errors.Is(err, record.ErrFieldNotFound) {
		t.Fatal("expected ErrFieldNotFound, got", err)
	}
}

func TestSQLiteConcurrentCursors(t *testing.T) {
	db, patients := openLoaded(t)

	visits, err := db.CreateTable(context.Background(), "visits", testHeader(t))
	if err != nil {
		t.Fatal(err)
	}
	ms := record.NewMemoryStream("visits", nil, testRecords())
	it, err := ms.Records()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := visits.AddAll(context.Background(), it); err != nil {
		t.Fatal(err)
	}

	// A k-way merge holds cursors on every table at once, so two open
	// iterators must be able to interleave reads
	done := make(chan error, 1)
	go func() {
		a, err := patients.Records()
		if err != nil {
			done <- err
			return
		}
		defer a.Close()
		b, err := visits.Records()
		if err != nil {
			done <- err
			return
		}
		defer b.Close()
		for i := 0; i < 3; i++ {
			if _, err := a.Next(); err != nil {
				done <- err
				return
			}
			if _, err := b.Next(); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("interleaved reads blocked, cursors are serialized")
	}
}

func TestSQLiteTableLookup(t *testing.T) {
	db, _ := openLoaded(t)

	tbl, err := db.Table(context.Background(), "patients")
	if err != nil {
		t.Fatal(err)
	}
	h := tbl.Header()
	if h == nil || h.Len() != 4 {
		t.Fatal("recovered header wrong:", h)
	}
	if h.TypeAt(0) != record.TypeInt || h.TypeAt(2) != record.TypeBool || h.TypeAt(3) != record.TypeDate {
		t.Fatal("recovered types wrong:", h)
	}

	if _, err := db.Table(context.Background(), "nope"); !errors.Is(err, ErrTableNotFound) {
		t.Fatal("expected ErrTableNotFound, got", err)
	}
}

func TestSQLiteCreateAndDrop(t *testing.T) {
	db, _ := openLoaded(t)

	if _, err := db.CreateTable(context.Background(), "patients", testHeader(t)); !errors.Is(err, ErrTableExists) {
		t.Fatal("expected ErrTableExists, got", err)
	}
	if err := db.DropTable(context.Background(), "patients"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Table(context.Background(), "patients"); !errors.Is(err, ErrTableNotFound) {
		t.Fatal("expected ErrTableNotFound after drop, got", err)
	}
	if _, err := db.CreateTable(context.Background(), "patients", testHeader(t)); err != nil {
		t.Fatal("recreate after drop failed:", err)
	}
}

func TestSQLiteShutdownStopsUse(t *testing.T) {
	db, tbl := openLoaded(t)
	if err := db.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.CountRows(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatal("expected ErrClosed, got", err)
	}
}
