package tabledb

import (
	"context"
	"errors"

	"github.com/danthegoodman1/recollect/gologger"
	"github.com/danthegoodman1/recollect/record"
)

var (
	logger = gologger.NewLogger()

	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")
	ErrClosed        = errors.New("database closed")
)

type (
	// Database holds scratch tables for one collection run. Tables are
	// created from a header, bulk loaded, and then read back as record
	// streams with ORDER BY and column projection pushed down to the
	// engine.
	Database interface {
		// CreateTable creates an empty table shaped like header.
		CreateTable(ctx context.Context, name string, header *record.Header) (Table, error)

		// Table returns a handle to an existing table.
		Table(ctx context.Context, name string) (Table, error)

		DropTable(ctx context.Context, name string) error

		Shutdown(ctx context.Context) error
	}

	// Table is a database-backed record stream. Streams returned from
	// it are reiterable: every Records call issues a fresh query.
	Table interface {
		record.Stream

		// AddAll drains it into the table and reports rows written.
		// The iterator's records must conform to the table header.
		AddAll(ctx context.Context, it record.Iterator) (int64, error)

		CountRows(ctx context.Context) (int64, error)
	}
)
