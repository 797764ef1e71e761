package tabledb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/danthegoodman1/recollect/record"
	"github.com/danthegoodman1/recollect/utils"
	_ "modernc.org/sqlite"
)

const insertBatchRows = 500

type (
	// SQLiteDatabase is the default engine: a file (or in-memory)
	// scratch database with no external service to stand up.
	SQLiteDatabase struct {
		db   *sql.DB
		path string
		keep *sql.Conn

		mu     sync.Mutex
		closed bool
	}

	sqliteTable struct {
		parent *SQLiteDatabase
		name   string
		header *record.Header

		// projection onto table columns, nil when unprojected
		cols []record.Column
		ords []record.Ordering
	}

	sqliteRowsIterator struct {
		rows   *sql.Rows
		header *record.Header
		closed bool
	}
)

var _ Database = (*SQLiteDatabase)(nil)
var _ Table = (*sqliteTable)(nil)
var _ record.Projector = (*sqliteTable)(nil)
var _ record.Orderer = (*sqliteTable)(nil)

// NewSQLiteDatabase opens (creating if needed) a scratch database at
// path. An empty path opens an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	dsn := path
	if dsn == "" {
		// A shared-cache named memory db lets every pooled conn see the
		// same tables, so reads from several tables can hold open
		// cursors at once. The name keeps separate instances separate.
		dsn = fmt.Sprintf("file:mem_%s?mode=memory&cache=shared", utils.GenRandomShortID())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error in sql.Open: %w", err)
	}
	d := &SQLiteDatabase{db: db, path: dsn}
	if path == "" {
		// The memory db is destroyed when its last conn closes, so pin
		// one for the database's lifetime
		keep, err := db.Conn(context.Background())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("error in db.Conn: %w", err)
		}
		d.keep = keep
	}
	return d, nil
}

func (d *SQLiteDatabase) CreateTable(ctx context.Context, name string, header *record.Header) (Table, error) {
	if header == nil {
		return nil, record.ErrNoHeader
	}
	if err := d.live(); err != nil {
		return nil, err
	}
	var cols []string
	for _, f := range header.Fields() {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name), sqliteColumnType(f.Type)))
	}
	q := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", "))
	logger.Debug().Str("table", name).Msg("creating scratch table")
	if _, err := d.db.ExecContext(ctx, q); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
		}
		return nil, fmt.Errorf("error creating table %s: %w", name, err)
	}
	return &sqliteTable{parent: d, name: name, header: header}, nil
}

func (d *SQLiteDatabase) Table(ctx context.Context, name string) (Table, error) {
	if err := d.live(); err != nil {
		return nil, err
	}
	header, err := d.tableHeader(ctx, name)
	if err != nil {
		return nil, err
	}
	return &sqliteTable{parent: d, name: name, header: header}, nil
}

func (d *SQLiteDatabase) DropTable(ctx context.Context, name string) error {
	if err := d.live(); err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, "DROP TABLE "+quoteIdent(name)); err != nil {
		return fmt.Errorf("error dropping table %s: %w", name, err)
	}
	return nil
}

func (d *SQLiteDatabase) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.keep != nil {
		d.keep.Close()
	}
	return d.db.Close()
}

func (d *SQLiteDatabase) live() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

// tableHeader rebuilds a header from the table's declared column types.
func (d *SQLiteDatabase) tableHeader(ctx context.Context, name string) (*record.Header, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?)", name)
	if err != nil {
		return nil, fmt.Errorf("error reading table info for %s: %w", name, err)
	}
	defer rows.Close()
	var fields []record.Field
	for rows.Next() {
		var colName, colType string
		if err := rows.Scan(&colName, &colType); err != nil {
			return nil, fmt.Errorf("error in rows.Scan: %w", err)
		}
		fields = append(fields, record.Field{Name: colName, Type: typeFromSQLiteColumn(colType)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error in rows.Err: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return record.NewHeader(fields...)
}

func sqliteColumnType(t record.Type) string {
	switch t {
	case record.TypeBool:
		return "BOOLEAN"
	case record.TypeInt:
		return "INTEGER"
	case record.TypeFloat:
		return "REAL"
	case record.TypeDate:
		return "TEXT_DATE"
	case record.TypeTime:
		return "TEXT_TIME"
	case record.TypeDateTime:
		return "TEXT_DATETIME"
	case record.TypeString:
		return "TEXT"
	default:
		return "TEXT_ANY"
	}
}

// SQLite keeps whatever column type name it was given, which lets the
// temporal tags round-trip through pragma_table_info.
func typeFromSQLiteColumn(colType string) record.Type {
	switch strings.ToUpper(colType) {
	case "BOOLEAN":
		return record.TypeBool
	case "INTEGER":
		return record.TypeInt
	case "REAL":
		return record.TypeFloat
	case "TEXT_DATE":
		return record.TypeDate
	case "TEXT_TIME":
		return record.TypeTime
	case "TEXT_DATETIME":
		return record.TypeDateTime
	case "TEXT":
		return record.TypeString
	default:
		return record.TypeAny
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (t *sqliteTable) Name() string {
	return t.name
}

func (t *sqliteTable) Header() *record.Header {
	h, err := t.viewHeader()
	if err != nil {
		return nil
	}
	return h
}

func (t *sqliteTable) Provenance() string {
	return fmt.Sprintf("sqlite:%s#%s", t.parent.path, t.name)
}

func (t *sqliteTable) Reiterable() bool {
	return true
}

func (t *sqliteTable) viewHeader() (*record.Header, error) {
	if t.cols == nil {
		return t.header, nil
	}
	return t.header.Project(t.cols...)
}

func (t *sqliteTable) Project(cols ...record.Column) (record.Stream, error) {
	// Resolve against the current view, then rebase onto table columns
	cur, err := t.viewHeader()
	if err != nil {
		return nil, err
	}
	base := make([]record.Column, len(cols))
	for i, col := range cols {
		idx, err := col.Resolve(cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
		base[i] = record.Col(cur.NameAt(idx))
	}
	c := *t
	c.cols = base
	return &c, nil
}

func (t *sqliteTable) OrderBy(ords ...record.Ordering) (record.Stream, error) {
	cur, err := t.viewHeader()
	if err != nil {
		return nil, err
	}
	base := make([]record.Ordering, len(ords))
	for i, ord := range ords {
		idx, err := ord.Column.Resolve(cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
		base[i] = record.Ordering{Column: record.Col(cur.NameAt(idx)), Descending: ord.Descending}
	}
	c := *t
	c.ords = base
	return &c, nil
}

func (t *sqliteTable) selectQuery() (string, *record.Header, error) {
	h, err := t.viewHeader()
	if err != nil {
		return "", nil, err
	}
	cols := make([]string, h.Len())
	for i, name := range h.Names() {
		cols[i] = quoteIdent(name)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), quoteIdent(t.name))
	if len(t.ords) > 0 {
		var parts []string
		for _, ord := range t.ords {
			idx, err := ord.Column.Resolve(t.header)
			if err != nil {
				return "", nil, fmt.Errorf("%s: %w", t.name, err)
			}
			dir := "ASC"
			if ord.Descending {
				dir = "DESC"
			}
			parts = append(parts, quoteIdent(t.header.NameAt(idx))+" "+dir)
		}
		q += " ORDER BY " + strings.Join(parts, ", ")
	}
	return q, h, nil
}

func (t *sqliteTable) Records() (record.Iterator, error) {
	if err := t.parent.live(); err != nil {
		return nil, err
	}
	q, h, err := t.selectQuery()
	if err != nil {
		return nil, err
	}
	rows, err := t.parent.db.QueryContext(context.Background(), q)
	if err != nil {
		return nil, fmt.Errorf("error querying table %s: %w", t.name, err)
	}
	return &sqliteRowsIterator{rows: rows, header: h}, nil
}

func (t *sqliteTable) AddAll(ctx context.Context, it record.Iterator) (int64, error) {
	defer it.Close()
	if err := t.parent.live(); err != nil {
		return 0, err
	}

	placeholders := make([]string, t.header.Len())
	for i := range placeholders {
		placeholders[i] = "?"
	}
	q := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(t.name), strings.Join(placeholders, ", "))

	var total int64
	for {
		batch, done, err := nextBatch(it, insertBatchRows)
		if err != nil {
			return total, err
		}
		if len(batch) > 0 {
			n, err := t.insertBatch(ctx, q, batch)
			total += n
			if err != nil {
				return total, err
			}
		}
		if done {
			return total, nil
		}
	}
}

func (t *sqliteTable) insertBatch(ctx context.Context, q string, batch []record.Record) (int64, error) {
	tx, err := t.parent.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error in db.BeginTx: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("error in tx.PrepareContext: %w", err)
	}
	defer stmt.Close()

	var n int64
	for _, rec := range batch {
		args, err := t.bindArgs(rec)
		if err != nil {
			return n, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return n, fmt.Errorf("error inserting into %s: %w", t.name, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error in tx.Commit: %w", err)
	}
	return n, nil
}

func (t *sqliteTable) bindArgs(rec record.Record) ([]any, error) {
	args := make([]any, t.header.Len())
	for i := 0; i < t.header.Len(); i++ {
		if i >= len(rec) || rec[i] == nil {
			continue
		}
		switch t.header.TypeAt(i) {
		case record.TypeBool:
			b, ok := rec[i].(bool)
			if !ok {
				return nil, fmt.Errorf("%s: column %s: not a bool: %v", t.name, t.header.NameAt(i), rec[i])
			}
			if b {
				args[i] = int64(1)
			} else {
				args[i] = int64(0)
			}
		case record.TypeDate, record.TypeTime, record.TypeDateTime:
			args[i] = t.header.TypeAt(i).Format(rec[i])
		case record.TypeAny:
			args[i] = fmt.Sprint(rec[i])
		default:
			args[i] = rec[i]
		}
	}
	return args, nil
}

func (t *sqliteTable) CountRows(ctx context.Context) (int64, error) {
	if err := t.parent.live(); err != nil {
		return 0, err
	}
	var n int64
	err := t.parent.db.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(t.name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting rows of %s: %w", t.name, err)
	}
	return n, nil
}

func (it *sqliteRowsIterator) Next() (record.Record, error) {
	if it.closed {
		return nil, io.EOF
	}
	if !it.rows.Next() {
		err := it.rows.Err()
		it.Close()
		if err != nil {
			return nil, fmt.Errorf("error in rows.Next: %w", err)
		}
		return nil, io.EOF
	}
	n := it.header.Len()
	raw := make([]any, n)
	ptrs := make([]any, n)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := it.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("error in rows.Scan: %w", err)
	}
	rec := make(record.Record, n)
	for i, v := range raw {
		cv, err := sqliteValue(it.header.TypeAt(i), v)
		if err != nil {
			return nil, &record.RecordError{Rec: record.Record(raw), Err: err}
		}
		rec[i] = cv
	}
	return rec, nil
}

// sqliteValue converts a driver value back to the canonical value for
// the column type.
func sqliteValue(t record.Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t {
	case record.TypeBool:
		i, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected bool column value %T", v)
		}
		return i != 0, nil
	case record.TypeDate, record.TypeTime, record.TypeDateTime:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected temporal column value %T", v)
		}
		return t.Parse(s)
	default:
		return v, nil
	}
}

func (it *sqliteRowsIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.rows.Close()
}

// nextBatch pulls up to limit records, reporting whether the source is
// exhausted.
func nextBatch(it record.Iterator, limit int) ([]record.Record, bool, error) {
	var batch []record.Record
	for len(batch) < limit {
		rec, err := it.Next()
		if err == io.EOF {
			return batch, true, nil
		}
		if err != nil {
			return batch, false, err
		}
		batch = append(batch, rec)
	}
	return batch, false, nil
}
