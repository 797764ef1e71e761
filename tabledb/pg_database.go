package tabledb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/danthegoodman1/recollect/migrations"
	"github.com/danthegoodman1/recollect/record"
	"github.com/danthegoodman1/recollect/utils"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var standardContextTimeout = 10 * time.Second

type (
	// PGDatabase keeps scratch tables in Postgres (or CockroachDB) so
	// loads bigger than one machine's disk, or shared across workers,
	// have somewhere to live. Created tables are registered in the
	// scratch_tables catalog, which migrations set up.
	PGDatabase struct {
		pool *pgxpool.Pool
	}

	pgTable struct {
		parent *PGDatabase
		name   string
		header *record.Header

		cols []record.Column
		ords []record.Ordering
	}

	pgRowsIterator struct {
		rows   pgx.Rows
		header *record.Header
		done   func()
		closed bool
	}
)

var _ Database = (*PGDatabase)(nil)
var _ Table = (*pgTable)(nil)
var _ record.Projector = (*pgTable)(nil)
var _ record.Orderer = (*pgTable)(nil)

// NewPGDatabase connects to PG_DSN, verifying migrations have run.
func NewPGDatabase(ctx context.Context) (*PGDatabase, error) {
	logger.Debug().Msg("connecting to PG...")
	if err := migrations.CheckMigrations(utils.PG_DSN); err != nil {
		return nil, fmt.Errorf("error in migrations.CheckMigrations: %w", err)
	}

	config, err := pgxpool.ParseConfig(utils.PG_DSN)
	if err != nil {
		return nil, fmt.Errorf("error in pgxpool.ParseConfig: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.HealthCheckPeriod = time.Second * 5
	config.MaxConnLifetime = time.Minute * 30
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error in pgxpool.ConnectConfig: %w", err)
	}
	logger.Debug().Msg("connected to PG")
	return &PGDatabase{pool: pool}, nil
}

func (d *PGDatabase) CreateTable(ctx context.Context, name string, header *record.Header) (Table, error) {
	if header == nil {
		return nil, record.ErrNoHeader
	}
	var cols []string
	for _, f := range header.Fields() {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name), pgColumnType(f.Type)))
	}
	createQ := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", "))

	logger.Debug().Str("table", name).Msg("creating scratch table")
	err := crdbpgx.ExecuteTx(ctx, d.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createQ); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO scratch_tables (id, name, col_names, col_types, created_at) VALUES ($1, $2, $3, $4, now())",
			utils.GenRandomShortID(), name, header.Names(), typeNameList(header),
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		// 42P07: duplicate_table
		if errors.As(err, &pgErr) && pgErr.Code == "42P07" {
			return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
		}
		return nil, fmt.Errorf("error creating table %s: %w", name, err)
	}
	return &pgTable{parent: d, name: name, header: header}, nil
}

func (d *PGDatabase) Table(ctx context.Context, name string) (Table, error) {
	var colNames, colTypes []string
	err := utils.ReliableExec(ctx, d.pool, standardContextTimeout, func(ctx context.Context, conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx,
			"SELECT col_names, col_types FROM scratch_tables WHERE name = $1", name,
		).Scan(&colNames, &colTypes)
		if errors.Is(err, pgx.ErrNoRows) {
			return utils.Permanent(err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
		}
		return nil, fmt.Errorf("error looking up table %s: %w", name, err)
	}

	types := make([]record.Type, len(colTypes))
	for i, tn := range colTypes {
		t, err := record.ParseType(tn)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		types[i] = t
	}
	header, err := record.HeaderOf(colNames, types)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}
	return &pgTable{parent: d, name: name, header: header}, nil
}

func (d *PGDatabase) DropTable(ctx context.Context, name string) error {
	// Idempotent, so safe under ReliableExecInTx retries
	err := utils.ReliableExecInTx(ctx, d.pool, standardContextTimeout, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "DELETE FROM scratch_tables WHERE name = $1", name)
		return err
	})
	if err != nil {
		return fmt.Errorf("error dropping table %s: %w", name, err)
	}
	return nil
}

func (d *PGDatabase) Shutdown(ctx context.Context) error {
	d.pool.Close()
	return nil
}

func pgColumnType(t record.Type) string {
	switch t {
	case record.TypeBool:
		return "BOOLEAN"
	case record.TypeInt:
		return "BIGINT"
	case record.TypeFloat:
		return "DOUBLE PRECISION"
	case record.TypeDate:
		return "DATE"
	case record.TypeTime:
		return "TIME"
	case record.TypeDateTime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func typeNameList(h *record.Header) []string {
	names := make([]string, h.Len())
	for i, t := range h.Types() {
		names[i] = t.String()
	}
	return names
}

func (t *pgTable) Name() string {
	return t.name
}

func (t *pgTable) Header() *record.Header {
	h, err := t.viewHeader()
	if err != nil {
		return nil
	}
	return h
}

func (t *pgTable) Provenance() string {
	return "pg:" + t.name
}

func (t *pgTable) Reiterable() bool {
	return true
}

func (t *pgTable) viewHeader() (*record.Header, error) {
	if t.cols == nil {
		return t.header, nil
	}
	return t.header.Project(t.cols...)
}

func (t *pgTable) Project(cols ...record.Column) (record.Stream, error) {
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

func (t *pgTable) OrderBy(ords ...record.Ordering) (record.Stream, error) {
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

func (t *pgTable) selectQuery() (string, *record.Header, error) {
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

func (t *pgTable) Records() (record.Iterator, error) {
	q, h, err := t.selectQuery()
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	conn, err := t.parent.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("error in pool.Acquire: %w", err)
	}
	rows, err := conn.Query(ctx, q)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("error querying table %s: %w", t.name, err)
	}
	return &pgRowsIterator{rows: rows, header: h, done: conn.Release}, nil
}

func (t *pgTable) AddAll(ctx context.Context, it record.Iterator) (int64, error) {
	defer it.Close()

	placeholders := make([]string, t.header.Len())
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(t.name), strings.Join(placeholders, ", "))

	var total int64
	for {
		batch, done, err := nextBatch(it, insertBatchRows)
		if err != nil {
			return total, err
		}
		if len(batch) > 0 {
			batchID := uuid.NewString()
			s := time.Now()
			err := crdbpgx.ExecuteTx(ctx, t.parent.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
				for _, rec := range batch {
					if _, err := tx.Exec(ctx, q, []any(rec)...); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return total, fmt.Errorf("error loading batch %s into %s: %w", batchID, t.name, err)
			}
			total += int64(len(batch))
			logger.Debug().Str("table", t.name).Str("batchID", batchID).Int("rows", len(batch)).Str("duration", time.Since(s).String()).Msg("loaded batch")
		}
		if done {
			return total, nil
		}
	}
}

func (t *pgTable) CountRows(ctx context.Context) (int64, error) {
	var n int64
	err := utils.ReliableExec(ctx, t.parent.pool, standardContextTimeout, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, "SELECT count(*) FROM "+quoteIdent(t.name)).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("error counting rows of %s: %w", t.name, err)
	}
	return n, nil
}

func (it *pgRowsIterator) Next() (record.Record, error) {
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
	vals, err := it.rows.Values()
	if err != nil {
		return nil, fmt.Errorf("error in rows.Values: %w", err)
	}
	rec := make(record.Record, len(vals))
	for i, v := range vals {
		cv, err := pgValue(it.header.TypeAt(i), v)
		if err != nil {
			return nil, &record.RecordError{Rec: record.Record(vals), Err: err}
		}
		rec[i] = cv
	}
	return rec, nil
}

// pgValue converts pgx-decoded values to the canonical value for the
// column type. Most types already arrive canonical; TIME arrives as
// pgtype.Time and narrower ints get widened.
func pgValue(t record.Type, v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case pgtype.Time:
		if v.Status != pgtype.Present {
			return nil, nil
		}
		return time.Time{}.Add(time.Duration(v.Microseconds) * time.Microsecond), nil
	case time.Time:
		if t == record.TypeDate {
			return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		return v, nil
	default:
		return v, nil
	}
}

func (it *pgRowsIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.rows.Close()
	it.done()
	return nil
}
