package builders

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kndndrj/snowgate/core"
)

// Client wraps a *sql.DB for adapters that sit on a database/sql driver.
type Client struct {
	db         *sql.DB
	processors map[string]TypeProcessor
}

func NewClient(db *sql.DB, opts ...ClientOption) *Client {
	config := clientConfig{
		processors: make(map[string]TypeProcessor),
	}
	for _, opt := range opts {
		opt(&config)
	}

	return &Client{
		db:         db,
		processors: config.processors,
	}
}

// Conn pins a single connection from the pool. Session state such as the
// current database survives between statements on the same Conn.
func (c *Client) Conn(ctx context.Context) (*Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("db.Conn: %w", err)
	}
	return &Conn{conn: conn, client: c}, nil
}

func (c *Client) Close() {
	_ = c.db.Close()
}

// processorFor returns the processor registered for the column's database
// type. Unregistered types only have byte slices turned into strings.
func (c *Client) processorFor(col *sql.ColumnType) TypeProcessor {
	if proc, ok := c.processors[strings.ToLower(col.DatabaseTypeName())]; ok {
		return proc
	}
	return bytesToString
}

func bytesToString(val any) any {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}

// Conn is a pinned connection. It is not safe for concurrent use.
type Conn struct {
	conn   *sql.Conn
	client *Client
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Exec executes a statement and returns a stream with a single row holding
// the number of affected rows, which is also set in the stream's Meta.
func (c *Conn) Exec(ctx context.Context, query string) (*ResultStream, error) {
	res, err := c.conn.ExecContext(ctx, query)
	if err != nil {
		return nil, err
	}

	meta := &core.Meta{}
	affected, err := res.RowsAffected()
	if err == nil {
		meta.RowsAffected = &affected
	}

	return NewResultStreamBuilder().
		WithNextFunc(NextSingle(affected)).
		WithHeader(core.Header{"Rows Affected"}).
		WithColumnTypes([]core.ColumnType{{Name: "Rows Affected", DatabaseType: "FIXED", HasScale: true}}).
		WithMeta(meta).
		Build(), nil
}

// Query executes a statement and streams its rows.
func (c *Conn) Query(ctx context.Context, query string) (*ResultStream, error) {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	reader, err := c.newRowReader(rows)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}

	return NewResultStreamBuilder().
		WithNextFunc(reader.next, reader.hasNext).
		WithHeader(reader.header).
		WithColumnTypes(reader.types).
		WithCloseFunc(func() { _ = rows.Close() }).
		Build(), nil
}

// rowReader scans *sql.Rows into processed core.Rows.
type rowReader struct {
	rows   *sql.Rows
	header core.Header
	types  []core.ColumnType
	procs  []TypeProcessor
	// err is the iteration error reported by rows after the last row
	err error
}

func (c *Conn) newRowReader(rows *sql.Rows) (*rowReader, error) {
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("rows.Columns: %w", err)
	}
	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("rows.ColumnTypes: %w", err)
	}

	procs := make([]TypeProcessor, len(cols))
	for i, col := range cols {
		procs[i] = c.client.processorFor(col)
	}

	return &rowReader{
		rows:   rows,
		header: header,
		types:  ColumnTypesFromRows(cols),
		procs:  procs,
	}, nil
}

// hasNext also reports true when iteration stopped on an error, so that the
// error comes out of next.
func (r *rowReader) hasNext() bool {
	if r.rows.Next() {
		return true
	}
	r.err = r.rows.Err()
	return r.err != nil
}

func (r *rowReader) next() (core.Row, error) {
	if r.err != nil {
		return nil, r.err
	}

	values := make([]any, len(r.procs))
	dest := make([]any, len(r.procs))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		return nil, err
	}

	row := make(core.Row, len(values))
	for i, v := range values {
		row[i] = r.procs[i](v)
	}
	return row, nil
}
