package mock

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kndndrj/snowgate/core"
)

var errNoNextRow = errors.New("no next row")

var _ core.ResultStream = (*ResultStream)(nil)

// ResultStream is an in-memory core.ResultStream.
type ResultStream struct {
	rows   []core.Row
	pos    int
	config *resultStreamConfig
	closed atomic.Bool
}

// NewResultStream returns a stream over rows. Without a header option the
// header is <header_0>, <header_1>, ... sized after the first row.
func NewResultStream(rows []core.Row, opts ...ResultStreamOption) *ResultStream {
	config := &resultStreamConfig{
		meta:     &core.Meta{},
		failAt:   -1,
		header:   defaultHeader(rows),
		nextWait: 0,
	}
	for _, opt := range opts {
		opt(config)
	}

	return &ResultStream{
		rows:   rows,
		config: config,
	}
}

func defaultHeader(rows []core.Row) core.Header {
	if len(rows) == 0 {
		return nil
	}
	header := make(core.Header, len(rows[0]))
	for i := range header {
		header[i] = fmt.Sprintf("header_%d", i)
	}
	return header
}

func (rs *ResultStream) Meta() *core.Meta               { return rs.config.meta }
func (rs *ResultStream) Header() core.Header            { return rs.config.header }
func (rs *ResultStream) ColumnTypes() []core.ColumnType { return rs.config.columnTypes }

func (rs *ResultStream) HasNext() bool {
	return rs.pos < len(rs.rows)
}

func (rs *ResultStream) Next() (core.Row, error) {
	time.Sleep(rs.config.nextWait)

	if rs.pos == rs.config.failAt {
		return nil, rs.config.rowErr
	}
	if !rs.HasNext() {
		return nil, errNoNextRow
	}

	row := rs.rows[rs.pos]
	rs.pos++
	return row, nil
}

func (rs *ResultStream) Close() {
	rs.closed.Store(true)
}

// Closed reports whether Close was called.
func (rs *ResultStream) Closed() bool {
	return rs.closed.Load()
}

// NewRows returns rows {i, "row_<i>"} for i in [from, to).
func NewRows(from, to int) []core.Row {
	rows := make([]core.Row, 0, max(to-from, 0))
	for i := from; i < to; i++ {
		rows = append(rows, core.Row{i, fmt.Sprintf("row_%d", i)})
	}
	return rows
}
