package builders

import (
	"errors"

	"github.com/kndndrj/snowgate/core"
)

// ErrNoNextRow is returned by an exhausted iterator.
var ErrNoNextRow = errors.New("no next row")

// NextRows creates next and hasNext functions over the provided rows.
func NextRows(rows ...core.Row) (func() (core.Row, error), func() bool) {
	pos := 0

	hasNext := func() bool {
		return pos < len(rows)
	}

	next := func() (core.Row, error) {
		if !hasNext() {
			return nil, ErrNoNextRow
		}
		row := rows[pos]
		pos++
		return row, nil
	}

	return next, hasNext
}

// NextSingle yields one row holding value.
func NextSingle(value any) (func() (core.Row, error), func() bool) {
	return NextRows(core.Row{value})
}

// NextNil yields no rows.
func NextNil() (func() (core.Row, error), func() bool) {
	return NextRows()
}
