package format

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/kndndrj/snowgate/core"
)

var _ core.Formatter = (*Table)(nil)

// Table renders a result as a borderless text table with numbered rows.
type Table struct {
	maxCellWidth int
}

// NewTable returns a table formatter. Cells wider than maxCellWidth are
// cut, zero keeps them whole.
func NewTable(maxCellWidth int) *Table {
	return &Table{maxCellWidth: maxCellWidth}
}

func (tf *Table) Format(result *core.ExecutionResult, opts *core.FormatterOptions) ([]byte, error) {
	if opts == nil {
		opts = &core.FormatterOptions{}
	}

	tableHeaders := table.Row{""}
	for _, c := range result.Columns {
		tableHeaders = append(tableHeaders, c.Name)
	}
	index := opts.ChunkStart

	var tableRows []table.Row
	for _, row := range result.Rows {
		indexedRow := table.Row{index + 1}
		for _, v := range row {
			indexedRow = append(indexedRow, tf.cell(v))
		}
		tableRows = append(tableRows, indexedRow)
		index += 1
	}

	t := table.NewWriter()
	t.AppendHeader(tableHeaders)
	t.AppendRows(tableRows)
	t.AppendSeparator()
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	t.Style().Options.DrawBorder = false
	t.SuppressTrailingSpaces()
	render := t.Render()

	return []byte(render), nil
}

func (tf *Table) cell(v core.Value) string {
	s := v.String()
	if tf.maxCellWidth > 0 && text.RuneWidthWithoutEscSequences(s) > tf.maxCellWidth {
		return text.Trim(s, tf.maxCellWidth-1) + "…"
	}
	return s
}
