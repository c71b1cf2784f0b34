package builders

import (
	"database/sql"

	"github.com/kndndrj/snowgate/core"
)

// ColumnTypesFromRows converts the column description of a result set.
func ColumnTypesFromRows(cols []*sql.ColumnType) []core.ColumnType {
	out := make([]core.ColumnType, len(cols))
	for i, c := range cols {
		ct := core.ColumnType{
			Name:         c.Name(),
			DatabaseType: c.DatabaseTypeName(),
		}
		if _, scale, ok := c.DecimalSize(); ok {
			ct.Scale = scale
			ct.HasScale = true
		}
		out[i] = ct
	}
	return out
}
