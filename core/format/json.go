package format

import (
	"encoding/json"
	"fmt"

	"github.com/kndndrj/snowgate/core"
)

var _ core.Formatter = (*JSON)(nil)

type JSON struct{}

func NewJSON() *JSON {
	return &JSON{}
}

func (jf *JSON) parseSchemaLess(result *core.ExecutionResult) []any {
	data := make([]any, 0, len(result.Rows))

	for _, row := range result.Rows {
		if len(row) == 1 {
			data = append(data, row[0])
		} else if len(row) > 1 {
			data = append(data, []core.Value(row))
		}
	}
	return data
}

func (jf *JSON) Format(result *core.ExecutionResult, opts *core.FormatterOptions) ([]byte, error) {
	schema := core.SchemaFul
	if opts != nil {
		schema = opts.SchemaType
	}

	var data any
	switch schema {
	case core.SchemaLess:
		data = jf.parseSchemaLess(result)
	case core.SchemaFul:
		fallthrough
	default:
		data = result.Records()
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json.MarshalIndent: %w", err)
	}

	return out, nil
}
