package format

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/kndndrj/snowgate/core"
)

var _ core.Formatter = (*CSV)(nil)

type CSV struct{}

func NewCSV() *CSV {
	return &CSV{}
}

func (cf *CSV) parseSchemaFul(result *core.ExecutionResult) [][]string {
	data := [][]string{
		result.Header(),
	}
	for _, row := range result.Rows {
		csvRow := make([]string, 0, len(row))
		for _, v := range row {
			if v.IsNull() {
				csvRow = append(csvRow, "")
				continue
			}
			csvRow = append(csvRow, v.String())
		}
		data = append(data, csvRow)
	}

	return data
}

func (cf *CSV) Format(result *core.ExecutionResult, _ *core.FormatterOptions) ([]byte, error) {
	data := cf.parseSchemaFul(result)

	b := new(bytes.Buffer)
	w := csv.NewWriter(b)

	err := w.WriteAll(data)
	if err != nil {
		return nil, fmt.Errorf("w.WriteAll: %w", err)
	}

	return b.Bytes(), nil
}
