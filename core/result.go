package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type (
	Column struct {
		Name         string    `json:"name"`
		Kind         ValueKind `json:"kind"`
		DatabaseType string    `json:"database_type,omitempty"`
	}

	// ResultRow holds values positionally aligned with ExecutionResult.Columns.
	ResultRow []Value

	ResultMeta struct {
		RowCount      int
		Truncated     bool
		Elapsed       time.Duration
		StatementType string
		RiskClass     RiskClass
		// RowsAffected is set for statements without a result set.
		RowsAffected *int64
		QueryID      string
		// Context is the session context the statement ran in.
		Context SessionContext
	}

	// ExecutionResult is the normalized outcome of a successful statement.
	ExecutionResult struct {
		Columns []Column
		Rows    []ResultRow
		Meta    ResultMeta
	}
)

// resultPersistent is used for marshaling and unmarshaling the result
type resultPersistent struct {
	Columns []Column            `json:"columns"`
	Rows    []json.RawMessage   `json:"rows"`
	Meta    resultMetaPersisted `json:"meta"`
}

type resultMetaPersisted struct {
	RowCount      int            `json:"row_count"`
	Truncated     bool           `json:"truncated"`
	Elapsed       int64          `json:"elapsed_us"`
	StatementType string         `json:"statement_type,omitempty"`
	RiskClass     RiskClass      `json:"risk_class"`
	RowsAffected  *int64         `json:"rows_affected,omitempty"`
	QueryID       string         `json:"query_id,omitempty"`
	Context       SessionContext `json:"context"`
}

func (m *ResultMeta) toPersistent() resultMetaPersisted {
	return resultMetaPersisted{
		RowCount:      m.RowCount,
		Truncated:     m.Truncated,
		Elapsed:       m.Elapsed.Microseconds(),
		StatementType: m.StatementType,
		RiskClass:     m.RiskClass,
		RowsAffected:  m.RowsAffected,
		QueryID:       m.QueryID,
		Context:       m.Context,
	}
}

func (r *ExecutionResult) MarshalJSON() ([]byte, error) {
	rows := make([]json.RawMessage, len(r.Rows))
	for i, row := range r.Rows {
		b, err := json.Marshal([]Value(row))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows[i] = b
	}

	columns := r.Columns
	if columns == nil {
		columns = []Column{}
	}

	return json.Marshal(resultPersistent{
		Columns: columns,
		Rows:    rows,
		Meta:    r.Meta.toPersistent(),
	})
}

func (r *ExecutionResult) UnmarshalJSON(data []byte) error {
	var alias resultPersistent
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	rows := make([]ResultRow, len(alias.Rows))
	for i, raw := range alias.Rows {
		var cells []json.RawMessage
		if err := json.Unmarshal(raw, &cells); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if len(cells) != len(alias.Columns) {
			return fmt.Errorf("row %d: has %d values for %d columns", i, len(cells), len(alias.Columns))
		}

		row := make(ResultRow, len(cells))
		for j, cell := range cells {
			v, err := decodeValue(cell, alias.Columns[j].Kind)
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i, alias.Columns[j].Name, err)
			}
			row[j] = v
		}
		rows[i] = row
	}

	m := alias.Meta
	*r = ExecutionResult{
		Columns: alias.Columns,
		Rows:    rows,
		Meta: ResultMeta{
			RowCount:      m.RowCount,
			Truncated:     m.Truncated,
			Elapsed:       time.Duration(m.Elapsed) * time.Microsecond,
			StatementType: m.StatementType,
			RiskClass:     m.RiskClass,
			RowsAffected:  m.RowsAffected,
			QueryID:       m.QueryID,
			Context:       m.Context,
		},
	}
	return nil
}

// Header returns the column names in order.
func (r *ExecutionResult) Header() Header {
	h := make(Header, len(r.Columns))
	for i, c := range r.Columns {
		h[i] = c.Name
	}
	return h
}

type (
	Field struct {
		Name  string
		Value Value
	}

	// Record is a row as an ordered name to value mapping. Duplicate column
	// names are kept as separate fields.
	Record []Field
)

// Get returns the first field with the given name.
func (rec Record) Get(name string) (Value, bool) {
	for _, f := range rec {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// MarshalJSON writes an object whose keys keep column order, including duplicates.
func (rec Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range rec {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Records returns every row as a Record.
func (r *ExecutionResult) Records() []Record {
	out := make([]Record, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(Record, len(r.Columns))
		for j, c := range r.Columns {
			var v Value
			if j < len(row) {
				v = row[j]
			}
			rec[j] = Field{Name: c.Name, Value: v}
		}
		out[i] = rec
	}
	return out
}
