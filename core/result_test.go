package core_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kndndrj/snowgate/core"
)

func newTestResult() *core.ExecutionResult {
	affected := int64(3)
	return &core.ExecutionResult{
		Columns: []core.Column{
			{Name: "id", Kind: core.KindInteger, DatabaseType: "FIXED"},
			{Name: "price", Kind: core.KindDecimal, DatabaseType: "FIXED"},
			{Name: "ratio", Kind: core.KindFloat, DatabaseType: "REAL"},
			{Name: "id", Kind: core.KindText, DatabaseType: "TEXT"},
			{Name: "active", Kind: core.KindBoolean, DatabaseType: "BOOLEAN"},
			{Name: "at", Kind: core.KindDatetime, DatabaseType: "TIMESTAMP_NTZ"},
			{Name: "nothing", Kind: core.KindNull},
		},
		Rows: []core.ResultRow{
			{
				core.IntegerValue(1),
				core.DecimalValue("12345678901234567890.123"),
				core.FloatValue(2),
				core.TextValue("1"),
				core.BooleanValue(true),
				core.DatetimeValue("2024-03-09T14:05:06Z"),
				core.NullValue(),
			},
			{
				core.IntegerValue(-2),
				core.NullValue(),
				core.FloatValue(math.Inf(1)),
				core.TextValue("2024-03-09"),
				core.BooleanValue(false),
				core.NullValue(),
				core.NullValue(),
			},
		},
		Meta: core.ResultMeta{
			RowCount:      2,
			Truncated:     true,
			Elapsed:       1500 * time.Microsecond,
			StatementType: "SELECT",
			RiskClass:     core.RiskReadOnly,
			RowsAffected:  &affected,
			QueryID:       "01b2-0000",
			Context:       core.SessionContext{Warehouse: "WH", Database: "DB", Schema: "PUBLIC", Role: "ANALYST"},
		},
	}
}

func TestExecutionResult_JSONRoundTrip(t *testing.T) {
	r := require.New(t)

	expected := newTestResult()

	data, err := json.Marshal(expected)
	r.NoError(err)

	var actual core.ExecutionResult
	r.NoError(json.Unmarshal(data, &actual))

	r.Equal(expected.Columns, actual.Columns)
	r.Equal(expected.Rows, actual.Rows)
	r.Equal(expected.Meta, actual.Meta)
}

func TestExecutionResult_JSONShape(t *testing.T) {
	r := require.New(t)

	res := &core.ExecutionResult{
		Columns: []core.Column{{Name: "a", Kind: core.KindFloat}, {Name: "a", Kind: core.KindText}},
		Rows:    []core.ResultRow{{core.FloatValue(1), core.TextValue("x")}},
		Meta:    core.ResultMeta{RowCount: 1, RiskClass: core.RiskReadOnly},
	}

	data, err := json.Marshal(res)
	r.NoError(err)
	r.JSONEq(`{
		"columns": [{"name": "a", "kind": "float"}, {"name": "a", "kind": "text"}],
		"rows": [[1.0, "x"]],
		"meta": {
			"row_count": 1,
			"truncated": false,
			"elapsed_us": 0,
			"risk_class": "read_only",
			"context": {}
		}
	}`, string(data))
}

func TestExecutionResult_UnmarshalRejectsRaggedRows(t *testing.T) {
	var res core.ExecutionResult
	err := json.Unmarshal([]byte(`{"columns":[{"name":"a","kind":"text"}],"rows":[["x","y"]],"meta":{"risk_class":"read_only"}}`), &res)
	require.Error(t, err)
}

func TestExecutionResult_Records(t *testing.T) {
	r := require.New(t)

	res := newTestResult()
	records := res.Records()
	r.Len(records, 2)

	rec := records[0]
	r.Len(rec, 7)
	r.Equal("id", rec[0].Name)
	r.Equal("id", rec[3].Name)

	v, ok := rec.Get("id")
	r.True(ok)
	r.Equal(core.IntegerValue(1), v)

	_, ok = rec.Get("missing")
	r.False(ok)

	data, err := json.Marshal(records[1])
	r.NoError(err)
	// keys keep column order and duplicates
	r.Equal(`{"id":-2,"price":null,"ratio":"Infinity","id":"2024-03-09","active":false,"at":null,"nothing":null}`, string(data))
}

func TestValue_String(t *testing.T) {
	r := require.New(t)

	r.Equal("NULL", core.NullValue().String())
	r.Equal("1.0", core.FloatValue(1).String())
	r.Equal("0.1", core.FloatValue(0.1).String())
	r.Equal("1e+21", core.FloatValue(1e21).String())
	r.Equal("-3", core.IntegerValue(-3).String())
	r.Equal("true", core.BooleanValue(true).String())
	r.Equal("NaN", core.FloatValue(math.NaN()).String())
}
