package core

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

type columnFormat int

const (
	formatAuto columnFormat = iota
	formatInteger
	formatDecimal
	formatReal
	formatBoolean
	formatDate
	formatTime
	formatTimestamp
	formatText
	formatBinary
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05.999999999"
)

func (f columnFormat) kind() ValueKind {
	switch f {
	case formatInteger:
		return KindInteger
	case formatDecimal:
		return KindDecimal
	case formatReal:
		return KindFloat
	case formatBoolean:
		return KindBoolean
	case formatDate, formatTime, formatTimestamp:
		return KindDatetime
	case formatText, formatBinary:
		return KindText
	default:
		return ""
	}
}

// formatOf maps a warehouse type name to a column format.
func formatOf(ct ColumnType) columnFormat {
	name := strings.ToUpper(strings.TrimSpace(ct.DatabaseType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}

	switch name {
	case "FIXED", "NUMBER", "DECIMAL", "NUMERIC", "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "BYTEINT":
		if ct.HasScale && ct.Scale > 0 {
			return formatDecimal
		}
		return formatInteger
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION":
		return formatReal
	case "BOOLEAN":
		return formatBoolean
	case "DATE":
		return formatDate
	case "TIME":
		return formatTime
	case "DATETIME", "TIMESTAMP", "TIMESTAMP_LTZ", "TIMESTAMP_NTZ", "TIMESTAMP_TZ":
		return formatTimestamp
	case "TEXT", "VARCHAR", "CHAR", "CHARACTER", "STRING", "VARIANT", "OBJECT", "ARRAY", "MAP", "GEOGRAPHY", "GEOMETRY", "VECTOR":
		return formatText
	case "BINARY", "VARBINARY":
		return formatBinary
	default:
		return formatAuto
	}
}

// Normalize converts raw driver rows into an ExecutionResult. types may be
// shorter than header when the driver does not describe every column.
func Normalize(header Header, types []ColumnType, rows []Row) *ExecutionResult {
	formats := make([]columnFormat, len(header))
	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i].Name = name
		if i < len(types) {
			columns[i].DatabaseType = types[i].DatabaseType
			formats[i] = formatOf(types[i])
		}
	}

	out := make([]ResultRow, 0, len(rows))
	for _, row := range rows {
		r := make(ResultRow, len(header))
		for i := range header {
			var raw any
			if i < len(row) {
				raw = row[i]
			}
			r[i] = normalizeValue(raw, formats[i])
		}
		out = append(out, r)
	}

	for i := range columns {
		columns[i].Kind = columnKind(formats[i], i, out)
	}

	return &ExecutionResult{
		Columns: columns,
		Rows:    out,
		Meta:    ResultMeta{RowCount: len(out)},
	}
}

// columnKind settles the kind of column i. Integer columns holding values
// beyond int64 become decimal columns and all their values follow.
func columnKind(f columnFormat, i int, rows []ResultRow) ValueKind {
	if f == formatInteger {
		wide := false
		for _, r := range rows {
			if r[i].Kind == KindDecimal {
				wide = true
				break
			}
		}
		if !wide {
			return KindInteger
		}
		for _, r := range rows {
			if r[i].Kind == KindInteger {
				r[i] = DecimalValue(strconv.FormatInt(r[i].Data.(int64), 10))
			}
		}
		return KindDecimal
	}

	if k := f.kind(); k != "" {
		return k
	}

	for _, r := range rows {
		if !r[i].IsNull() {
			return r[i].Kind
		}
	}
	return KindNull
}

func normalizeValue(raw any, f columnFormat) Value {
	raw = deref(raw)
	if raw == nil {
		return NullValue()
	}

	switch f {
	case formatInteger:
		return toInteger(raw)
	case formatDecimal:
		return toDecimal(raw)
	case formatReal:
		return toFloat(raw)
	case formatBoolean:
		return toBoolean(raw)
	case formatDate:
		return toDatetime(raw, dateLayout)
	case formatTime:
		return toDatetime(raw, timeLayout)
	case formatTimestamp:
		return toDatetime(raw, time.RFC3339Nano)
	case formatText:
		return toText(raw, false)
	case formatBinary:
		return toText(raw, true)
	default:
		return byGoType(raw)
	}
}

func deref(raw any) any {
	switch v := raw.(type) {
	case *any:
		if v == nil {
			return nil
		}
		return deref(*v)
	case *string:
		if v == nil {
			return nil
		}
		return *v
	case *int64:
		if v == nil {
			return nil
		}
		return *v
	case *float64:
		if v == nil {
			return nil
		}
		return *v
	case *bool:
		if v == nil {
			return nil
		}
		return *v
	case *time.Time:
		if v == nil {
			return nil
		}
		return *v
	case *big.Int:
		if v == nil {
			return nil
		}
	case *big.Float:
		if v == nil {
			return nil
		}
	case *big.Rat:
		if v == nil {
			return nil
		}
	}
	return raw
}

// byGoType is used when the warehouse type of a column is unknown.
func byGoType(raw any) Value {
	switch v := raw.(type) {
	case bool:
		return BooleanValue(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, *big.Int:
		return toInteger(v)
	case float32:
		return FloatValue(float64(v))
	case float64:
		return FloatValue(v)
	case *big.Float, *big.Rat:
		return toDecimal(v)
	case time.Time:
		return DatetimeValue(v.Format(time.RFC3339Nano))
	case string:
		return TextValue(v)
	case []byte:
		return toText(v, false)
	case fmt.Stringer:
		return TextValue(v.String())
	default:
		return TextValue(fmt.Sprint(v))
	}
}

func toInteger(raw any) Value {
	switch v := raw.(type) {
	case int:
		return IntegerValue(int64(v))
	case int8:
		return IntegerValue(int64(v))
	case int16:
		return IntegerValue(int64(v))
	case int32:
		return IntegerValue(int64(v))
	case int64:
		return IntegerValue(v)
	case uint:
		return toInteger(uint64(v))
	case uint8:
		return IntegerValue(int64(v))
	case uint16:
		return IntegerValue(int64(v))
	case uint32:
		return IntegerValue(int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return DecimalValue(strconv.FormatUint(v, 10))
		}
		return IntegerValue(int64(v))
	case *big.Int:
		if v.IsInt64() {
			return IntegerValue(v.Int64())
		}
		return DecimalValue(v.String())
	case []byte:
		return toInteger(string(v))
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IntegerValue(i)
		}
		if _, ok := new(big.Int).SetString(s, 10); ok {
			return DecimalValue(s)
		}
		return toDecimal(s)
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return IntegerValue(int64(v))
		}
		return FloatValue(v)
	default:
		return byGoType(raw)
	}
}

func toDecimal(raw any) Value {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if _, ok := new(big.Rat).SetString(s); ok {
			return DecimalValue(s)
		}
		return TextValue(v)
	case []byte:
		return toDecimal(string(v))
	case *big.Float:
		return DecimalValue(v.Text('f', -1))
	case *big.Rat:
		if v.IsInt() {
			return DecimalValue(v.Num().String())
		}
		if s, exact := v.FloatPrec(); exact {
			return DecimalValue(v.FloatString(s))
		}
		return DecimalValue(v.RatString())
	case *big.Int:
		return DecimalValue(v.String())
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return DecimalValue(fmt.Sprint(v))
	case float32:
		return DecimalValue(strconv.FormatFloat(float64(v), 'f', -1, 32))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return FloatValue(v)
		}
		return DecimalValue(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return byGoType(raw)
	}
}

func toFloat(raw any) Value {
	switch v := raw.(type) {
	case float64:
		return FloatValue(v)
	case float32:
		return FloatValue(float64(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return TextValue(v)
		}
		return FloatValue(f)
	case []byte:
		return toFloat(string(v))
	case *big.Float:
		f, _ := v.Float64()
		return FloatValue(f)
	default:
		return byGoType(raw)
	}
}

func toBoolean(raw any) Value {
	switch v := raw.(type) {
	case bool:
		return BooleanValue(v)
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return TextValue(v)
		}
		return BooleanValue(b)
	case []byte:
		return toBoolean(string(v))
	case int64:
		return BooleanValue(v != 0)
	default:
		return byGoType(raw)
	}
}

func toDatetime(raw any, layout string) Value {
	switch v := raw.(type) {
	case time.Time:
		return DatetimeValue(v.Format(layout))
	case string:
		return DatetimeValue(v)
	case []byte:
		return DatetimeValue(string(v))
	default:
		return byGoType(raw)
	}
}

func toText(raw any, binary bool) Value {
	switch v := raw.(type) {
	case string:
		if binary {
			return TextValue(hex.EncodeToString([]byte(v)))
		}
		return TextValue(v)
	case []byte:
		if binary || !utf8.Valid(v) {
			return TextValue(hex.EncodeToString(v))
		}
		return TextValue(string(v))
	default:
		return TextValue(byGoType(raw).String())
	}
}
