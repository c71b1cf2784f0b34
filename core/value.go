package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind is the normalized type of a result value.
type ValueKind string

const (
	KindNull     ValueKind = "null"
	KindText     ValueKind = "text"
	KindInteger  ValueKind = "integer"
	KindFloat    ValueKind = "float"
	KindBoolean  ValueKind = "boolean"
	KindDatetime ValueKind = "datetime"
	// KindDecimal values are exact decimal numbers kept as text.
	KindDecimal ValueKind = "decimal"
)

// Value is a normalized cell. Data holds nil, string, int64, float64 or bool
// depending on Kind. Text, decimal and datetime values are strings.
type Value struct {
	Kind ValueKind
	Data any
}

func NullValue() Value             { return Value{Kind: KindNull} }
func TextValue(s string) Value     { return Value{Kind: KindText, Data: s} }
func IntegerValue(i int64) Value   { return Value{Kind: KindInteger, Data: i} }
func FloatValue(f float64) Value   { return Value{Kind: KindFloat, Data: f} }
func BooleanValue(b bool) Value    { return Value{Kind: KindBoolean, Data: b} }
func DatetimeValue(s string) Value { return Value{Kind: KindDatetime, Data: s} }
func DecimalValue(s string) Value  { return Value{Kind: KindDecimal, Data: s} }

func (v Value) IsNull() bool { return v.Kind == KindNull || v.Kind == "" }

// String renders the value for text output.
func (v Value) String() string {
	switch d := v.Data.(type) {
	case nil:
		return "NULL"
	case string:
		return d
	case int64:
		return strconv.FormatInt(d, 10)
	case float64:
		return formatFloat(d)
	case bool:
		return strconv.FormatBool(d)
	default:
		return fmt.Sprint(d)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch d := v.Data.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return json.Marshal(d)
	case int64:
		return []byte(strconv.FormatInt(d, 10)), nil
	case float64:
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return json.Marshal(formatFloat(d))
		}
		return []byte(formatFloat(d)), nil
	case bool:
		return json.Marshal(d)
	default:
		return nil, fmt.Errorf("value of kind %s holds unsupported %T", v.Kind, v.Data)
	}
}

// formatFloat always keeps a decimal point or exponent so the JSON token
// decodes back to a float.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' || s[i] == 'e' || s[i] == 'E' {
			return s
		}
	}
	return s + ".0"
}

// decodeValue reads a single JSON token. hint is the kind of the column the
// value belongs to and disambiguates strings.
func decodeValue(raw json.RawMessage, hint ValueKind) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return NullValue(), nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		switch hint {
		case KindDecimal:
			return DecimalValue(s), nil
		case KindDatetime:
			return DatetimeValue(s), nil
		case KindFloat:
			switch s {
			case "NaN":
				return FloatValue(math.NaN()), nil
			case "Infinity":
				return FloatValue(math.Inf(1)), nil
			case "-Infinity":
				return FloatValue(math.Inf(-1)), nil
			}
		}
		return TextValue(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return BooleanValue(b), nil

	default:
		s := string(raw)
		if bytes.ContainsAny(raw, ".eE") {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Value{}, fmt.Errorf("decodeValue: %w", err)
			}
			return FloatValue(f), nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decodeValue: %w", err)
		}
		return IntegerValue(i), nil
	}
}
