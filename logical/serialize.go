package logical

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

const (
	DateLayout                     = "2006-01-02"
	TimeWithTimezoneLayout         = "15:04:05.999999999Z07:00"
	TimeWithoutTimezoneLayout      = "15:04:05.999999999"
	TimestampWithTimezoneLayout    = time.RFC3339Nano
	TimestampWithoutTimezoneLayout = "2006-01-02T15:04:05.999999999"
)

// canonicalJSON sorts object keys so equal values always serialize to equal
// bytes.
var canonicalJSON = sonic.Config{
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// Serialize renders v as canonical JSON.
func Serialize(v Value) (string, error) {
	s, err := canonicalJSON.MarshalToString(ToJSON(v))
	if err != nil {
		return "", fmt.Errorf("error in MarshalToString: %w", err)
	}
	return s, nil
}

// ToJSON converts v into plain JSON-compatible Go values. Numbers become
// json.Number so no precision is lost.
func ToJSON(v Value) any {
	switch vv := v.(type) {
	case nil, NullValue:
		return nil
	case BooleanValue:
		return vv.Value
	case IntegerValue:
		if vv.Value == nil {
			return nil
		}
		return json.Number(vv.Value.String())
	case NumberValue:
		return json.Number(vv.Value.String())
	case StringValue:
		return vv.Value
	case DateValue:
		return vv.Value.Format(DateLayout)
	case TimeWithTimezoneValue:
		return vv.Value.Format(TimeWithTimezoneLayout)
	case TimeWithoutTimezoneValue:
		return vv.Value.Format(TimeWithoutTimezoneLayout)
	case TimestampWithTimezoneValue:
		return vv.Value.Format(TimestampWithTimezoneLayout)
	case TimestampWithoutTimezoneValue:
		return vv.Value.Format(TimestampWithoutTimezoneLayout)
	case ArrayValue:
		out := make([]any, len(vv.Values))
		for i, item := range vv.Values {
			out[i] = ToJSON(item)
		}
		return out
	case *ObjectValue:
		if vv == nil {
			return nil
		}
		out := make(map[string]any, len(vv.Fields))
		for _, f := range vv.Fields {
			out[f.Name] = ToJSON(f.Value)
		}
		return out
	}
	panic(fmt.Sprintf("unhandled logical value %T", v))
}

// Deserialize parses a JSON document into an untyped logical value.
func Deserialize(s string) (Value, error) {
	var raw any
	if err := canonicalJSON.UnmarshalFromString(s, &raw); err != nil {
		return nil, fmt.Errorf("error in UnmarshalFromString: %w", err)
	}
	return FromJSON(raw), nil
}

// DeserializeAs parses a JSON document and coerces it to t.
func DeserializeAs(s string, t Type) (Value, error) {
	var raw any
	if err := canonicalJSON.UnmarshalFromString(s, &raw); err != nil {
		return nil, fmt.Errorf("error in UnmarshalFromString: %w", err)
	}
	return Coerce(raw, t)
}
