package logical

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrCoercion = errors.New("value does not match type")

// FromJSON converts a decoded JSON document (numbers as json.Number or
// float64) into an untyped logical value. Object keys are sorted.
func FromJSON(raw any) Value {
	switch r := raw.(type) {
	case nil:
		return NullValue{}
	case bool:
		return BooleanValue{Value: r}
	case json.Number:
		if i, ok := new(big.Int).SetString(string(r), 10); ok {
			return IntegerValue{Value: i}
		}
		if d, err := ParseDecimal(string(r)); err == nil {
			return NumberValue{Value: d}
		}
		return StringValue{Value: string(r)}
	case float64:
		if d, err := ParseDecimal(strconv.FormatFloat(r, 'f', -1, 64)); err == nil {
			if d.Exponent() >= 0 {
				return IntegerValue{Value: d.BigInt()}
			}
			return NumberValue{Value: d}
		}
		return StringValue{Value: strconv.FormatFloat(r, 'g', -1, 64)}
	case int:
		return Int(int64(r))
	case int64:
		return Int(r)
	case string:
		return StringValue{Value: r}
	case []any:
		out := ArrayValue{Values: make([]Value, len(r))}
		for i, item := range r {
			out.Values[i] = FromJSON(item)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, FromJSON(r[k]))
		}
		return obj
	}
	return StringValue{Value: fmt.Sprint(raw)}
}

// Coerce converts a decoded JSON value into a value of type t. A nil raw
// value is always NullValue.
func Coerce(raw any, t Type) (Value, error) {
	if raw == nil {
		return NullValue{}, nil
	}
	return Visit[Value](t, coercer{raw: raw})
}

type coercer struct {
	raw any
}

func (c coercer) mismatch(t Type) error {
	return fmt.Errorf("%T as %s: %w", c.raw, t, ErrCoercion)
}

func (c coercer) VisitBoolean(t Boolean) (Value, error) {
	switch r := c.raw.(type) {
	case bool:
		return BooleanValue{Value: r}, nil
	case string:
		b, err := strconv.ParseBool(r)
		if err != nil {
			return nil, c.mismatch(t)
		}
		return BooleanValue{Value: b}, nil
	}
	return nil, c.mismatch(t)
}

func (c coercer) VisitInteger(t Integer) (Value, error) {
	var s string
	switch r := c.raw.(type) {
	case json.Number:
		s = string(r)
	case float64:
		s = strconv.FormatFloat(r, 'f', -1, 64)
	case int:
		return Int(int64(r)), nil
	case int64:
		return Int(r), nil
	case string:
		s = r
	default:
		return nil, c.mismatch(t)
	}
	if i, ok := new(big.Int).SetString(s, 10); ok {
		return IntegerValue{Value: i}, nil
	}
	d, err := ParseDecimal(s)
	if err != nil {
		return nil, c.mismatch(t)
	}
	// 12.0 is an integer, 12.5 is not
	if !d.Equal(d.Truncate(0)) {
		return nil, c.mismatch(t)
	}
	return IntegerValue{Value: d.BigInt()}, nil
}

func (c coercer) VisitNumber(t Number) (Value, error) {
	var s string
	switch r := c.raw.(type) {
	case json.Number:
		s = string(r)
	case float64:
		s = strconv.FormatFloat(r, 'f', -1, 64)
	case int:
		s = strconv.Itoa(r)
	case int64:
		s = strconv.FormatInt(r, 10)
	case string:
		s = r
	default:
		return nil, c.mismatch(t)
	}
	d, err := ParseDecimal(s)
	if err != nil {
		return nil, c.mismatch(t)
	}
	return NumberValue{Value: d}, nil
}

func (c coercer) VisitString(String) (Value, error) {
	if s, ok := c.raw.(string); ok {
		return StringValue{Value: s}, nil
	}
	s, err := Serialize(FromJSON(c.raw))
	if err != nil {
		return nil, err
	}
	return StringValue{Value: s}, nil
}

func (c coercer) parseTime(t Type, layouts ...string) (time.Time, error) {
	s, ok := c.raw.(string)
	if !ok {
		return time.Time{}, c.mismatch(t)
	}
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, c.mismatch(t)
}

func (c coercer) VisitDate(t Date) (Value, error) {
	d, err := c.parseTime(t, DateLayout)
	if err != nil {
		return nil, err
	}
	return DateValue{Value: d}, nil
}

func (c coercer) VisitTimeWithTimezone(t TimeWithTimezone) (Value, error) {
	d, err := c.parseTime(t, TimeWithTimezoneLayout, "15:04Z07:00", "15:04:05.999999999Z0700", "15:04:05.999999999Z07")
	if err != nil {
		return nil, err
	}
	return TimeWithTimezoneValue{Value: d}, nil
}

func (c coercer) VisitTimeWithoutTimezone(t TimeWithoutTimezone) (Value, error) {
	d, err := c.parseTime(t, TimeWithoutTimezoneLayout, "15:04")
	if err != nil {
		return nil, err
	}
	return TimeWithoutTimezoneValue{Value: d}, nil
}

func (c coercer) VisitTimestampWithTimezone(t TimestampWithTimezone) (Value, error) {
	d, err := c.parseTime(t, TimestampWithTimezoneLayout, "2006-01-02 15:04:05.999999999Z07:00", "2006-01-02T15:04:05.999999999Z0700")
	if err != nil {
		return nil, err
	}
	return TimestampWithTimezoneValue{Value: d}, nil
}

func (c coercer) VisitTimestampWithoutTimezone(t TimestampWithoutTimezone) (Value, error) {
	d, err := c.parseTime(t, TimestampWithoutTimezoneLayout, "2006-01-02 15:04:05.999999999")
	if err != nil {
		return nil, err
	}
	return TimestampWithoutTimezoneValue{Value: d}, nil
}

func (c coercer) VisitArray(t Array) (Value, error) {
	items, ok := c.raw.([]any)
	if !ok {
		return nil, c.mismatch(t)
	}
	out := ArrayValue{Values: make([]Value, len(items))}
	for i, item := range items {
		if t.Items == nil {
			out.Values[i] = FromJSON(item)
			continue
		}
		v, err := Coerce(item, t.Items)
		if err != nil {
			return nil, fmt.Errorf("error coercing item %d: %w", i, err)
		}
		out.Values[i] = v
	}
	return out, nil
}

func (c coercer) VisitObject(t Object) (Value, error) {
	m, ok := c.raw.(map[string]any)
	if !ok {
		return nil, c.mismatch(t)
	}
	if t.Properties == nil {
		return FromJSON(m), nil
	}
	obj := NewObject()
	for _, p := range t.Properties {
		raw, exists := m[p.Name]
		if !exists {
			continue
		}
		v, err := Coerce(raw, p.Type)
		if err != nil {
			return nil, fmt.Errorf("error coercing property %s: %w", p.Name, err)
		}
		obj.Set(p.Name, v)
	}
	return obj, nil
}

func (c coercer) VisitUnion(t Union) (Value, error) {
	for _, option := range t.Options {
		if v, err := Coerce(c.raw, option); err == nil {
			return v, nil
		}
	}
	return FromJSON(c.raw), nil
}

func (c coercer) VisitUnknown(Unknown) (Value, error) {
	return FromJSON(c.raw), nil
}
