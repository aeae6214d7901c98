package logical

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Value is a logical-type-tagged value. Like Type, the set is closed.
	Value interface {
		isValue()
	}

	NullValue    struct{}
	BooleanValue struct{ Value bool }
	IntegerValue struct{ Value *big.Int }
	NumberValue  struct{ Value decimal.Decimal }
	StringValue  struct{ Value string }

	// DateValue holds midnight UTC of the date.
	DateValue struct{ Value time.Time }

	// TimeWithTimezoneValue holds a time of day; the date part is ignored and
	// the location carries the offset.
	TimeWithTimezoneValue struct{ Value time.Time }

	// TimeWithoutTimezoneValue holds a time of day in UTC; the date part is
	// ignored.
	TimeWithoutTimezoneValue      struct{ Value time.Time }
	TimestampWithTimezoneValue    struct{ Value time.Time }
	TimestampWithoutTimezoneValue struct{ Value time.Time }

	ArrayValue struct{ Values []Value }

	// ObjectValue keeps field insertion order.
	ObjectValue struct {
		Fields []NamedValue
	}

	NamedValue struct {
		Name  string
		Value Value
	}
)

func (NullValue) isValue()                     {}
func (BooleanValue) isValue()                  {}
func (IntegerValue) isValue()                  {}
func (NumberValue) isValue()                   {}
func (StringValue) isValue()                   {}
func (DateValue) isValue()                     {}
func (TimeWithTimezoneValue) isValue()         {}
func (TimeWithoutTimezoneValue) isValue()      {}
func (TimestampWithTimezoneValue) isValue()    {}
func (TimestampWithoutTimezoneValue) isValue() {}
func (ArrayValue) isValue()                    {}
func (*ObjectValue) isValue()                  {}

func Int(i int64) IntegerValue {
	return IntegerValue{Value: big.NewInt(i)}
}

func Str(s string) StringValue {
	return StringValue{Value: s}
}

func Bool(b bool) BooleanValue {
	return BooleanValue{Value: b}
}

func NewObject() *ObjectValue {
	return &ObjectValue{}
}

// Get returns the value stored under name, or nil if absent.
func (o *ObjectValue) Get(name string) Value {
	if o == nil {
		return nil
	}
	for _, f := range o.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return nil
}

// Set replaces the value under name, appending it if absent.
func (o *ObjectValue) Set(name string, v Value) *ObjectValue {
	for i, f := range o.Fields {
		if f.Name == name {
			o.Fields[i].Value = v
			return o
		}
	}
	o.Fields = append(o.Fields, NamedValue{Name: name, Value: v})
	return o
}

func (o *ObjectValue) Names() []string {
	names := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		names[i] = f.Name
	}
	return names
}

// IsNull reports whether v is absent or logically null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	switch vv := v.(type) {
	case NullValue:
		return true
	case IntegerValue:
		return vv.Value == nil
	case *ObjectValue:
		return vv == nil
	}
	return false
}
