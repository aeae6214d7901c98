package logical

import (
	"fmt"
	"strings"
)

type (
	// Type is a source-side data type classification. The set of variants is
	// closed: only the types declared in this file implement it.
	Type interface {
		fmt.Stringer
		isType()
	}

	Boolean                  struct{}
	Integer                  struct{}
	Number                   struct{}
	String                   struct{}
	Date                     struct{}
	TimeWithTimezone         struct{}
	TimeWithoutTimezone      struct{}
	TimestampWithTimezone    struct{}
	TimestampWithoutTimezone struct{}

	// Array with a nil Items is an array without a declared item schema.
	Array struct {
		Items Type
	}

	// Object with nil Properties is an object without a declared schema.
	Object struct {
		Properties []Field
	}

	Union struct {
		Options []Type
	}

	// Unknown carries the raw declaration it could not be parsed from.
	Unknown struct {
		Raw string
	}

	Field struct {
		Name     string
		Type     Type
		Nullable bool
	}
)

func (Boolean) isType()                  {}
func (Integer) isType()                  {}
func (Number) isType()                   {}
func (String) isType()                   {}
func (Date) isType()                     {}
func (TimeWithTimezone) isType()         {}
func (TimeWithoutTimezone) isType()      {}
func (TimestampWithTimezone) isType()    {}
func (TimestampWithoutTimezone) isType() {}
func (Array) isType()                    {}
func (Object) isType()                   {}
func (Union) isType()                    {}
func (Unknown) isType()                  {}

func (Boolean) String() string                  { return "boolean" }
func (Integer) String() string                  { return "integer" }
func (Number) String() string                   { return "number" }
func (String) String() string                   { return "string" }
func (Date) String() string                     { return "date" }
func (TimeWithTimezone) String() string         { return "time_with_timezone" }
func (TimeWithoutTimezone) String() string      { return "time_without_timezone" }
func (TimestampWithTimezone) String() string    { return "timestamp_with_timezone" }
func (TimestampWithoutTimezone) String() string { return "timestamp_without_timezone" }

func (a Array) String() string {
	if a.Items == nil {
		return "array"
	}
	return "array(" + a.Items.String() + ")"
}

func (o Object) String() string {
	if o.Properties == nil {
		return "object"
	}
	names := make([]string, len(o.Properties))
	for i, p := range o.Properties {
		names[i] = p.Name + ":" + p.Type.String()
	}
	return "object(" + strings.Join(names, ",") + ")"
}

func (u Union) String() string {
	names := make([]string, len(u.Options))
	for i, o := range u.Options {
		names[i] = o.String()
	}
	return "union(" + strings.Join(names, "|") + ")"
}

func (u Unknown) String() string { return "unknown" }

// Visitor is implemented by every site that dispatches on a logical type.
// Adding a variant adds a method here, which breaks every implementation
// until it handles the new case.
type Visitor[R any] interface {
	VisitBoolean(Boolean) (R, error)
	VisitInteger(Integer) (R, error)
	VisitNumber(Number) (R, error)
	VisitString(String) (R, error)
	VisitDate(Date) (R, error)
	VisitTimeWithTimezone(TimeWithTimezone) (R, error)
	VisitTimeWithoutTimezone(TimeWithoutTimezone) (R, error)
	VisitTimestampWithTimezone(TimestampWithTimezone) (R, error)
	VisitTimestampWithoutTimezone(TimestampWithoutTimezone) (R, error)
	VisitArray(Array) (R, error)
	VisitObject(Object) (R, error)
	VisitUnion(Union) (R, error)
	VisitUnknown(Unknown) (R, error)
}

// Visit dispatches t to the matching Visitor method. A nil type is treated as
// Unknown.
func Visit[R any](t Type, v Visitor[R]) (R, error) {
	switch tt := t.(type) {
	case Boolean:
		return v.VisitBoolean(tt)
	case Integer:
		return v.VisitInteger(tt)
	case Number:
		return v.VisitNumber(tt)
	case String:
		return v.VisitString(tt)
	case Date:
		return v.VisitDate(tt)
	case TimeWithTimezone:
		return v.VisitTimeWithTimezone(tt)
	case TimeWithoutTimezone:
		return v.VisitTimeWithoutTimezone(tt)
	case TimestampWithTimezone:
		return v.VisitTimestampWithTimezone(tt)
	case TimestampWithoutTimezone:
		return v.VisitTimestampWithoutTimezone(tt)
	case Array:
		return v.VisitArray(tt)
	case Object:
		return v.VisitObject(tt)
	case Union:
		return v.VisitUnion(tt)
	case Unknown:
		return v.VisitUnknown(tt)
	case nil:
		return v.VisitUnknown(Unknown{})
	}
	// Unreachable: Type is sealed by the unexported isType method.
	panic(fmt.Sprintf("unhandled logical type %T", t))
}

// IsStructured reports whether values of t are stored as serialized documents.
func IsStructured(t Type) bool {
	switch t.(type) {
	case Array, Object, Union, Unknown, nil:
		return true
	}
	return false
}
