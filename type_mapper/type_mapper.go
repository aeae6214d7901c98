package type_mapper

import (
	"errors"
	"fmt"

	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/utils"
)

type (
	// PhysicalType is a PostgreSQL column type. SQL is the DDL rendering and
	// Name is the information_schema.columns.data_type it introspects as.
	// Two physical types are equal for diffing when their Names are equal.
	PhysicalType struct {
		Name string
		SQL  string
	}

	// UnsupportedTypeError is returned for a logical type with no safe
	// physical representation in the requested position.
	UnsupportedTypeError struct {
		Type    logical.Type
		Indexed bool
	}
)

var (
	Boolean                  = PhysicalType{Name: "boolean", SQL: "BOOLEAN"}
	BigInt                   = PhysicalType{Name: "bigint", SQL: "BIGINT"}
	Numeric                  = PhysicalType{Name: "numeric", SQL: "NUMERIC(38, 9)"}
	Text                     = PhysicalType{Name: "text", SQL: "TEXT"}
	IndexedVarchar           = PhysicalType{Name: "character varying", SQL: "VARCHAR(512)"}
	Date                     = PhysicalType{Name: "date", SQL: "DATE"}
	TimeWithTimezone         = PhysicalType{Name: "time with time zone", SQL: "TIMETZ"}
	TimeWithoutTimezone      = PhysicalType{Name: "time without time zone", SQL: "TIME"}
	TimestampWithTimezone    = PhysicalType{Name: "timestamp with time zone", SQL: "TIMESTAMPTZ"}
	TimestampWithoutTimezone = PhysicalType{Name: "timestamp without time zone", SQL: "TIMESTAMP"}
	JSONB                    = PhysicalType{Name: "jsonb", SQL: "JSONB"}

	ErrUnsupportedType = errors.New("unsupported type")

	known = map[string]PhysicalType{}
)

func init() {
	for _, t := range []PhysicalType{
		Boolean, BigInt, Numeric, Text, IndexedVarchar, Date, TimeWithTimezone,
		TimeWithoutTimezone, TimestampWithTimezone, TimestampWithoutTimezone, JSONB,
	} {
		known[t.Name] = t
	}
}

func (e *UnsupportedTypeError) Error() string {
	if e.Indexed {
		return fmt.Sprintf("%s cannot be used in an index", e.Type)
	}
	return fmt.Sprintf("%s has no physical representation", e.Type)
}

func (e *UnsupportedTypeError) Unwrap() error {
	return ErrUnsupportedType
}

func (e *UnsupportedTypeError) IsPermanent() bool {
	return true
}

func (p PhysicalType) String() string {
	return p.SQL
}

func (p PhysicalType) Equal(o PhysicalType) bool {
	return p.Name == o.Name
}

// Convert maps a logical type to its column type. isIndexed selects a
// length-bounded representation for columns that participate in an index.
func Convert(t logical.Type, isIndexed bool) (PhysicalType, error) {
	return logical.Visit[PhysicalType](t, mapper{indexed: isIndexed})
}

// ConvertColumn is Convert with an UnsupportedTypeError reported as a
// ConfigError naming the column.
func ConvertColumn(name string, t logical.Type, isIndexed bool) (PhysicalType, error) {
	p, err := Convert(t, isIndexed)
	if err != nil {
		return PhysicalType{}, &utils.ConfigError{Msg: "column " + name, Err: err}
	}
	return p, nil
}

// FromDataType resolves an introspected data_type. Names outside the mapped
// set are kept verbatim so they never compare equal to an expected type.
func FromDataType(dataType string) PhysicalType {
	if t, ok := known[dataType]; ok {
		return t
	}
	return PhysicalType{Name: dataType, SQL: dataType}
}

type mapper struct {
	indexed bool
}

func (mapper) VisitBoolean(logical.Boolean) (PhysicalType, error) { return Boolean, nil }
func (mapper) VisitInteger(logical.Integer) (PhysicalType, error) { return BigInt, nil }
func (mapper) VisitNumber(logical.Number) (PhysicalType, error)   { return Numeric, nil }
func (mapper) VisitDate(logical.Date) (PhysicalType, error)       { return Date, nil }

func (m mapper) VisitString(logical.String) (PhysicalType, error) {
	// btree entries are capped at roughly a third of a page
	if m.indexed {
		return IndexedVarchar, nil
	}
	return Text, nil
}

func (mapper) VisitTimeWithTimezone(logical.TimeWithTimezone) (PhysicalType, error) {
	return TimeWithTimezone, nil
}

func (mapper) VisitTimeWithoutTimezone(logical.TimeWithoutTimezone) (PhysicalType, error) {
	return TimeWithoutTimezone, nil
}

func (mapper) VisitTimestampWithTimezone(logical.TimestampWithTimezone) (PhysicalType, error) {
	return TimestampWithTimezone, nil
}

func (mapper) VisitTimestampWithoutTimezone(logical.TimestampWithoutTimezone) (PhysicalType, error) {
	return TimestampWithoutTimezone, nil
}

func (m mapper) structured(t logical.Type) (PhysicalType, error) {
	if m.indexed {
		return PhysicalType{}, &UnsupportedTypeError{Type: t, Indexed: true}
	}
	return JSONB, nil
}

func (m mapper) VisitArray(t logical.Array) (PhysicalType, error)     { return m.structured(t) }
func (m mapper) VisitObject(t logical.Object) (PhysicalType, error)   { return m.structured(t) }
func (m mapper) VisitUnion(t logical.Union) (PhysicalType, error)     { return m.structured(t) }
func (m mapper) VisitUnknown(t logical.Unknown) (PhysicalType, error) { return m.structured(t) }
