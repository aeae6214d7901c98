package binder

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/jackc/pgtype"
	shopspring "github.com/jackc/pgtype/ext/shopspring-numeric"
	"github.com/shopspring/decimal"
)

// TimeWithTimezoneLayout is the text form timetz parameters are sent in.
// pgtype has no timetz type, so these bind as plain strings.
const TimeWithTimezoneLayout = "15:04:05.999999Z07:00"

type (
	// Statement accumulates the bind arguments for a multi-row insert or
	// merge. Args holds Rows groups of one argument per schema column.
	Statement struct {
		Args []interface{}
		Rows int
	}

	Binder struct {
		Policy OverflowPolicy

		layout  *table.Layout
		bounds  Bounds
		indexed map[string]bool
	}
)

// New builds a Binder. indexed names the uniqueness key columns, whose
// strings must fit the VARCHAR key type.
func New(layout *table.Layout, policy OverflowPolicy, indexed ...string) *Binder {
	b := &Binder{
		Policy:  policy,
		layout:  layout,
		bounds:  BoundsFor(layout),
		indexed: make(map[string]bool, len(indexed)),
	}
	for _, name := range indexed {
		b.indexed[name] = true
	}
	return b
}

// Bind appends one row group for rec in schema order. Values that cannot be
// stored are bound NULL and noted in the row's meta. The meta column is bound
// last, after every other column has been processed. If Bind fails the
// statement is left exactly as it was.
func (b *Binder) Bind(stmt *Statement, rec table.Record, schema table.Schema) (err error) {
	start := len(stmt.Args)
	defer func() {
		if err != nil {
			stmt.Args = stmt.Args[:start]
		}
	}()

	meta := rec.Meta.Clone()
	metaSlot := -1
	for _, col := range schema.Columns {
		switch col.Name {
		case b.layout.RawIDColumn:
			stmt.Args = append(stmt.Args, &pgtype.Text{String: rec.RawID, Status: pgtype.Present})
			continue
		case b.layout.ExtractedAtColumn:
			stmt.Args = append(stmt.Args, &pgtype.Int8{Int: rec.ExtractedAt, Status: pgtype.Present})
			continue
		case b.layout.GenerationIDColumn:
			stmt.Args = append(stmt.Args, &pgtype.Int8{Int: rec.GenerationID, Status: pgtype.Present})
			continue
		case b.layout.MetaColumn:
			metaSlot = len(stmt.Args)
			stmt.Args = append(stmt.Args, nil)
			continue
		}

		arg, err := logical.Visit[interface{}](col.Type, &valueBinder{
			binder:  b,
			column:  col.Name,
			value:   rec.Get(col.Name),
			meta:    &meta,
			indexed: b.indexed[col.Name],
		})
		if err != nil {
			return fmt.Errorf("error binding column %s: %w", col.Name, err)
		}
		stmt.Args = append(stmt.Args, arg)
	}

	if metaSlot >= 0 {
		s, err := logical.Serialize(meta.Value())
		if err != nil {
			return fmt.Errorf("error serializing meta: %w", err)
		}
		stmt.Args[metaSlot] = &pgtype.JSONB{Bytes: []byte(s), Status: pgtype.Present}
	}
	stmt.Rows++
	return nil
}

// valueBinder converts one value into a pgx argument for its column type.
// A nil or null value becomes a NULL of the column's type.
type valueBinder struct {
	binder  *Binder
	column  string
	value   logical.Value
	meta    *table.Meta
	indexed bool
}

func (v *valueBinder) null() bool {
	return logical.IsNull(v.value)
}

// mismatch nulls a value whose variant does not match the column type.
func (v *valueBinder) mismatch() {
	v.meta.Nulled(v.column, table.ReasonDestinationSerialization)
}

func (v *valueBinder) overflow(value string) error {
	if v.binder.Policy == FailOnOverflow {
		return &OverflowError{Column: v.column, Value: value}
	}
	v.meta.Nulled(v.column, table.ReasonDestinationFieldSize)
	return nil
}

func (v *valueBinder) VisitBoolean(logical.Boolean) (interface{}, error) {
	null := &pgtype.Bool{Status: pgtype.Null}
	if v.null() {
		return null, nil
	}
	bv, ok := v.value.(logical.BooleanValue)
	if !ok {
		v.mismatch()
		return null, nil
	}
	return &pgtype.Bool{Bool: bv.Value, Status: pgtype.Present}, nil
}

func (v *valueBinder) VisitInteger(logical.Integer) (interface{}, error) {
	null := &pgtype.Int8{Status: pgtype.Null}
	if v.null() {
		return null, nil
	}
	iv, ok := v.value.(logical.IntegerValue)
	if !ok {
		v.mismatch()
		return null, nil
	}
	i, ok := v.binder.bounds.Integer(iv.Value)
	if !ok {
		return null, v.overflow(iv.Value.String())
	}
	return &pgtype.Int8{Int: i, Status: pgtype.Present}, nil
}

func (v *valueBinder) VisitNumber(logical.Number) (interface{}, error) {
	null := &shopspring.Numeric{Status: pgtype.Null}
	if v.null() {
		return null, nil
	}
	var d decimal.Decimal
	switch nv := v.value.(type) {
	case logical.NumberValue:
		d = nv.Value
	case logical.IntegerValue:
		d = decimal.NewFromBigInt(nv.Value, 0)
	default:
		v.mismatch()
		return null, nil
	}
	r, ok := v.binder.bounds.Number(d)
	if !ok {
		return null, v.overflow(d.String())
	}
	return &shopspring.Numeric{Decimal: r, Status: pgtype.Present}, nil
}

func (v *valueBinder) VisitString(logical.String) (interface{}, error) {
	null := &pgtype.Text{Status: pgtype.Null}
	if v.null() {
		return null, nil
	}
	sv, ok := v.value.(logical.StringValue)
	if !ok {
		v.mismatch()
		return null, nil
	}
	// the VARCHAR cast would silently truncate
	if v.indexed && !v.binder.bounds.IndexedString(sv.Value) {
		return null, v.overflow(fmt.Sprintf("of %d characters", utf8.RuneCountInString(sv.Value)))
	}
	return &pgtype.Text{String: sv.Value, Status: pgtype.Present}, nil
}

func (v *valueBinder) VisitDate(logical.Date) (interface{}, error) {
	null := &pgtype.Date{Status: pgtype.Null}
	if v.null() {
		return null, nil
	}
	dv, ok := v.value.(logical.DateValue)
	if !ok {
		v.mismatch()
		return null, nil
	}
	t := dv.Value
	return &pgtype.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Status: pgtype.Present}, nil
}

func (v *valueBinder) VisitTimeWithTimezone(logical.TimeWithTimezone) (interface{}, error) {
	if v.null() {
		return nil, nil
	}
	tv, ok := v.value.(logical.TimeWithTimezoneValue)
	if !ok {
		v.mismatch()
		return nil, nil
	}
	return tv.Value.Format(TimeWithTimezoneLayout), nil
}

func (v *valueBinder) VisitTimeWithoutTimezone(logical.TimeWithoutTimezone) (interface{}, error) {
	null := &pgtype.Time{Status: pgtype.Null}
	if v.null() {
		return null, nil
	}
	tv, ok := v.value.(logical.TimeWithoutTimezoneValue)
	if !ok {
		v.mismatch()
		return null, nil
	}
	t := tv.Value
	micros := int64(t.Hour())*int64(time.Hour/time.Microsecond) +
		int64(t.Minute())*int64(time.Minute/time.Microsecond) +
		int64(t.Second())*int64(time.Second/time.Microsecond) +
		int64(t.Nanosecond())/int64(time.Microsecond)
	return &pgtype.Time{Microseconds: micros, Status: pgtype.Present}, nil
}

func (v *valueBinder) VisitTimestampWithTimezone(logical.TimestampWithTimezone) (interface{}, error) {
	null := &pgtype.Timestamptz{Status: pgtype.Null}
	if v.null() {
		return null, nil
	}
	tv, ok := v.value.(logical.TimestampWithTimezoneValue)
	if !ok {
		v.mismatch()
		return null, nil
	}
	return &pgtype.Timestamptz{Time: tv.Value, Status: pgtype.Present}, nil
}

func (v *valueBinder) VisitTimestampWithoutTimezone(logical.TimestampWithoutTimezone) (interface{}, error) {
	null := &pgtype.Timestamp{Status: pgtype.Null}
	if v.null() {
		return null, nil
	}
	tv, ok := v.value.(logical.TimestampWithoutTimezoneValue)
	if !ok {
		v.mismatch()
		return null, nil
	}
	ts := &pgtype.Timestamp{}
	// keeps the wall clock and drops the zone
	if err := ts.Set(tv.Value); err != nil {
		return nil, fmt.Errorf("error in Timestamp.Set: %w", err)
	}
	return ts, nil
}

// structured serializes any value into a JSONB document.
func (v *valueBinder) structured() (interface{}, error) {
	if v.null() {
		return &pgtype.JSONB{Status: pgtype.Null}, nil
	}
	s, err := logical.Serialize(v.value)
	if err != nil {
		return nil, err
	}
	return &pgtype.JSONB{Bytes: []byte(s), Status: pgtype.Present}, nil
}

func (v *valueBinder) VisitArray(logical.Array) (interface{}, error)     { return v.structured() }
func (v *valueBinder) VisitObject(logical.Object) (interface{}, error)   { return v.structured() }
func (v *valueBinder) VisitUnion(logical.Union) (interface{}, error)     { return v.structured() }
func (v *valueBinder) VisitUnknown(logical.Unknown) (interface{}, error) { return v.structured() }
