package decoder

import (
	"fmt"
	"strings"
	"time"

	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/danthegoodman1/tablesync/utils"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"
)

// timetz is scanned as text; PostgreSQL prints whole-hour offsets without
// minutes.
var timeWithTimezoneLayouts = []string{
	"15:04:05.999999Z07:00",
	"15:04:05.999999Z07",
	"15:04:05.999999Z07:00:00",
}

type Decoder struct {
	layout *table.Layout
}

func New(layout *table.Layout) *Decoder {
	return &Decoder{layout: layout}
}

// target is a scan destination plus the conversion back to a logical value.
type target struct {
	dest    interface{}
	convert func() (logical.Value, error)
}

// Decode reads the current row into an ordered mapping of the schema's
// declared columns. Reserved metadata columns and columns the schema does
// not know are skipped.
func (d *Decoder) Decode(rows pgx.Rows, schema table.Schema) (*logical.ObjectValue, error) {
	rec, err := d.decode(rows, schema, false)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// DecodeRecord is Decode plus the reserved metadata columns.
func (d *Decoder) DecodeRecord(rows pgx.Rows, schema table.Schema) (table.Record, error) {
	return d.decode(rows, schema, true)
}

func (d *Decoder) decode(rows pgx.Rows, schema table.Schema, withMeta bool) (table.Record, error) {
	var (
		rec          table.Record
		rawID        pgtype.Text
		extractedAt  pgtype.Int8
		generationID pgtype.Int8
		meta         pgtype.JSONB
	)

	fields := rows.FieldDescriptions()
	dests := make([]interface{}, len(fields))
	targets := make(map[string]target, len(fields))
	for i, fd := range fields {
		name := string(fd.Name)
		if d.layout.IsReserved(name) {
			if withMeta {
				dests[i] = d.reservedDest(name, &rawID, &extractedAt, &generationID, &meta)
			}
			continue
		}
		col, ok := schema.Column(name)
		if !ok {
			continue
		}
		t, err := logical.Visit[target](col.Type, targetBuilder{})
		if err != nil {
			return rec, err
		}
		targets[name] = t
		dests[i] = t.dest
	}

	if err := rows.Scan(dests...); err != nil {
		return rec, fmt.Errorf("error in Scan: %w", err)
	}

	rec.Data = logical.NewObject()
	for _, col := range schema.UserColumns() {
		t, ok := targets[col.Name]
		if !ok {
			continue
		}
		v, err := t.convert()
		if err != nil {
			return rec, fmt.Errorf("error decoding column %s: %w", col.Name, err)
		}
		rec.Data.Set(col.Name, v)
	}

	if withMeta {
		rec.RawID = rawID.String
		rec.ExtractedAt = extractedAt.Int
		rec.GenerationID = generationID.Int
		if meta.Status == pgtype.Present {
			if err := utils.UnmarshalJSON(meta.Bytes, &rec.Meta); err != nil {
				return rec, fmt.Errorf("error decoding meta: %w", err)
			}
		}
	}
	return rec, nil
}

func (d *Decoder) reservedDest(name string, rawID *pgtype.Text, extractedAt, generationID *pgtype.Int8, meta *pgtype.JSONB) interface{} {
	switch name {
	case d.layout.RawIDColumn:
		return rawID
	case d.layout.ExtractedAtColumn:
		return extractedAt
	case d.layout.GenerationIDColumn:
		return generationID
	}
	return meta
}

type targetBuilder struct{}

func (targetBuilder) VisitBoolean(logical.Boolean) (target, error) {
	var v pgtype.Bool
	return target{&v, func() (logical.Value, error) {
		if v.Status != pgtype.Present {
			return logical.NullValue{}, nil
		}
		return logical.BooleanValue{Value: v.Bool}, nil
	}}, nil
}

func (targetBuilder) VisitInteger(logical.Integer) (target, error) {
	var v pgtype.Int8
	return target{&v, func() (logical.Value, error) {
		if v.Status != pgtype.Present {
			return logical.NullValue{}, nil
		}
		return logical.Int(v.Int), nil
	}}, nil
}

func (targetBuilder) VisitNumber(logical.Number) (target, error) {
	var v pgtype.Numeric
	return target{&v, func() (logical.Value, error) {
		if v.Status != pgtype.Present || v.NaN || v.InfinityModifier != pgtype.None || v.Int == nil {
			return logical.NullValue{}, nil
		}
		return logical.NumberValue{Value: decimal.NewFromBigInt(v.Int, v.Exp)}, nil
	}}, nil
}

func (targetBuilder) VisitString(logical.String) (target, error) {
	var v pgtype.Text
	return target{&v, func() (logical.Value, error) {
		if v.Status != pgtype.Present {
			return logical.NullValue{}, nil
		}
		return logical.StringValue{Value: v.String}, nil
	}}, nil
}

func (targetBuilder) VisitDate(logical.Date) (target, error) {
	var v pgtype.Date
	return target{&v, func() (logical.Value, error) {
		if v.Status != pgtype.Present || v.InfinityModifier != pgtype.None {
			return logical.NullValue{}, nil
		}
		return logical.DateValue{Value: v.Time}, nil
	}}, nil
}

func (targetBuilder) VisitTimeWithTimezone(t logical.TimeWithTimezone) (target, error) {
	var v pgtype.Text
	return target{&v, func() (logical.Value, error) {
		if v.Status != pgtype.Present {
			return logical.NullValue{}, nil
		}
		s := strings.TrimSpace(v.String)
		for _, layout := range timeWithTimezoneLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return logical.TimeWithTimezoneValue{Value: parsed}, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as %s", s, t)
	}}, nil
}

func (targetBuilder) VisitTimeWithoutTimezone(logical.TimeWithoutTimezone) (target, error) {
	var v pgtype.Time
	return target{&v, func() (logical.Value, error) {
		if v.Status != pgtype.Present {
			return logical.NullValue{}, nil
		}
		midnight := time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC)
		return logical.TimeWithoutTimezoneValue{Value: midnight.Add(time.Duration(v.Microseconds) * time.Microsecond)}, nil
	}}, nil
}

func (targetBuilder) VisitTimestampWithTimezone(logical.TimestampWithTimezone) (target, error) {
	var v pgtype.Timestamptz
	return target{&v, func() (logical.Value, error) {
		if v.Status != pgtype.Present || v.InfinityModifier != pgtype.None {
			return logical.NullValue{}, nil
		}
		return logical.TimestampWithTimezoneValue{Value: v.Time}, nil
	}}, nil
}

func (targetBuilder) VisitTimestampWithoutTimezone(logical.TimestampWithoutTimezone) (target, error) {
	var v pgtype.Timestamp
	return target{&v, func() (logical.Value, error) {
		if v.Status != pgtype.Present || v.InfinityModifier != pgtype.None {
			return logical.NullValue{}, nil
		}
		return logical.TimestampWithoutTimezoneValue{Value: v.Time}, nil
	}}, nil
}

func structured(t logical.Type) (target, error) {
	var v pgtype.JSONB
	return target{&v, func() (logical.Value, error) {
		if v.Status != pgtype.Present {
			return logical.NullValue{}, nil
		}
		return logical.DeserializeAs(string(v.Bytes), t)
	}}, nil
}

func (targetBuilder) VisitArray(t logical.Array) (target, error)     { return structured(t) }
func (targetBuilder) VisitObject(t logical.Object) (target, error)   { return structured(t) }
func (targetBuilder) VisitUnion(t logical.Union) (target, error)     { return structured(t) }
func (targetBuilder) VisitUnknown(t logical.Unknown) (target, error) { return structured(t) }
