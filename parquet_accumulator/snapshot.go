package parquet_accumulator

import (
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/xitongsys/parquet-go/writer"
)

const writerParallelism = 4

var (
	epoch    = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	snapJSON = sonic.Config{UseNumber: true}.Froze()
)

// WriteSnapshot encodes records as a parquet file on w, one row per record
// with the schema's columns. It returns the number of rows written.
func WriteSnapshot(w io.Writer, schema table.Schema, records []table.Record) (int64, error) {
	pa := ForSchema(schema)
	schemaString, err := pa.GetSchemaString()
	if err != nil {
		return 0, err
	}

	pw, err := writer.NewJSONWriterFromWriter(schemaString, w, writerParallelism)
	if err != nil {
		return 0, fmt.Errorf("error in NewJSONWriterFromWriter: %w", err)
	}

	var n int64
	for _, rec := range records {
		row, err := SnapshotRow(schema, rec)
		if err != nil {
			return n, err
		}
		b, err := snapJSON.MarshalToString(row)
		if err != nil {
			return n, fmt.Errorf("error in MarshalToString: %w", err)
		}
		if err := pw.Write(b); err != nil {
			return n, fmt.Errorf("error writing parquet row: %w", err)
		}
		n++
	}

	if err := pw.WriteStop(); err != nil {
		return n, fmt.Errorf("error in WriteStop: %w", err)
	}
	return n, nil
}

// SnapshotRow renders rec as the JSON object the parquet JSON writer expects
// for schema. Null and absent values are omitted.
func SnapshotRow(schema table.Schema, rec table.Record) (map[string]any, error) {
	layout := schema.Layout()
	meta, err := logical.Serialize(rec.Meta.Value())
	if err != nil {
		return nil, err
	}
	row := map[string]any{
		layout.RawIDColumn:        rec.RawID,
		layout.ExtractedAtColumn:  rec.ExtractedAt,
		layout.MetaColumn:         meta,
		layout.GenerationIDColumn: rec.GenerationID,
	}
	for _, col := range schema.UserColumns() {
		v := rec.Get(col.Name)
		if logical.IsNull(v) {
			continue
		}
		out, err := logical.Visit[any](col.Type, cell{value: v})
		if err != nil {
			return nil, fmt.Errorf("error converting column %s: %w", col.Name, err)
		}
		if out != nil {
			row[col.Name] = out
		}
	}
	return row, nil
}

// cell converts a value to the JSON form of its parquet column. A value that
// does not match the column type is left out.
type cell struct {
	value logical.Value
}

func (c cell) text() (any, error) {
	if s, ok := c.value.(logical.StringValue); ok {
		return s.Value, nil
	}
	j := logical.ToJSON(c.value)
	if s, ok := j.(string); ok {
		return s, nil
	}
	return logical.Serialize(c.value)
}

func (c cell) VisitBoolean(logical.Boolean) (any, error) {
	if b, ok := c.value.(logical.BooleanValue); ok {
		return b.Value, nil
	}
	return nil, nil
}

func (c cell) VisitInteger(logical.Integer) (any, error) {
	if i, ok := c.value.(logical.IntegerValue); ok && i.Value.IsInt64() {
		return i.Value.Int64(), nil
	}
	return nil, nil
}

func (c cell) VisitNumber(logical.Number) (any, error) { return c.text() }
func (c cell) VisitString(logical.String) (any, error) { return c.text() }

func (c cell) VisitDate(logical.Date) (any, error) {
	d, ok := c.value.(logical.DateValue)
	if !ok {
		return nil, nil
	}
	day := time.Date(d.Value.Year(), d.Value.Month(), d.Value.Day(), 0, 0, 0, 0, time.UTC)
	return int32(day.Sub(epoch) / (24 * time.Hour)), nil
}

func (c cell) VisitTimeWithTimezone(logical.TimeWithTimezone) (any, error) { return c.text() }

func (c cell) VisitTimeWithoutTimezone(logical.TimeWithoutTimezone) (any, error) {
	t, ok := c.value.(logical.TimeWithoutTimezoneValue)
	if !ok {
		return nil, nil
	}
	midnight := time.Date(t.Value.Year(), t.Value.Month(), t.Value.Day(), 0, 0, 0, 0, t.Value.Location())
	return t.Value.Sub(midnight).Microseconds(), nil
}

func (c cell) VisitTimestampWithTimezone(logical.TimestampWithTimezone) (any, error) {
	t, ok := c.value.(logical.TimestampWithTimezoneValue)
	if !ok {
		return nil, nil
	}
	return t.Value.UnixMicro(), nil
}

func (c cell) VisitTimestampWithoutTimezone(logical.TimestampWithoutTimezone) (any, error) {
	return c.text()
}

func (c cell) structured() (any, error) {
	return logical.Serialize(c.value)
}

func (c cell) VisitArray(logical.Array) (any, error)     { return c.structured() }
func (c cell) VisitObject(logical.Object) (any, error)   { return c.structured() }
func (c cell) VisitUnion(logical.Union) (any, error)     { return c.structured() }
func (c cell) VisitUnknown(logical.Unknown) (any, error) { return c.structured() }
