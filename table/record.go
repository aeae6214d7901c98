package table

import (
	"errors"
	"time"

	"github.com/danthegoodman1/tablesync/logical"
	"github.com/google/uuid"
)

const (
	ChangeNulled = "NULLED"

	ReasonDestinationFieldSize     = "DESTINATION_FIELD_SIZE_LIMITATION"
	ReasonDestinationSerialization = "DESTINATION_SERIALIZATION_ERROR"
	ReasonDestinationTypecast      = "DESTINATION_TYPECAST_ERROR"
)

type (
	Record struct {
		RawID        string
		ExtractedAt  int64
		GenerationID int64
		// Data holds the declared columns. Absent and NullValue entries are both
		// null.
		Data *logical.ObjectValue
		Meta Meta
	}

	// Meta is stored in the meta column. A record without changes serializes
	// to an empty object.
	Meta struct {
		SyncID  int64    `json:"sync_id,omitempty"`
		Changes []Change `json:"changes,omitempty"`
	}

	Change struct {
		Field  string `json:"field"`
		Change string `json:"change"`
		Reason string `json:"reason"`
	}
)

func NewRecord(data *logical.ObjectValue, generationID int64) Record {
	if data == nil {
		data = logical.NewObject()
	}
	return Record{
		RawID:        uuid.NewString(),
		ExtractedAt:  time.Now().UnixMilli(),
		GenerationID: generationID,
		Data:         data,
	}
}

// RecordFromJSON coerces a decoded JSON row into a record for schema. Values
// that do not coerce to their column type are nulled and noted in the meta.
// Keys that are not schema columns are dropped.
func RecordFromJSON(schema Schema, row map[string]any, generationID int64) Record {
	rec := NewRecord(nil, generationID)
	for _, col := range schema.UserColumns() {
		raw, exists := row[col.Name]
		if !exists {
			continue
		}
		v, err := logical.Coerce(raw, col.Type)
		if err != nil {
			if !errors.Is(err, logical.ErrCoercion) {
				logger.Warn().Err(err).Str("column", col.Name).Msg("unexpected coercion error")
			}
			rec.Meta.Nulled(col.Name, ReasonDestinationTypecast)
			v = logical.NullValue{}
		}
		rec.Data.Set(col.Name, v)
	}
	return rec
}

func (r Record) Get(name string) logical.Value {
	return r.Data.Get(name)
}

// Nulled records that field was replaced with null for reason.
func (m *Meta) Nulled(field, reason string) {
	m.Changes = append(m.Changes, Change{Field: field, Change: ChangeNulled, Reason: reason})
}

func (m Meta) Clone() Meta {
	out := Meta{SyncID: m.SyncID}
	if m.Changes != nil {
		out.Changes = append([]Change(nil), m.Changes...)
	}
	return out
}

// Value renders the meta as a logical object with the same shape as its JSON.
func (m Meta) Value() *logical.ObjectValue {
	obj := logical.NewObject()
	if m.SyncID != 0 {
		obj.Set("sync_id", logical.Int(m.SyncID))
	}
	if len(m.Changes) > 0 {
		changes := logical.ArrayValue{Values: make([]logical.Value, len(m.Changes))}
		for i, c := range m.Changes {
			changes.Values[i] = logical.NewObject().
				Set("field", logical.Str(c.Field)).
				Set("change", logical.Str(c.Change)).
				Set("reason", logical.Str(c.Reason))
		}
		obj.Set("changes", changes)
	}
	return obj
}
