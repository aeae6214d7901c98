package parquet_accumulator

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/table"
)

type (
	// ParquetSchemaAccumulator collects columns into a parquet-go JSON schema.
	ParquetSchemaAccumulator struct {
		schema ParquetSchema
	}

	ParquetSchema struct {
		TagStructs SchemaTag        `json:"-,omitempty"`
		Fields     []*ParquetSchema `json:",omitempty"`
	}

	ParquetJSONSchema struct {
		Tag    string               `json:",omitempty"`
		Fields []*ParquetJSONSchema `json:",omitempty"`
	}

	SchemaTag struct {
		Name           string         `json:"name,omitempty"`
		Type           string         `json:"type,omitempty"`
		ConvertedType  string         `json:"convertedtype,omitempty"`
		RepetitionType RepetitionType `json:"repetitiontype,omitempty"`
		Encoding       string         `json:"encoding,omitempty"`
	}

	RepetitionType string
)

var (
	Optional RepetitionType = "OPTIONAL"
	Required RepetitionType = "REQUIRED"
)

func NewParquetAccumulator() ParquetSchemaAccumulator {
	return ParquetSchemaAccumulator{
		schema: ParquetSchema{
			TagStructs: SchemaTag{
				Name:           "parquet_go_root",
				RepetitionType: Required,
			},
		},
	}
}

// ForSchema accumulates every column of schema in order. The metadata
// columns are required, declared columns are optional.
func ForSchema(schema table.Schema) ParquetSchemaAccumulator {
	pa := NewParquetAccumulator()
	layout := schema.Layout()
	for _, col := range schema.Columns {
		pa.AddColumn(col.Name, col.Type, !layout.IsReserved(col.Name))
	}
	return pa
}

// AddColumn appends a column unless one with the same name exists.
func (pa *ParquetSchemaAccumulator) AddColumn(name string, t logical.Type, optional bool) {
	if pa.fieldExists(name) {
		return
	}
	tag, _ := logical.Visit[SchemaTag](t, tagger{})
	tag.Name = name
	tag.RepetitionType = Required
	if optional {
		tag.RepetitionType = Optional
	}
	pa.schema.Fields = append(pa.schema.Fields, &ParquetSchema{TagStructs: tag})
}

func (pa *ParquetSchemaAccumulator) fieldExists(fieldName string) (exists bool) {
	for _, field := range pa.schema.Fields {
		if field.TagStructs.Name == fieldName {
			return true
		}
	}
	return
}

func (pa *ParquetSchemaAccumulator) GetColumnNames() []string {
	var cols []string
	for _, field := range pa.schema.Fields {
		cols = append(cols, field.TagStructs.Name)
	}
	return cols
}

// GetType names the parquet representation of the column.
func (ps *ParquetSchema) GetType() string {
	if ps.TagStructs.ConvertedType != "" {
		return strings.ToLower(ps.TagStructs.ConvertedType)
	}
	return strings.ToLower(ps.TagStructs.Type)
}

// GetColumnTypes returns the column types in the same order as
// GetColumnNames.
func (pa *ParquetSchemaAccumulator) GetColumnTypes() []string {
	var cols []string
	for _, field := range pa.schema.Fields {
		cols = append(cols, field.GetType())
	}
	return cols
}

// ToParquetJSONSchema recursively converts
func (ps *ParquetSchema) ToParquetJSONSchema() *ParquetJSONSchema {
	var tagArr []string
	if ps.TagStructs.Type != "" {
		tagArr = append(tagArr, "type="+ps.TagStructs.Type)
	}
	if ps.TagStructs.ConvertedType != "" {
		tagArr = append(tagArr, "convertedtype="+ps.TagStructs.ConvertedType)
	}
	if ps.TagStructs.Encoding != "" {
		tagArr = append(tagArr, "encoding="+ps.TagStructs.Encoding)
	}
	if ps.TagStructs.Name != "" {
		tagArr = append(tagArr, "name="+ps.TagStructs.Name)
	}
	if string(ps.TagStructs.RepetitionType) != "" {
		tagArr = append(tagArr, "repetitiontype="+string(ps.TagStructs.RepetitionType))
	}
	var fields []*ParquetJSONSchema
	for _, field := range ps.Fields {
		fields = append(fields, field.ToParquetJSONSchema())
	}
	return &ParquetJSONSchema{
		Tag:    strings.Join(tagArr, ", "),
		Fields: fields,
	}
}

// GetSchemaString returns the JSON formatted schema string
func (pa *ParquetSchemaAccumulator) GetSchemaString() (string, error) {
	var fields []*ParquetJSONSchema
	for _, field := range pa.schema.Fields {
		fields = append(fields, field.ToParquetJSONSchema())
	}
	pjs := ParquetJSONSchema{
		Tag:    "name=parquet_go_root, repetitiontype=REQUIRED",
		Fields: fields,
	}

	s, err := sonic.MarshalString(pjs)
	if err != nil {
		return "", fmt.Errorf("error in sonic.MarshalString: %w", err)
	}
	return s, nil
}

func utf8Tag() SchemaTag {
	return SchemaTag{Type: "BYTE_ARRAY", ConvertedType: "UTF8", Encoding: "PLAIN"}
}

// tagger picks the physical parquet type for a logical type. Anything
// without a lossless native parquet form is stored as text.
type tagger struct{}

func (tagger) VisitBoolean(logical.Boolean) (SchemaTag, error) {
	return SchemaTag{Type: "BOOLEAN"}, nil
}

func (tagger) VisitInteger(logical.Integer) (SchemaTag, error) {
	return SchemaTag{Type: "INT64"}, nil
}

func (tagger) VisitNumber(logical.Number) (SchemaTag, error) { return utf8Tag(), nil }
func (tagger) VisitString(logical.String) (SchemaTag, error) { return utf8Tag(), nil }

func (tagger) VisitDate(logical.Date) (SchemaTag, error) {
	return SchemaTag{Type: "INT32", ConvertedType: "DATE"}, nil
}

func (tagger) VisitTimeWithTimezone(logical.TimeWithTimezone) (SchemaTag, error) {
	return utf8Tag(), nil
}

func (tagger) VisitTimeWithoutTimezone(logical.TimeWithoutTimezone) (SchemaTag, error) {
	return SchemaTag{Type: "INT64", ConvertedType: "TIME_MICROS"}, nil
}

func (tagger) VisitTimestampWithTimezone(logical.TimestampWithTimezone) (SchemaTag, error) {
	return SchemaTag{Type: "INT64", ConvertedType: "TIMESTAMP_MICROS"}, nil
}

func (tagger) VisitTimestampWithoutTimezone(logical.TimestampWithoutTimezone) (SchemaTag, error) {
	return utf8Tag(), nil
}

func jsonTag() SchemaTag {
	return SchemaTag{Type: "BYTE_ARRAY", ConvertedType: "JSON", Encoding: "PLAIN"}
}

func (tagger) VisitArray(logical.Array) (SchemaTag, error)     { return jsonTag(), nil }
func (tagger) VisitObject(logical.Object) (SchemaTag, error)   { return jsonTag(), nil }
func (tagger) VisitUnion(logical.Union) (SchemaTag, error)     { return jsonTag(), nil }
func (tagger) VisitUnknown(logical.Unknown) (SchemaTag, error) { return jsonTag(), nil }
