package logical

import "strings"

type (
	// Declaration is the JSON form of a logical type, as supplied by a record
	// source.
	Declaration struct {
		Type       string             `json:"type" validate:"required"`
		Items      *Declaration       `json:"items,omitempty"`
		Properties []FieldDeclaration `json:"properties,omitempty"`
		Options    []Declaration      `json:"options,omitempty"`
	}

	FieldDeclaration struct {
		Name     string `json:"name" validate:"required"`
		Nullable bool   `json:"nullable"`
		Declaration
	}
)

// Resolve converts a declaration into a Type. Names that are not recognized
// resolve to Unknown rather than failing, so a source can always be loaded.
func (d Declaration) Resolve() Type {
	switch strings.ToLower(strings.TrimSpace(d.Type)) {
	case "boolean", "bool":
		return Boolean{}
	case "integer", "int", "bigint":
		return Integer{}
	case "number", "decimal", "numeric":
		return Number{}
	case "string", "text":
		return String{}
	case "date":
		return Date{}
	case "time_with_timezone":
		return TimeWithTimezone{}
	case "time_without_timezone", "time":
		return TimeWithoutTimezone{}
	case "timestamp_with_timezone", "timestamptz":
		return TimestampWithTimezone{}
	case "timestamp_without_timezone", "timestamp":
		return TimestampWithoutTimezone{}
	case "array":
		if d.Items == nil {
			return Array{}
		}
		return Array{Items: d.Items.Resolve()}
	case "object":
		if d.Properties == nil {
			return Object{}
		}
		props := make([]Field, len(d.Properties))
		for i, p := range d.Properties {
			props[i] = p.Resolve()
		}
		return Object{Properties: props}
	case "union":
		opts := make([]Type, len(d.Options))
		for i, o := range d.Options {
			opts[i] = o.Resolve()
		}
		return Union{Options: opts}
	}
	return Unknown{Raw: d.Type}
}

func (f FieldDeclaration) Resolve() Field {
	return Field{
		Name:     f.Name,
		Type:     f.Declaration.Resolve(),
		Nullable: f.Nullable,
	}
}
