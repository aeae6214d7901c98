package table

import (
	"strings"

	"github.com/danthegoodman1/tablesync/gologger"
	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/utils"
)

var logger = gologger.NewComponentLogger("table")

type (
	Column struct {
		Name     string
		Type     logical.Type
		Nullable bool
	}

	// Schema is the full destination column list: the four reserved metadata
	// columns first, then the declared stream columns. It is computed once per
	// sync session and never mutated.
	Schema struct {
		Columns []Column

		layout *Layout
	}

	// Stream describes one destination table and how records are loaded into
	// it.
	Stream struct {
		Namespace string
		Name      string
		Mode      ImportMode
		Fields    []logical.Field
	}
)

// NewSchema builds the destination schema for fields. Declared fields that
// reuse a reserved name are a ConfigError, as are duplicate names.
func NewSchema(layout *Layout, fields []logical.Field) (Schema, error) {
	cols := []Column{
		{Name: layout.RawIDColumn, Type: logical.String{}},
		{Name: layout.ExtractedAtColumn, Type: logical.Integer{}},
		{Name: layout.MetaColumn, Type: logical.Object{}},
		{Name: layout.GenerationIDColumn, Type: logical.Integer{}},
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return Schema{}, utils.NewConfigError("empty column name")
		}
		if layout.IsReserved(f.Name) {
			return Schema{}, utils.NewConfigError("column %s is reserved", f.Name)
		}
		if seen[f.Name] {
			return Schema{}, utils.NewConfigError("duplicate column %s", f.Name)
		}
		seen[f.Name] = true
		cols = append(cols, Column{Name: f.Name, Type: f.Type, Nullable: f.Nullable})
	}
	return Schema{Columns: cols, layout: layout}, nil
}

func (s Schema) Layout() *Layout {
	return s.layout
}

func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// UserColumns is every column except the reserved metadata columns.
func (s Schema) UserColumns() []Column {
	var cols []Column
	for _, c := range s.Columns {
		if !s.layout.IsReserved(c.Name) {
			cols = append(cols, c)
		}
	}
	return cols
}

func (s Schema) HasCdc() bool {
	_, ok := s.Column(s.layout.CdcDeletedAtColumn)
	return ok
}

// FQName is the dotted namespace.table name used to derive index names.
func (s Stream) FQName() string {
	return s.Namespace + "." + s.Name
}

// UniquenessKey is the set of columns rows are deduplicated on. It is empty
// unless the stream is loaded in Dedupe mode.
func (s Stream) UniquenessKey() []string {
	d, ok := s.Mode.(Dedupe)
	if !ok {
		return nil
	}
	if len(d.PrimaryKey) > 0 {
		key := make([]string, len(d.PrimaryKey))
		for i, path := range d.PrimaryKey {
			key[i] = strings.Join(path, ".")
		}
		return key
	}
	if len(d.Cursor) > 0 {
		return []string{strings.Join(d.Cursor, ".")}
	}
	return nil
}

// Validate checks the mode and key against the schema before any I/O.
func (s Stream) Validate(schema Schema) error {
	if s.Name == "" {
		return utils.NewConfigError("stream name is required")
	}
	if s.Mode == nil {
		return utils.NewConfigError("import mode is required")
	}
	if _, ok := s.Mode.(Dedupe); !ok {
		return nil
	}
	key := s.UniquenessKey()
	if len(key) == 0 {
		return utils.NewConfigError("dedupe requires a primary key or cursor")
	}
	for _, k := range key {
		if schema.layout.IsReserved(k) {
			return utils.NewConfigError("uniqueness key column %s is reserved", k)
		}
		if _, ok := schema.Column(k); !ok {
			return utils.NewConfigError("uniqueness key column %s is not in the schema", k)
		}
	}
	return nil
}
