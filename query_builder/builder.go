package query_builder

import (
	"github.com/danthegoodman1/tablesync/gologger"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/danthegoodman1/tablesync/type_mapper"
)

var logger = gologger.NewComponentLogger("query_builder")

type (
	// QueryBuilder renders and runs the statements for one stream. All of its
	// inputs are fixed at construction, so it can be shared for a whole sync
	// session.
	QueryBuilder struct {
		Namespace string
		Table     string

		layout        *table.Layout
		stream        table.Stream
		schema        table.Schema
		uniquenessKey []string
		expected      []PhysicalColumn
	}

	PhysicalColumn struct {
		Name string
		Type type_mapper.PhysicalType
	}
)

// New resolves the destination schema and its physical types. Every
// configuration problem is reported here, before any statement runs.
func New(layout *table.Layout, defaultNamespace string, stream table.Stream) (*QueryBuilder, error) {
	if stream.Namespace == "" {
		stream.Namespace = defaultNamespace
	}
	schema, err := table.NewSchema(layout, stream.Fields)
	if err != nil {
		return nil, err
	}
	if err := stream.Validate(schema); err != nil {
		return nil, err
	}

	qb := &QueryBuilder{
		Namespace:     stream.Namespace,
		Table:         stream.Name,
		layout:        layout,
		stream:        stream,
		schema:        schema,
		uniquenessKey: stream.UniquenessKey(),
	}

	indexed := make(map[string]bool, len(qb.uniquenessKey))
	for _, k := range qb.uniquenessKey {
		indexed[k] = true
	}
	for _, col := range schema.Columns {
		pt, err := type_mapper.ConvertColumn(col.Name, col.Type, indexed[col.Name])
		if err != nil {
			return nil, err
		}
		qb.expected = append(qb.expected, PhysicalColumn{Name: col.Name, Type: pt})
	}
	return qb, nil
}

func (qb *QueryBuilder) Schema() table.Schema {
	return qb.schema
}

func (qb *QueryBuilder) Stream() table.Stream {
	return qb.stream
}

func (qb *QueryBuilder) Layout() *table.Layout {
	return qb.layout
}

func (qb *QueryBuilder) UniquenessKey() []string {
	return qb.uniquenessKey
}

// ExpectedSchema is the physical column list in schema order.
func (qb *QueryBuilder) ExpectedSchema() []PhysicalColumn {
	return qb.expected
}

func (qb *QueryBuilder) fqName() string {
	return qb.Namespace + "." + qb.Table
}
