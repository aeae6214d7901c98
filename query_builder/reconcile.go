package query_builder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danthegoodman1/tablesync/query_template"
	"github.com/danthegoodman1/tablesync/type_mapper"
	"github.com/rs/zerolog"
)

var ErrTableMissing = errors.New("table does not exist")

// Diff is the set of column changes that turn an existing physical schema
// into the expected one. Each list is sorted by column name.
type Diff struct {
	ToDrop  []string
	ToAdd   []PhysicalColumn
	ToAlter []PhysicalColumn
}

func (d Diff) Empty() bool {
	return len(d.ToDrop) == 0 && len(d.ToAdd) == 0 && len(d.ToAlter) == 0
}

// ComputeDiff compares existing and expected by name and physical type.
// Column order and nullability are ignored.
func ComputeDiff(existing, expected []PhysicalColumn) Diff {
	existingByName := make(map[string]type_mapper.PhysicalType, len(existing))
	for _, c := range existing {
		existingByName[c.Name] = c.Type
	}
	expectedByName := make(map[string]type_mapper.PhysicalType, len(expected))
	for _, c := range expected {
		expectedByName[c.Name] = c.Type
	}

	var d Diff
	for name := range existingByName {
		if _, ok := expectedByName[name]; !ok {
			d.ToDrop = append(d.ToDrop, name)
		}
	}
	for name, typ := range expectedByName {
		cur, ok := existingByName[name]
		switch {
		case !ok:
			d.ToAdd = append(d.ToAdd, PhysicalColumn{Name: name, Type: typ})
		case !cur.Equal(typ):
			d.ToAlter = append(d.ToAlter, PhysicalColumn{Name: name, Type: typ})
		}
	}

	sort.Strings(d.ToDrop)
	sort.Slice(d.ToAdd, func(i, j int) bool { return d.ToAdd[i].Name < d.ToAdd[j].Name })
	sort.Slice(d.ToAlter, func(i, j int) bool { return d.ToAlter[i].Name < d.ToAlter[j].Name })
	return d
}

// Statements renders the diff as DDL: drops, then adds, then alters. Added
// and altered columns are nullable.
func (d Diff) Statements(namespace, tableName string) []string {
	ns, tbl := query_template.IdentBody(namespace), query_template.IdentBody(tableName)
	var out []string
	for _, name := range d.ToDrop {
		out = append(out, query_template.MustPositional(query_template.AlterTableDrop, ns, tbl, query_template.IdentBody(name)))
	}
	for _, c := range d.ToAdd {
		out = append(out, query_template.MustPositional(query_template.AlterTableAdd, ns, tbl, query_template.IdentBody(c.Name), c.Type.SQL))
	}
	for _, c := range d.ToAlter {
		col := query_template.IdentBody(c.Name)
		out = append(out, query_template.MustPositional(query_template.AlterTableModify, ns, tbl, col, c.Type.SQL, col, c.Type.SQL, col))
	}
	return out
}

// ExistingSchema introspects the table's columns in ordinal order. A missing
// table has no columns.
func (qb *QueryBuilder) ExistingSchema(ctx context.Context, s Session) ([]PhysicalColumn, error) {
	rows, err := query(ctx, s, query_template.ExistingSchema, qb.Namespace, qb.Table)
	if err != nil {
		return nil, fmt.Errorf("error introspecting %s: %w", qb.fqName(), err)
	}
	defer rows.Close()

	var cols []PhysicalColumn
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, fmt.Errorf("error in Scan: %w", err)
		}
		cols = append(cols, PhysicalColumn{Name: name, Type: type_mapper.FromDataType(dataType)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return cols, nil
}

// Reconcile brings the physical table in line with the expected schema. It
// reads the physical schema fresh on every call and issues nothing when the
// schemas already match. The applied diff is returned.
func (qb *QueryBuilder) Reconcile(ctx context.Context, s Session) (Diff, error) {
	existing, err := qb.ExistingSchema(ctx, s)
	if err != nil {
		return Diff{}, err
	}
	if len(existing) == 0 {
		return Diff{}, fmt.Errorf("cannot reconcile %s: %w", qb.fqName(), ErrTableMissing)
	}

	d := ComputeDiff(existing, qb.expected)
	if d.Empty() {
		return d, nil
	}

	zerolog.Ctx(ctx).Info().
		Str("table", qb.fqName()).
		Strs("drop", d.ToDrop).
		Int("add", len(d.ToAdd)).
		Int("alter", len(d.ToAlter)).
		Msg("reconciling schema")

	// one round trip; without args pgx sends this over the simple protocol,
	// which accepts several statements
	if _, err := exec(ctx, s, strings.Join(d.Statements(qb.Namespace, qb.Table), "\n")); err != nil {
		return Diff{}, fmt.Errorf("error altering %s: %w", qb.fqName(), err)
	}
	return d, nil
}
