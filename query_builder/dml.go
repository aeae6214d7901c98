package query_builder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/danthegoodman1/tablesync/query_template"
	"github.com/jackc/pgx/v4"
)

// WriteTemplate is InsertInto for Append and Overwrite and MergeInto for
// Dedupe. Overwrite's replacement is finished separately by
// DeletePreviousGenerations.
func (qb *QueryBuilder) WriteTemplate() string {
	if len(qb.uniquenessKey) == 0 {
		return query_template.InsertInto
	}
	return query_template.MergeInto
}

// UniquenessConstraint is the MERGE match predicate over the uniqueness key.
func (qb *QueryBuilder) UniquenessConstraint() string {
	preds := make([]string, len(qb.uniquenessKey))
	for i, k := range qb.uniquenessKey {
		col := query_template.Ident(k)
		preds[i] = "Target." + col + " = Source." + col
	}
	return strings.Join(preds, " AND ")
}

// ParamsPerRow is the number of bind parameters one record takes.
func (qb *QueryBuilder) ParamsPerRow() int {
	return len(qb.expected)
}

// MaxRowsPerStatement keeps a statement under the bind parameter limit.
func (qb *QueryBuilder) MaxRowsPerStatement() int {
	return qb.layout.MaxBindParameters / qb.ParamsPerRow()
}

// WriteQuery renders the insert or merge statement for rows records. Bind
// parameters are numbered row-major in schema order and carry a cast to the
// column type.
func (qb *QueryBuilder) WriteQuery(rows int) (string, error) {
	if rows < 1 {
		return "", &query_template.TemplateError{Template: qb.WriteTemplate(), Msg: "statement needs at least one row"}
	}
	if rows > qb.MaxRowsPerStatement() {
		return "", &query_template.TemplateError{
			Template: qb.WriteTemplate(),
			Msg:      fmt.Sprintf("%d rows exceed the %d parameter limit", rows, qb.layout.MaxBindParameters),
		}
	}

	cols := make([]string, len(qb.expected))
	for i, c := range qb.expected {
		cols[i] = query_template.Ident(c.Name)
	}
	columns := strings.Join(cols, ", ")

	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i, c := range qb.expected {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$" + strconv.Itoa(n) + "::" + c.Type.SQL)
			n++
		}
		b.WriteByte(')')
	}

	vars := map[string]string{
		query_template.SchemaKey:       query_template.IdentBody(qb.Namespace),
		query_template.TableKey:        query_template.IdentBody(qb.Table),
		query_template.ColumnsKey:      columns,
		query_template.TemplateRowsKey: b.String(),
	}
	if len(qb.uniquenessKey) > 0 {
		updates := make([]string, len(cols))
		sources := make([]string, len(cols))
		for i, col := range cols {
			updates[i] = col + " = Source." + col
			sources[i] = "Source." + col
		}
		vars[query_template.UniquenessConstraintKey] = qb.UniquenessConstraint()
		vars[query_template.UpdateStatementKey] = strings.Join(updates, ", ")
		vars[query_template.SourceColumnsKey] = strings.Join(sources, ", ")
	}
	return query_template.Named(qb.WriteTemplate(), vars)
}

func (qb *QueryBuilder) SelectAllQuery() string {
	return query_template.MustPositional(query_template.SelectAll, query_template.IdentBody(qb.Namespace), query_template.IdentBody(qb.Table))
}

func (qb *QueryBuilder) CountAll(ctx context.Context, s Session) (int64, error) {
	q := query_template.MustPositional(query_template.CountAll, query_template.IdentBody(qb.Namespace), query_template.IdentBody(qb.Table))
	rows, err := query(ctx, s, q)
	if err != nil {
		return 0, fmt.Errorf("error counting %s: %w", qb.fqName(), err)
	}
	defer rows.Close()
	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("error in Scan: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error counting %s: %w", qb.fqName(), err)
	}
	return count, nil
}

// SelectAll runs SelectAllQuery. The caller closes the rows.
func (qb *QueryBuilder) SelectAll(ctx context.Context, s Session) (pgx.Rows, error) {
	rows, err := query(ctx, s, qb.SelectAllQuery())
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", qb.fqName(), err)
	}
	return rows, nil
}

// ExecWrite runs the write statement for rows records bound into args and
// returns the affected row count.
func (qb *QueryBuilder) ExecWrite(ctx context.Context, s Session, rows int, args []interface{}) (int64, error) {
	if want := rows * qb.ParamsPerRow(); len(args) != want {
		return 0, fmt.Errorf("got %d args for %d rows, want %d", len(args), rows, want)
	}
	q, err := qb.WriteQuery(rows)
	if err != nil {
		return 0, err
	}
	tag, err := exec(ctx, s, q, args...)
	if err != nil {
		return 0, fmt.Errorf("error writing %s: %w", qb.fqName(), err)
	}
	return tag.RowsAffected(), nil
}
