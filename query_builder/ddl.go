package query_builder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danthegoodman1/tablesync/query_template"
	"github.com/jackc/pgconn"
)

type CreateStatus int

const (
	Created CreateStatus = iota
	AlreadyExists
	Failed
)

const columnSeparator = ",\n            "

// CreateOutcome is the result of an idempotent create. Err is set only when
// Status is Failed.
type CreateOutcome struct {
	Status CreateStatus
	Err    error
}

func (s CreateStatus) String() string {
	switch s {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	}
	return "failed"
}

// EnsureNamespace creates the namespace if absent. Concurrent creators can
// race inside CREATE SCHEMA IF NOT EXISTS; the loser's error carries the
// layout's ObjectExistsCode and is reported as AlreadyExists.
func (qb *QueryBuilder) EnsureNamespace(ctx context.Context, s Session) CreateOutcome {
	q := query_template.MustPositional(query_template.CreateSchema, query_template.IdentBody(qb.Namespace))
	_, err := exec(ctx, s, q)
	if err == nil {
		return CreateOutcome{Status: Created}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == qb.layout.ObjectExistsCode {
		logger.Debug().Str("namespace", qb.Namespace).Str("code", pgErr.Code).Msg("namespace created concurrently")
		return CreateOutcome{Status: AlreadyExists}
	}
	return CreateOutcome{Status: Failed, Err: fmt.Errorf("error creating namespace %s: %w", qb.Namespace, err)}
}

// CreateIfNotExists ensures the namespace, then creates the table and its
// indexes unless the table already exists.
func (qb *QueryBuilder) CreateIfNotExists(ctx context.Context, s Session) error {
	outcome := qb.EnsureNamespace(ctx, s)
	if outcome.Status == Failed {
		return outcome.Err
	}
	q, err := qb.CreateTableQuery()
	if err != nil {
		return err
	}
	if _, err := exec(ctx, s, q); err != nil {
		return fmt.Errorf("error creating table %s: %w", qb.fqName(), err)
	}
	return nil
}

// CreateTableQuery renders the guarded CREATE TABLE. Every column is
// nullable at the physical layer.
func (qb *QueryBuilder) CreateTableQuery() (string, error) {
	cols := make([]string, len(qb.expected))
	for i, c := range qb.expected {
		cols[i] = query_template.Ident(c.Name) + " " + c.Type.SQL + " NULL"
	}

	index := ""
	if len(qb.uniquenessKey) > 0 {
		index = qb.createIndex(qb.uniquenessKey)
	}
	secondaryIndex := ""
	if qb.schema.HasCdc() {
		secondaryIndex = qb.createIndex([]string{qb.layout.CdcDeletedAtColumn})
	}

	regclass := query_template.Ident(qb.Namespace) + "." + query_template.Ident(qb.Table)
	return query_template.Named(query_template.CreateTable, map[string]string{
		query_template.RegclassKey:       query_template.LiteralBody(regclass),
		query_template.SchemaKey:         query_template.IdentBody(qb.Namespace),
		query_template.TableKey:          query_template.IdentBody(qb.Table),
		query_template.ColumnsKey:        strings.Join(cols, columnSeparator),
		query_template.IndexKey:          index,
		query_template.SecondaryIndexKey: secondaryIndex,
	})
}

func (qb *QueryBuilder) createIndex(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = query_template.Ident(c)
	}
	name := IndexName(qb.fqName(), columns, qb.layout.MaxIdentifierLength)
	return query_template.MustPositional(
		query_template.CreateIndex,
		query_template.IdentBody(name),
		query_template.IdentBody(qb.Namespace),
		query_template.IdentBody(qb.Table),
		strings.Join(quoted, ", "),
	)
}

func (qb *QueryBuilder) DropTable(ctx context.Context, s Session) error {
	q := query_template.MustPositional(query_template.DropTable, query_template.IdentBody(qb.Namespace), query_template.IdentBody(qb.Table))
	if _, err := exec(ctx, s, q); err != nil {
		return fmt.Errorf("error dropping table %s: %w", qb.fqName(), err)
	}
	return nil
}

// DeleteCdc purges rows carrying a CDC deletion marker. It returns the number
// of rows deleted.
func (qb *QueryBuilder) DeleteCdc(ctx context.Context, s Session) (int64, error) {
	q := query_template.MustPositional(
		query_template.DeleteWhereColumnNotNull,
		query_template.IdentBody(qb.Namespace),
		query_template.IdentBody(qb.Table),
		query_template.IdentBody(qb.layout.CdcDeletedAtColumn),
	)
	tag, err := exec(ctx, s, q)
	if err != nil {
		return 0, fmt.Errorf("error deleting cdc rows from %s: %w", qb.fqName(), err)
	}
	return tag.RowsAffected(), nil
}

// DeletePreviousGenerations deletes rows older than minGenerationID. It
// completes an Overwrite load.
func (qb *QueryBuilder) DeletePreviousGenerations(ctx context.Context, s Session, minGenerationID int64) (int64, error) {
	q := query_template.MustPositional(
		query_template.DeleteWhereColumnLessThan,
		query_template.IdentBody(qb.Namespace),
		query_template.IdentBody(qb.Table),
		query_template.IdentBody(qb.layout.GenerationIDColumn),
		strconv.FormatInt(minGenerationID, 10),
	)
	tag, err := exec(ctx, s, q)
	if err != nil {
		return 0, fmt.Errorf("error deleting previous generations from %s: %w", qb.fqName(), err)
	}
	return tag.RowsAffected(), nil
}
