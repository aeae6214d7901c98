// Package pgfake records statements sent to a query_builder.Session and
// serves canned rows back. It is only used by tests.
package pgfake

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgx/v4"
)

type (
	Call struct {
		SQL  string
		Args []interface{}
	}

	Session struct {
		Execs   []Call
		Queries []Call

		// ExecHook, when set, decides the result of each Exec.
		ExecHook func(sql string, args []interface{}) (pgconn.CommandTag, error)
		// QueryHook, when set, decides the result of each Query. The default
		// returns no rows.
		QueryHook func(sql string, args []interface{}) (pgx.Rows, error)
	}

	// Rows serves Data row by row. Scan assigns into pointers of the value's
	// type or into anything with a pgtype-style Set method.
	Rows struct {
		pgx.Rows

		Fields []string
		Data   [][]interface{}
		Error  error

		i int
	}
)

func (s *Session) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	s.Execs = append(s.Execs, Call{SQL: sql, Args: args})
	if s.ExecHook != nil {
		return s.ExecHook(sql, args)
	}
	return pgconn.CommandTag("OK 0"), nil
}

func (s *Session) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	s.Queries = append(s.Queries, Call{SQL: sql, Args: args})
	if s.QueryHook != nil {
		return s.QueryHook(sql, args)
	}
	return NewRows(nil), nil
}

func (s *Session) ExecSQL() []string {
	out := make([]string, len(s.Execs))
	for i, c := range s.Execs {
		out[i] = c.SQL
	}
	return out
}

func NewRows(fields []string, data ...[]interface{}) *Rows {
	return &Rows{Fields: fields, Data: data}
}

func (r *Rows) Next() bool {
	if r.i >= len(r.Data) {
		return false
	}
	r.i++
	return true
}

func (r *Rows) Scan(dest ...interface{}) error {
	if r.i == 0 || r.i > len(r.Data) {
		return errors.New("scan called without a current row")
	}
	row := r.Data[r.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan got %d destinations for %d values", len(dest), len(row))
	}
	for i, d := range dest {
		if d == nil {
			continue
		}
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, src interface{}) error {
	if setter, ok := dest.(interface{ Set(interface{}) error }); ok {
		return setter.Set(src)
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	if src == nil {
		dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	if !sv.Type().AssignableTo(dv.Elem().Type()) {
		return fmt.Errorf("cannot assign %T to %T", src, dest)
	}
	dv.Elem().Set(sv)
	return nil
}

func (r *Rows) FieldDescriptions() []pgproto3.FieldDescription {
	out := make([]pgproto3.FieldDescription, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = pgproto3.FieldDescription{Name: []byte(f)}
	}
	return out
}

func (r *Rows) Close() {}

func (r *Rows) Err() error {
	return r.Error
}

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.CommandTag(fmt.Sprintf("SELECT %d", len(r.Data)))
}
