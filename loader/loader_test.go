package loader

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"testing"

	"github.com/danthegoodman1/tablesync/binder"
	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/pgfake"
	"github.com/danthegoodman1/tablesync/query_template"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

func usersStream(mode table.ImportMode) table.Stream {
	return table.Stream{
		Namespace: "public",
		Name:      "users",
		Mode:      mode,
		Fields: []logical.Field{
			{Name: "id", Type: logical.Integer{}},
			{Name: "name", Type: logical.String{}, Nullable: true},
		},
	}
}

// newSync wires a Sync to a fake session whose table already matches the
// stream.
func newSync(t *testing.T, mode table.ImportMode, opts Options) (*Sync, *pgfake.Session) {
	t.Helper()
	sess := &pgfake.Session{
		ExecHook: func(sql string, args []interface{}) (pgconn.CommandTag, error) {
			if len(args) > 0 {
				return pgconn.CommandTag("INSERT 0 " + strconv.Itoa(len(args)/6)), nil
			}
			return pgconn.CommandTag("OK 0"), nil
		},
	}
	s, err := New(sess, table.DefaultLayout(), usersStream(mode), opts)
	if err != nil {
		t.Fatal(err)
	}
	sess.QueryHook = func(sql string, args []interface{}) (pgx.Rows, error) {
		rows := pgfake.NewRows([]string{"column_name", "data_type"})
		if sql == query_template.ExistingSchema {
			for _, c := range s.QueryBuilder().ExpectedSchema() {
				rows.Data = append(rows.Data, []interface{}{c.Name, c.Type.Name})
			}
		}
		return rows, nil
	}
	return s, sess
}

func records(ids ...int64) []table.Record {
	out := make([]table.Record, len(ids))
	for i, id := range ids {
		out[i] = table.NewRecord(logical.NewObject().Set("id", logical.Int(id)).Set("name", logical.Str("n"+strconv.Itoa(i))), 0)
	}
	return out
}

func writes(sess *pgfake.Session) []pgfake.Call {
	var out []pgfake.Call
	for _, c := range sess.Execs {
		if len(c.Args) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func TestAppendLoad(t *testing.T) {
	ctx := context.Background()
	s, sess := newSync(t, table.Append{}, Options{GenerationID: 4})
	if err := s.Write(ctx, records(1, 2)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if err := s.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s.Stats.SchemaChanges) != 0 {
		t.Fatalf("matching table should need no changes, got %v", s.Stats.SchemaChanges)
	}
	if err := s.Write(ctx, records(1, 2)); err != nil {
		t.Fatal(err)
	}
	stats, err := s.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}

	w := writes(sess)
	if len(w) != 1 || len(w[0].Args) != 12 {
		t.Fatalf("expected one statement with 12 args, got %+v", w)
	}
	if !strings.HasPrefix(w[0].SQL, `INSERT INTO "public"."users"`) {
		t.Fatalf("got %s", w[0].SQL)
	}
	if stats.RecordsWritten != 2 || stats.RowsAffected != 2 || stats.Statements != 1 || stats.Deleted != 0 {
		t.Fatalf("got stats %+v", stats)
	}
	for _, sql := range sess.ExecSQL() {
		if strings.HasPrefix(sql, "DELETE") {
			t.Fatalf("append should not delete, got %s", sql)
		}
	}
}

func TestDedupeCollapsesWithinBatch(t *testing.T) {
	ctx := context.Background()
	mode := table.Dedupe{PrimaryKey: [][]string{{"id"}}}
	s, sess := newSync(t, mode, Options{})
	if err := s.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	recs := records(1, 2, 1)
	if err := s.Write(ctx, recs); err != nil {
		t.Fatal(err)
	}

	w := writes(sess)
	if len(w) != 1 || !strings.HasPrefix(w[0].SQL, `MERGE INTO "public"."users"`) {
		t.Fatalf("expected one merge, got %+v", w)
	}
	if len(w[0].Args) != 12 || s.Stats.Collapsed != 1 {
		t.Fatalf("got %d args, collapsed %d", len(w[0].Args), s.Stats.Collapsed)
	}
	// the later id=1 record wins and keeps its position
	idKey := []table.Column{{Name: "id", Type: logical.Integer{}}}
	got, _ := CollapseDuplicates(binder.New(table.DefaultLayout(), binder.NullOnOverflow), idKey, recs)
	if got[0].RawID != recs[1].RawID || got[1].RawID != recs[2].RawID {
		t.Fatalf("unexpected collapse order")
	}
}

func TestCollapseKeepsNullKeys(t *testing.T) {
	recs := []table.Record{
		table.NewRecord(logical.NewObject(), 0),
		table.NewRecord(logical.NewObject(), 0),
		table.NewRecord(logical.NewObject().Set("id", logical.Int(1)), 0),
	}
	idKey := []table.Column{{Name: "id", Type: logical.Integer{}}}
	out, dropped := CollapseDuplicates(binder.New(table.DefaultLayout(), binder.NullOnOverflow), idKey, recs)
	if len(out) != 3 || dropped != 0 {
		t.Fatalf("got %d records, dropped %d", len(out), dropped)
	}
}

func TestCollapseComparesBoundKeys(t *testing.T) {
	b := binder.New(table.DefaultLayout(), binder.FailOnOverflow, "score")
	scoreKey := []table.Column{{Name: "score", Type: logical.Number{}}}
	score := func(s string) table.Record {
		d, err := logical.ParseDecimal(s)
		if err != nil {
			t.Fatal(err)
		}
		return table.NewRecord(logical.NewObject().Set("score", logical.NumberValue{Value: d}), 0)
	}

	recs := []table.Record{score("1.0"), score("1.00"), score("1.0000000001"), score("2")}
	out, dropped := CollapseDuplicates(b, scoreKey, recs)
	if dropped != 2 || len(out) != 2 || out[0].RawID != recs[2].RawID {
		t.Fatalf("got %d records, dropped %d", len(out), dropped)
	}

	// keys over the VARCHAR limit bind NULL and are never merged together
	kKey := []table.Column{{Name: "k", Type: logical.String{}}}
	long := func(last string) table.Record {
		return table.NewRecord(logical.NewObject().Set("k", logical.Str(strings.Repeat("x", 600)+last)), 0)
	}
	out, dropped = CollapseDuplicates(binder.New(table.DefaultLayout(), binder.NullOnOverflow, "k"), kKey, []table.Record{long("a"), long("b")})
	if len(out) != 2 || dropped != 0 {
		t.Fatalf("got %d records, dropped %d", len(out), dropped)
	}
}

func TestDedupeLongStringKeys(t *testing.T) {
	ctx := context.Background()
	stream := table.Stream{
		Namespace: "public",
		Name:      "docs",
		Mode:      table.Dedupe{PrimaryKey: [][]string{{"k"}}},
		Fields:    []logical.Field{{Name: "k", Type: logical.String{}}},
	}
	sess := &pgfake.Session{}
	s, err := New(sess, table.DefaultLayout(), stream, Options{Policy: binder.FailOnOverflow})
	if err != nil {
		t.Fatal(err)
	}
	sess.QueryHook = func(sql string, args []interface{}) (pgx.Rows, error) {
		rows := pgfake.NewRows([]string{"column_name", "data_type"})
		for _, c := range s.QueryBuilder().ExpectedSchema() {
			rows.Data = append(rows.Data, []interface{}{c.Name, c.Type.Name})
		}
		return rows, nil
	}
	if err := s.Begin(ctx); err != nil {
		t.Fatal(err)
	}

	prefix := strings.Repeat("x", 600)
	recs := []table.Record{
		table.NewRecord(logical.NewObject().Set("k", logical.Str(prefix+"a")), 1),
		table.NewRecord(logical.NewObject().Set("k", logical.Str(prefix+"b")), 1),
	}
	var overflow *binder.OverflowError
	if err := s.Write(ctx, recs); !errors.As(err, &overflow) || overflow.Column != "k" {
		t.Fatalf("got %v", err)
	}
	if len(writes(sess)) != 0 {
		t.Fatal("nothing should be written")
	}
}

func TestBatchSplitting(t *testing.T) {
	ctx := context.Background()
	s, sess := newSync(t, table.Append{}, Options{MaxBatchRows: 2})
	if err := s.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, records(1, 2, 3, 4, 5)); err != nil {
		t.Fatal(err)
	}
	w := writes(sess)
	if len(w) != 3 || len(w[2].Args) != 6 {
		t.Fatalf("expected 3 statements, the last with one row, got %d", len(w))
	}

	unbounded, _ := newSync(t, table.Append{}, Options{})
	if got := unbounded.BatchSize(); got != 65535/6 {
		t.Fatalf("got batch size %d", got)
	}
}

func TestOverwriteFinishDeletesOlderGenerations(t *testing.T) {
	ctx := context.Background()
	s, sess := newSync(t, table.Overwrite{}, Options{GenerationID: 9})
	if err := s.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, records(1)); err != nil {
		t.Fatal(err)
	}
	if gen := writes(sess)[0].Args[3].(*pgtype.Int8); gen.Int != 9 {
		t.Fatalf("got generation %d", gen.Int)
	}
	if _, err := s.Finish(ctx); err != nil {
		t.Fatal(err)
	}
	sqls := sess.ExecSQL()
	want := `DELETE FROM "public"."users" WHERE "_generation_id" < 9`
	if last := sqls[len(sqls)-1]; last != want {
		t.Fatalf("got %s", last)
	}
}

func TestFailOnOverflowStopsWrite(t *testing.T) {
	ctx := context.Background()
	s, sess := newSync(t, table.Append{}, Options{Policy: binder.FailOnOverflow})
	if err := s.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	recs := records(1, 2)
	recs[1].Data.Set("id", logical.IntegerValue{Value: new(big.Int).Lsh(big.NewInt(1), 80)})
	err := s.Write(ctx, recs)
	var oe *binder.OverflowError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OverflowError, got %v", err)
	}
	if len(writes(sess)) != 0 {
		t.Fatal("nothing should be written")
	}
}

func TestReadAllAndCount(t *testing.T) {
	ctx := context.Background()
	s, sess := newSync(t, table.Append{}, Options{})
	sess.QueryHook = func(sql string, args []interface{}) (pgx.Rows, error) {
		if strings.HasPrefix(sql, "SELECT COUNT(*)") {
			return pgfake.NewRows([]string{"count"}, []interface{}{int64(2)}), nil
		}
		return pgfake.NewRows(
			[]string{"_raw_id", "_extracted_at", "_meta", "_generation_id", "id", "name"},
			[]interface{}{"r1", int64(1), `{}`, int64(0), int64(1), "a"},
			[]interface{}{"r2", int64(2), `{}`, int64(0), int64(2), nil},
		), nil
	}

	recs, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[1].RawID != "r2" || !logical.IsNull(recs[1].Get("name")) {
		t.Fatalf("got %+v", recs)
	}
	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("got count %d", count)
	}
}
