package binder

import (
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/jackc/pgtype"
	shopspring "github.com/jackc/pgtype/ext/shopspring-numeric"
)

func usersSchema(t *testing.T, extra ...logical.Field) table.Schema {
	t.Helper()
	fields := append([]logical.Field{
		{Name: "id", Type: logical.Integer{}},
		{Name: "name", Type: logical.String{}, Nullable: true},
	}, extra...)
	s, err := table.NewSchema(table.DefaultLayout(), fields)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func record(id logical.Value, name string) table.Record {
	rec := table.NewRecord(logical.NewObject().Set("id", id).Set("name", logical.Str(name)), 5)
	return rec
}

func metaOf(t *testing.T, arg interface{}) string {
	t.Helper()
	j, ok := arg.(*pgtype.JSONB)
	if !ok || j.Status != pgtype.Present {
		t.Fatalf("meta arg is %#v", arg)
	}
	return string(j.Bytes)
}

func TestBindTwoRows(t *testing.T) {
	schema := usersSchema(t)
	b := New(table.DefaultLayout(), NullOnOverflow)
	var stmt Statement

	for i, name := range []string{"a", "b"} {
		if err := b.Bind(&stmt, record(logical.Int(int64(i+1)), name), schema); err != nil {
			t.Fatal(err)
		}
	}
	if stmt.Rows != 2 || len(stmt.Args) != 12 {
		t.Fatalf("got %d rows, %d args", stmt.Rows, len(stmt.Args))
	}
	for row := 0; row < 2; row++ {
		args := stmt.Args[row*6 : row*6+6]
		if raw := args[0].(*pgtype.Text); raw.Status != pgtype.Present || raw.String == "" {
			t.Fatalf("raw id not populated: %#v", raw)
		}
		if ext := args[1].(*pgtype.Int8); ext.Status != pgtype.Present || ext.Int == 0 {
			t.Fatalf("extracted at not populated: %#v", ext)
		}
		if m := metaOf(t, args[2]); m != "{}" {
			t.Fatalf("got meta %s", m)
		}
		if gen := args[3].(*pgtype.Int8); gen.Int != 5 {
			t.Fatalf("got generation %d", gen.Int)
		}
		if id := args[4].(*pgtype.Int8); id.Int != int64(row+1) {
			t.Fatalf("got id %d", id.Int)
		}
	}
	if name := stmt.Args[11].(*pgtype.Text); name.String != "b" {
		t.Fatalf("got name %s", name.String)
	}
}

func TestBindIntegerOverflowNullsColumn(t *testing.T) {
	schema := usersSchema(t)
	b := New(table.DefaultLayout(), NullOnOverflow)
	var stmt Statement

	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	if err := b.Bind(&stmt, record(logical.IntegerValue{Value: huge}, "kept"), schema); err != nil {
		t.Fatalf("overflow should not raise: %s", err)
	}
	if id := stmt.Args[4].(*pgtype.Int8); id.Status != pgtype.Null {
		t.Fatalf("expected null id, got %#v", id)
	}
	if name := stmt.Args[5].(*pgtype.Text); name.String != "kept" || name.Status != pgtype.Present {
		t.Fatalf("other columns should bind, got %#v", name)
	}
	// the meta is bound after the failing column, so it reflects the change
	want := `{"changes":[{"change":"NULLED","field":"id","reason":"DESTINATION_FIELD_SIZE_LIMITATION"}]}`
	if m := metaOf(t, stmt.Args[2]); m != want {
		t.Fatalf("got meta %s", m)
	}
}

func TestBindFailOnOverflowRollsBack(t *testing.T) {
	schema := usersSchema(t)
	b := New(table.DefaultLayout(), FailOnOverflow)
	var stmt Statement

	if err := b.Bind(&stmt, record(logical.Int(1), "a"), schema); err != nil {
		t.Fatal(err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	err := b.Bind(&stmt, record(logical.IntegerValue{Value: huge}, "b"), schema)
	var oe *OverflowError
	if !errors.As(err, &oe) || oe.Column != "id" {
		t.Fatalf("expected OverflowError, got %v", err)
	}
	if stmt.Rows != 1 || len(stmt.Args) != 6 {
		t.Fatalf("failed row left %d rows, %d args", stmt.Rows, len(stmt.Args))
	}
}

func TestBindTypeMismatch(t *testing.T) {
	schema := usersSchema(t)
	b := New(table.DefaultLayout(), NullOnOverflow)
	var stmt Statement

	if err := b.Bind(&stmt, record(logical.Str("one"), "a"), schema); err != nil {
		t.Fatal(err)
	}
	if id := stmt.Args[4].(*pgtype.Int8); id.Status != pgtype.Null {
		t.Fatalf("expected null id, got %#v", id)
	}
	if m := metaOf(t, stmt.Args[2]); !strings.Contains(m, "DESTINATION_SERIALIZATION_ERROR") {
		t.Fatalf("got meta %s", m)
	}
}

func TestBindNumbers(t *testing.T) {
	schema := usersSchema(t, logical.Field{Name: "score", Type: logical.Number{}, Nullable: true})
	b := New(table.DefaultLayout(), NullOnOverflow)

	bindScore := func(s string) *shopspring.Numeric {
		d, err := logical.ParseDecimal(s)
		if err != nil {
			t.Fatal(err)
		}
		rec := record(logical.Int(1), "a")
		rec.Data.Set("score", logical.NumberValue{Value: d})
		var stmt Statement
		if err := b.Bind(&stmt, rec, schema); err != nil {
			t.Fatal(err)
		}
		return stmt.Args[6].(*shopspring.Numeric)
	}

	n := bindScore("1.1234567895")
	if n.Status != pgtype.Present || n.Decimal.Coefficient().String() != "1123456790" || n.Decimal.Exponent() != -9 {
		t.Fatalf("got %s", n.Decimal)
	}
	if n := bindScore("1e400"); n.Status != pgtype.Null {
		t.Fatal("1e400 should overflow")
	}
	if n := bindScore("1e-400"); n.Status != pgtype.Present || !n.Decimal.IsZero() {
		t.Fatalf("1e-400 should round to zero, got %s", n.Decimal)
	}
	if n := bindScore(strings.Repeat("9", 29) + ".5"); n.Status != pgtype.Present {
		t.Fatal("29 integer digits fit")
	}
	if n := bindScore(strings.Repeat("9", 30)); n.Status != pgtype.Null {
		t.Fatal("30 integer digits should overflow")
	}
	if n := bindScore(strings.Repeat("9", 29) + ".9999999999"); n.Status != pgtype.Null {
		t.Fatal("rounding up into 30 integer digits should overflow")
	}
}

func TestBindTemporalAndStructured(t *testing.T) {
	schema := usersSchema(t,
		logical.Field{Name: "ttz", Type: logical.TimeWithTimezone{}, Nullable: true},
		logical.Field{Name: "t", Type: logical.TimeWithoutTimezone{}, Nullable: true},
		logical.Field{Name: "ts", Type: logical.TimestampWithoutTimezone{}, Nullable: true},
		logical.Field{Name: "doc", Type: logical.Object{}, Nullable: true},
		logical.Field{Name: "missing", Type: logical.TimeWithTimezone{}, Nullable: true},
	)
	b := New(table.DefaultLayout(), NullOnOverflow)

	ttz, _ := logical.Coerce("10:15:30.5+02:00", logical.TimeWithTimezone{})
	tm, _ := logical.Coerce("01:02:03", logical.TimeWithoutTimezone{})
	zone := time.FixedZone("x", 3600)
	rec := record(logical.Int(1), "a")
	rec.Data.
		Set("ttz", ttz).
		Set("t", tm).
		Set("ts", logical.TimestampWithoutTimezoneValue{Value: time.Date(2024, 1, 2, 3, 4, 5, 0, zone)}).
		Set("doc", logical.NewObject().Set("z", logical.Int(1)).Set("a", logical.Str("x")))

	var stmt Statement
	if err := b.Bind(&stmt, rec, schema); err != nil {
		t.Fatal(err)
	}
	if s, ok := stmt.Args[6].(string); !ok || s != "10:15:30.5+02:00" {
		t.Fatalf("got timetz %#v", stmt.Args[6])
	}
	if tt := stmt.Args[7].(*pgtype.Time); tt.Microseconds != 3723000000 {
		t.Fatalf("got time %d", tt.Microseconds)
	}
	ts := stmt.Args[8].(*pgtype.Timestamp)
	if ts.Time.Location() != time.UTC || ts.Time.Hour() != 3 {
		t.Fatalf("timestamp should keep wall clock in UTC, got %s", ts.Time)
	}
	if doc := stmt.Args[9].(*pgtype.JSONB); string(doc.Bytes) != `{"a":"x","z":1}` {
		t.Fatalf("got doc %s", string(doc.Bytes))
	}
	if stmt.Args[10] != nil {
		t.Fatalf("absent timetz should bind nil, got %#v", stmt.Args[10])
	}
}

func TestBindLongIndexedString(t *testing.T) {
	schema := usersSchema(t, logical.Field{Name: "k", Type: logical.String{}})
	prefix := strings.Repeat("x", 600)
	long := func(last string) table.Record {
		rec := record(logical.Int(1), strings.Repeat("y", 600))
		rec.Data.Set("k", logical.Str(prefix+last))
		return rec
	}

	b := New(table.DefaultLayout(), NullOnOverflow, "k")
	var stmt Statement
	if err := b.Bind(&stmt, long("a"), schema); err != nil {
		t.Fatal(err)
	}
	if k := stmt.Args[6].(*pgtype.Text); k.Status != pgtype.Null {
		t.Fatalf("got key of %d bytes", len(k.String))
	}
	if m := metaOf(t, stmt.Args[2]); !strings.Contains(m, `"field":"k"`) || !strings.Contains(m, "DESTINATION_FIELD_SIZE_LIMITATION") {
		t.Fatalf("got meta %s", m)
	}
	// only key columns are VARCHAR
	if name := stmt.Args[5].(*pgtype.Text); name.Status != pgtype.Present || len(name.String) != 600 {
		t.Fatal("unindexed string should bind whole")
	}

	// 512 multi-byte characters still fit
	var ok Statement
	rec := record(logical.Int(1), "a")
	rec.Data.Set("k", logical.Str(strings.Repeat("é", 512)))
	if err := b.Bind(&ok, rec, schema); err != nil {
		t.Fatal(err)
	}
	if k := ok.Args[6].(*pgtype.Text); k.Status != pgtype.Present {
		t.Fatal("512 characters should fit")
	}

	strict := New(table.DefaultLayout(), FailOnOverflow, "k")
	var failed Statement
	var overflow *OverflowError
	if err := strict.Bind(&failed, long("b"), schema); !errors.As(err, &overflow) || overflow.Column != "k" {
		t.Fatalf("got %v", err)
	}
	if len(failed.Args) != 0 {
		t.Fatal("failed bind left arguments behind")
	}
}

func TestKeyText(t *testing.T) {
	b := New(table.DefaultLayout(), FailOnOverflow, "score")
	col := table.Column{Name: "score", Type: logical.Number{}}
	text := func(s string) string {
		d, err := logical.ParseDecimal(s)
		if err != nil {
			t.Fatal(err)
		}
		k, ok := b.KeyText(col, logical.NumberValue{Value: d})
		if !ok {
			t.Fatalf("%s has no key", s)
		}
		return k
	}
	if text("1.0") != text("1.00") || text("1") != text("1.0000000001") {
		t.Fatal("values equal after binding should share a key")
	}
	if text("1.5") == text("1.50000001") {
		t.Fatal("distinct values share a key")
	}
	if k, ok := b.KeyText(col, logical.Int(2)); !ok || k != text("2.0") {
		t.Fatalf("got %q", k)
	}

	if _, ok := b.KeyText(col, logical.NullValue{}); ok {
		t.Fatal("null has no key")
	}
	if _, ok := b.KeyText(col, logical.Str("1")); ok {
		t.Fatal("mismatched value binds null")
	}
	huge, _ := logical.ParseDecimal("1e40")
	if _, ok := b.KeyText(col, logical.NumberValue{Value: huge}); ok {
		t.Fatal("overflowing value binds null")
	}

	str := table.Column{Name: "k", Type: logical.String{}}
	if _, ok := b.KeyText(str, logical.Str(strings.Repeat("x", 513))); ok {
		t.Fatal("over-long key binds null")
	}
	if k, _ := b.KeyText(str, logical.Str("abc")); k != "abc" {
		t.Fatalf("got %q", k)
	}
}
