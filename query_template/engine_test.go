package query_template

import (
	"errors"
	"strings"
	"testing"
)

func TestPositional(t *testing.T) {
	got, err := Positional(AlterTableDrop, "public", "users", "legacy_col")
	if err != nil {
		t.Fatal(err)
	}
	if got != `ALTER TABLE "public"."users" DROP COLUMN "legacy_col";` {
		t.Fatalf("got %s", got)
	}

	_, err = Positional(DropTable, "public")
	var te *TemplateError
	if !errors.As(err, &te) || !te.IsPermanent() {
		t.Fatalf("expected TemplateError, got %v", err)
	}
}

func TestPositionalDoesNotRescanArgs(t *testing.T) {
	got, err := Positional(DeleteWhereColumnLessThan, "s", "t", "col?", "5")
	if err != nil {
		t.Fatal(err)
	}
	if got != `DELETE FROM "s"."t" WHERE "col?" < 5` {
		t.Fatalf("got %s", got)
	}
}

func TestNamed(t *testing.T) {
	got, err := Named(InsertInto, map[string]string{
		SchemaKey:       "public",
		TableKey:        "users",
		ColumnsKey:      `"id", "name"`,
		TemplateRowsKey: "($1::BIGINT, $2::TEXT)",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `INSERT INTO "public"."users" ("id", "name")
SELECT table_value.*
FROM (VALUES ($1::BIGINT, $2::TEXT)) AS table_value ("id", "name")`
	if got != want {
		t.Fatalf("got %s", got)
	}
}

func TestNamedMissingVariable(t *testing.T) {
	_, err := Named(MergeInto, map[string]string{
		SchemaKey:       "public",
		TableKey:        "users",
		ColumnsKey:      `"id"`,
		TemplateRowsKey: "($1::BIGINT)",
	})
	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
	for _, name := range []string{"?uniquenessConstraint", "?updateStatement", "?sourceColumns"} {
		if !strings.Contains(te.Msg, name) {
			t.Fatalf("error %q does not name %s", te.Msg, name)
		}
	}
}

func TestNamedValueNotRescanned(t *testing.T) {
	got, err := Named("?a ?b", map[string]string{"a": "?b", "b": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "?b x" {
		t.Fatalf("got %s", got)
	}
}

func TestEscaping(t *testing.T) {
	if Ident(`we"ird`) != `"we""ird"` {
		t.Fatalf("got %s", Ident(`we"ird`))
	}
	if LiteralBody(`o'neil`) != `o''neil` {
		t.Fatalf("got %s", LiteralBody(`o'neil`))
	}
}

func TestMustPositionalPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustPositional(CountAll)
}
