package loader

import (
	"context"
	"os"
	"testing"

	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/migrations"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/danthegoodman1/tablesync/utils"
	"github.com/jackc/pgx/v4/pgxpool"
)

// TestPostgresRoundTrip runs a full dedupe load against a real database. Set
// TEST_PG_DSN to enable it.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()
	if _, err := migrations.RunMigrations(dsn); err != nil {
		t.Fatal(err)
	}
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	stream := table.Stream{
		Namespace: "tablesync_test",
		Name:      utils.GenRandomID("t"),
		Mode:      table.Dedupe{PrimaryKey: [][]string{{"id"}}},
		Fields: []logical.Field{
			{Name: "id", Type: logical.Integer{}},
			{Name: "name", Type: logical.String{}, Nullable: true},
		},
	}
	load := func(names ...string) *Sync {
		s, err := New(pool, table.DefaultLayout(), stream, Options{Audit: true, GenerationID: 1})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Begin(ctx); err != nil {
			t.Fatal(err)
		}
		var recs []table.Record
		for _, name := range names {
			recs = append(recs, table.NewRecord(logical.NewObject().Set("id", logical.Int(1)).Set("name", logical.Str(name)), 1))
		}
		if err := s.Write(ctx, recs); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Finish(ctx); err != nil {
			t.Fatal(err)
		}
		return s
	}

	load("first", "second")
	defer func() {
		if err := load().QueryBuilder().DropTable(ctx, pool); err != nil {
			t.Error(err)
		}
	}()

	stream.Fields = append(stream.Fields, logical.Field{Name: "score", Type: logical.Number{}, Nullable: true})
	s := load("third")
	if len(s.Stats.SchemaChanges) != 1 {
		t.Fatalf("expected one added column, got %v", s.Stats.SchemaChanges)
	}

	recs, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected a single deduplicated row, got %d", len(recs))
	}
	if name := recs[0].Get("name"); name != logical.Str("third") {
		t.Fatalf("got name %#v", name)
	}
	if !logical.IsNull(recs[0].Get("score")) {
		t.Fatalf("expected null score, got %#v", recs[0].Get("score"))
	}
}
