package http_server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danthegoodman1/tablesync/pgfake"
	"github.com/danthegoodman1/tablesync/query_builder"
	"github.com/danthegoodman1/tablesync/query_template"
	"github.com/danthegoodman1/tablesync/utils"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// existingColumns is what the fake database reports for public.users.
var existingColumns = [][]interface{}{
	{"_raw_id", "text"},
	{"_extracted_at", "bigint"},
	{"_meta", "jsonb"},
	{"_generation_id", "bigint"},
	{"id", "bigint"},
	{"name", "text"},
}

func testServer(t *testing.T, sess *pgfake.Session) *HTTPServer {
	t.Helper()
	cfg := &utils.Config{DefaultSchema: "public", MaxBatchRows: 1000}
	run := func(ctx context.Context, f func(ctx context.Context, s query_builder.Session) error) error {
		return f(ctx, sess)
	}
	return NewHTTPServer(cfg, run, false)
}

func fakeDB() *pgfake.Session {
	return &pgfake.Session{
		QueryHook: func(sql string, args []interface{}) (pgx.Rows, error) {
			switch {
			case sql == query_template.ExistingSchema:
				return pgfake.NewRows([]string{"column_name", "data_type"}, existingColumns...), nil
			case strings.HasPrefix(sql, "SELECT COUNT(*)"):
				return pgfake.NewRows([]string{"count"}, []interface{}{int64(3)}), nil
			}
			return pgfake.NewRows(
				[]string{"_raw_id", "_extracted_at", "_meta", "_generation_id", "id", "name"},
				[]interface{}{"r1", int64(10), `{}`, int64(1), int64(7), "alice"},
			), nil
		},
	}
}

func do(s *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := do(testServer(t, fakeDB()), http.MethodGet, "/hc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestLoadNDJSON(t *testing.T) {
	sess := fakeDB()
	s := testServer(t, sess)
	body := `{
		"stream": {"name": "users", "mode": "dedupe", "primary_key": [["id"]],
			"fields": [{"name": "id", "type": "integer"}, {"name": "name", "type": "string", "nullable": true}]},
		"rows_string": "{\"id\": 1, \"name\": \"a\"}\n\n{\"id\": 1, \"name\": \"b\"}\n{\"id\": 2}"
	}`
	rec := do(s, http.MethodPost, "/load", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"load_id":"load_`)
	assert.Contains(t, rec.Body.String(), `"records_written":2`)
	assert.Contains(t, rec.Body.String(), `"collapsed":1`)

	var merges int
	for _, call := range sess.Execs {
		if strings.HasPrefix(call.SQL, `MERGE INTO "public"."users"`) {
			merges++
			assert.Len(t, call.Args, 12)
		}
	}
	assert.Equal(t, 1, merges)
}

func TestLoadFlattensRows(t *testing.T) {
	sess := fakeDB()
	s := testServer(t, sess)
	body := `{
		"stream": {"name": "users", "mode": "append",
			"fields": [{"name": "id", "type": "integer"}, {"name": "name.first", "type": "string", "nullable": true}]},
		"rows": [{"id": 1, "name": {"first": "ada"}}],
		"flatten": true
	}`
	rec := do(s, http.MethodPost, "/load", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the fake table lacks name.first, so Begin adds it and drops name
	var ddl string
	for _, call := range sess.Execs {
		if strings.HasPrefix(call.SQL, "ALTER TABLE") {
			ddl = call.SQL
		}
	}
	assert.Contains(t, ddl, `ADD COLUMN "name.first" TEXT NULL;`)
	assert.Contains(t, ddl, `DROP COLUMN "name";`)
}

func TestLoadRejectsBadRequests(t *testing.T) {
	s := testServer(t, fakeDB())

	rec := do(s, http.MethodPost, "/load", `{"stream": {"name": "users", "mode": "soft_delete"}, "rows": [{"id": 1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported sync mode")

	rec = do(s, http.MethodPost, "/load", `{"stream": {"mode": "append"}, "rows": [{"id": 1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodPost, "/load", `{"stream": {"name": "users", "mode": "append"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no rows found", rec.Body.String())

	rec = do(s, http.MethodPost, "/load", `{"stream": {"name": "users", "mode": "append"}, "rows_string": "[1]"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodPost, "/load", `{"stream": {"name": "users", "mode": "dedupe", "fields": [{"name": "doc", "type": "object"}], "primary_key": [["doc"]]}, "rows": [{}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetColumns(t *testing.T) {
	rec := do(testServer(t, fakeDB()), http.MethodGet, "/tables/public/users/columns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `{"name":"id","type":"bigint"}`)

	empty := &pgfake.Session{}
	rec = do(testServer(t, empty), http.MethodGet, "/tables/public/missing/columns", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCountRows(t *testing.T) {
	rec := do(testServer(t, fakeDB()), http.MethodGet, "/tables/public/users/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())

	missing := &pgfake.Session{
		QueryHook: func(string, []interface{}) (pgx.Rows, error) {
			return nil, &pgconn.PgError{Code: pgerrcode.UndefinedTable}
		},
	}
	rec = do(testServer(t, missing), http.MethodGet, "/tables/public/users/count", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadRows(t *testing.T) {
	body := `{"fields": [{"name": "id", "type": "integer"}, {"name": "name", "type": "string"}]}`
	rec := do(testServer(t, fakeDB()), http.MethodPost, "/tables/public/users/rows", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"_raw_id":"r1","_extracted_at":10,"_generation_id":1,"_meta":{},"id":7,"name":"alice"}]`, rec.Body.String())

	rec = do(testServer(t, fakeDB()), http.MethodPost, "/tables/public/users/rows", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDropTable(t *testing.T) {
	sess := fakeDB()
	rec := do(testServer(t, sess), http.MethodDelete, "/tables/public/users", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, sess.Execs, 1)
	assert.Equal(t, `DROP TABLE "public"."users";`, sess.Execs[0].SQL)
}

func TestSnapshotWithoutBucket(t *testing.T) {
	utils.S3_BUCKET_NAME = ""
	body := `{"fields": [{"name": "id", "type": "integer"}]}`
	rec := do(testServer(t, fakeDB()), http.MethodPost, "/tables/public/users/snapshot", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "S3_BUCKET_NAME")
}

func TestSnapshotRejectsUnknownPartitioner(t *testing.T) {
	utils.S3_BUCKET_NAME = "bucket"
	defer func() { utils.S3_BUCKET_NAME = "" }()
	body := `{"fields": [{"name": "id", "type": "integer"}], "partitioner": [{"func": "toCentury", "args": ["id"], "as": "c"}]}`
	rec := do(testServer(t, fakeDB()), http.MethodPost, "/tables/public/users/snapshot", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "partition function not found")
}
