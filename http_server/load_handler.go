package http_server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/danthegoodman1/gojsonutils"
	"github.com/danthegoodman1/tablesync/binder"
	"github.com/danthegoodman1/tablesync/loader"
	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/query_builder"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/danthegoodman1/tablesync/utils"
	"github.com/rs/zerolog"
)

const maxNDJSONLineBytes = 16 << 20

type (
	StreamDeclaration struct {
		Namespace  string                     `json:"namespace"`
		Name       string                     `json:"name" validate:"required"`
		Mode       string                     `json:"mode" validate:"required"`
		PrimaryKey [][]string                 `json:"primary_key"`
		Cursor     []string                   `json:"cursor"`
		Fields     []logical.FieldDeclaration `json:"fields" validate:"dive"`
	}

	LoadReqBody struct {
		Stream StreamDeclaration `json:"stream"`
		// Line-delimited JSON (NDJSON)
		RowsString *string `json:"rows_string"`
		// Array of JSON
		Rows []map[string]any `json:"rows"`
		// Flatten nested objects into dotted column names before coercion.
		Flatten        bool  `json:"flatten"`
		GenerationID   int64 `json:"generation_id"`
		SyncID         int64 `json:"sync_id"`
		PurgeCdc       bool  `json:"purge_cdc"`
		FailOnOverflow bool  `json:"fail_on_overflow"`
	}

	LoadStats struct {
		LoadID string `json:"load_id"`
		loader.Stats
		TimeMS int64 `json:"time_ms"`
	}
)

var ErrNotFlatMap = utils.PermError("row is not a JSON object")

// Stream resolves the declaration. An unsupported mode is a ConfigError.
func (d StreamDeclaration) Stream() (table.Stream, error) {
	mode, err := table.ParseImportMode(d.Mode, d.PrimaryKey, d.Cursor)
	if err != nil {
		return table.Stream{}, err
	}
	fields := make([]logical.Field, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = f.Resolve()
	}
	return table.Stream{
		Namespace: d.Namespace,
		Name:      d.Name,
		Mode:      mode,
		Fields:    fields,
	}, nil
}

func (s *HTTPServer) LoadHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	start := time.Now()
	loadID := utils.GenRandomID("load_")
	logger := zerolog.Ctx(ctx).With().Str("loadID", loadID).Logger()
	ctx = logger.WithContext(ctx)

	var reqBody LoadReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	stream, err := reqBody.Stream.Stream()
	if err != nil {
		return c.RequestError(err, "invalid stream")
	}

	rows, err := collectRows(reqBody)
	if err != nil {
		return c.RequestError(err, "invalid rows")
	}
	if len(rows) == 0 {
		return c.String(http.StatusBadRequest, "no rows found")
	}

	policy := binder.NullOnOverflow
	if reqBody.FailOnOverflow {
		policy = binder.FailOnOverflow
	}
	opts := loader.Options{
		DefaultNamespace: s.cfg.DefaultSchema,
		MaxBatchRows:     s.cfg.MaxBatchRows,
		Policy:           policy,
		GenerationID:     reqBody.GenerationID,
		SyncID:           reqBody.SyncID,
		PurgeCdc:         reqBody.PurgeCdc,
		Audit:            s.audit,
	}

	var stats loader.Stats
	err = s.runSession(ctx, func(ctx context.Context, sess query_builder.Session) error {
		sync, err := loader.New(sess, s.layout, stream, opts)
		if err != nil {
			return err
		}
		records := make([]table.Record, len(rows))
		for i, row := range rows {
			records[i] = table.RecordFromJSON(sync.Schema(), row, reqBody.GenerationID)
		}
		if err := sync.Begin(ctx); err != nil {
			return err
		}
		// rows may already be written, so nothing past Begin is retried
		if err := sync.Write(ctx, records); err != nil {
			return backoff.Permanent(err)
		}
		stats, err = sync.Finish(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	})
	if err != nil {
		return c.RequestError(err, "error loading rows")
	}

	return c.JSON(http.StatusOK, LoadStats{
		LoadID: loadID,
		Stats:  stats,
		TimeMS: time.Since(start).Milliseconds(),
	})
}

// collectRows gathers the request's rows from either the NDJSON string or the
// JSON array, flattening them when asked to.
func collectRows(reqBody LoadReqBody) ([]map[string]any, error) {
	var rows []map[string]any
	if ndjson := utils.Deref(reqBody.RowsString, ""); ndjson != "" {
		scanner := bufio.NewScanner(strings.NewReader(ndjson))
		scanner.Buffer(make([]byte, 0, 64*1024), maxNDJSONLineBytes)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			var raw any
			if err := utils.UnmarshalJSON([]byte(text), &raw); err != nil {
				return nil, &utils.ConfigError{Msg: fmt.Sprintf("line %d is not JSON", line), Err: err}
			}
			jsonMap, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("line %d: %w", line, ErrNotFlatMap)
			}
			rows = append(rows, jsonMap)
		}
		if err := scanner.Err(); err != nil {
			return nil, &utils.ConfigError{Msg: "error reading rows", Err: err}
		}
	}
	rows = append(rows, reqBody.Rows...)

	if !reqBody.Flatten {
		return rows, nil
	}
	for i, row := range rows {
		flat, err := gojsonutils.Flatten(row, nil)
		if err != nil {
			return nil, fmt.Errorf("error flattening row %d: %w", i, err)
		}
		flatMap, ok := flat.(map[string]any)
		if !ok {
			return nil, errors.Join(ErrNotFlatMap, fmt.Errorf("got %T", flat))
		}
		rows[i] = flatMap
	}
	return rows, nil
}
