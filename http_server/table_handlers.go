package http_server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/danthegoodman1/tablesync/loader"
	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/parquet_accumulator"
	"github.com/danthegoodman1/tablesync/partitioner"
	"github.com/danthegoodman1/tablesync/query_builder"
	"github.com/danthegoodman1/tablesync/s3_helper"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/danthegoodman1/tablesync/utils"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

type (
	column struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}

	// TableReadReqBody declares the columns to read back. Columns the table
	// has but the declaration lacks are left out.
	TableReadReqBody struct {
		Fields []logical.FieldDeclaration `json:"fields" validate:"required,dive"`
	}

	SnapshotReqBody struct {
		TableReadReqBody
		// Partitioner splits the snapshot into one file per partition path.
		Partitioner []partitioner.PartitionPlan `json:"partitioner" validate:"dive"`
	}

	SnapshotFile struct {
		Key          string `json:"key"`
		Partition    string `json:"partition,omitempty"`
		NumRows      int64  `json:"num_rows"`
		BytesWritten int64  `json:"bytes_written"`
	}

	SnapshotStats struct {
		Files        []SnapshotFile `json:"files"`
		NumRows      int64          `json:"num_rows"`
		BytesWritten int64          `json:"bytes_written"`
	}
)

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}

// tableStream is an Append stream for the table in the path, used wherever
// the import mode does not matter.
func tableStream(c *CustomContext, fields []logical.FieldDeclaration) table.Stream {
	resolved := make([]logical.Field, len(fields))
	for i, f := range fields {
		resolved[i] = f.Resolve()
	}
	return table.Stream{
		Namespace: c.Param("ns"),
		Name:      c.Param("table"),
		Mode:      table.Append{},
		Fields:    resolved,
	}
}

func (s *HTTPServer) builder(c *CustomContext) (*query_builder.QueryBuilder, error) {
	return query_builder.New(s.layout, s.cfg.DefaultSchema, tableStream(c, nil))
}

func (s *HTTPServer) GetColumns(c *CustomContext) error {
	qb, err := s.builder(c)
	if err != nil {
		return c.RequestError(err, "invalid table")
	}

	var columns []column
	err = s.runSession(c.Request().Context(), func(ctx context.Context, sess query_builder.Session) error {
		cols, err := qb.ExistingSchema(ctx, sess)
		if err != nil {
			return fmt.Errorf("error in ExistingSchema: %w", err)
		}
		columns = columns[:0]
		for _, col := range cols {
			columns = append(columns, column{Name: col.Name, Type: col.Type.Name})
		}
		return nil
	})
	if err != nil {
		return c.InternalError(err, "error getting columns")
	}
	if len(columns) == 0 {
		return c.String(http.StatusNotFound, "table not found")
	}

	return c.JSON(http.StatusOK, columns)
}

func (s *HTTPServer) CountRows(c *CustomContext) error {
	qb, err := s.builder(c)
	if err != nil {
		return c.RequestError(err, "invalid table")
	}

	var count int64
	err = s.runSession(c.Request().Context(), func(ctx context.Context, sess query_builder.Session) (err error) {
		count, err = qb.CountAll(ctx, sess)
		return
	})
	if isUndefinedTable(err) {
		return c.String(http.StatusNotFound, "table not found")
	}
	if err != nil {
		return c.InternalError(err, "error counting rows")
	}

	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

func (s *HTTPServer) DropTable(c *CustomContext) error {
	qb, err := s.builder(c)
	if err != nil {
		return c.RequestError(err, "invalid table")
	}

	err = s.runSession(c.Request().Context(), func(ctx context.Context, sess query_builder.Session) error {
		return qb.DropTable(ctx, sess)
	})
	if isUndefinedTable(err) {
		return c.String(http.StatusNotFound, "table not found")
	}
	if err != nil {
		return c.InternalError(err, "error dropping table")
	}

	return c.NoContent(http.StatusNoContent)
}

// readRecords reads every row of the table in the path as declared by
// fields.
func (s *HTTPServer) readRecords(c *CustomContext, fields []logical.FieldDeclaration) ([]table.Record, table.Schema, error) {
	var (
		records []table.Record
		schema  table.Schema
	)
	err := s.runSession(c.Request().Context(), func(ctx context.Context, sess query_builder.Session) error {
		sync, err := loader.New(sess, s.layout, tableStream(c, fields), loader.Options{DefaultNamespace: s.cfg.DefaultSchema})
		if err != nil {
			return err
		}
		schema = sync.Schema()
		records, err = sync.ReadAll(ctx)
		return err
	})
	return records, schema, err
}

func (s *HTTPServer) readError(c *CustomContext, err error) error {
	if isUndefinedTable(err) {
		return c.String(http.StatusNotFound, "table not found")
	}
	return c.RequestError(err, "error reading rows")
}

func (s *HTTPServer) ReadRows(c *CustomContext) error {
	var reqBody TableReadReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	records, schema, err := s.readRecords(c, reqBody.Fields)
	if err != nil {
		return s.readError(c, err)
	}

	layout := schema.Layout()
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		row, ok := logical.ToJSON(rec.Data).(map[string]any)
		if !ok {
			row = map[string]any{}
		}
		row[layout.RawIDColumn] = rec.RawID
		row[layout.ExtractedAtColumn] = rec.ExtractedAt
		row[layout.GenerationIDColumn] = rec.GenerationID
		row[layout.MetaColumn] = rec.Meta
		out[i] = row
	}

	return c.JSON(http.StatusOK, out)
}

// SnapshotHandler writes the table's rows as parquet objects in S3, one per
// partition.
func (s *HTTPServer) SnapshotHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	var reqBody SnapshotReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	records, schema, err := s.readRecords(c, reqBody.Fields)
	if err != nil {
		return s.readError(c, err)
	}

	parts := make(map[string][]table.Record)
	var order []string
	for _, rec := range records {
		part, err := partitioner.GetRecordPartition(rec, reqBody.Partitioner)
		if err != nil {
			return c.RequestError(err, "error getting partition for record")
		}
		if _, exists := parts[part]; !exists {
			order = append(order, part)
		}
		parts[part] = append(parts[part], rec)
	}

	var stats SnapshotStats
	for _, part := range order {
		var b bytes.Buffer
		n, err := parquet_accumulator.WriteSnapshot(&b, schema, parts[part])
		if err != nil {
			return c.InternalError(err, "error in WriteSnapshot")
		}
		byteLen := int64(b.Len())

		prefix := fmt.Sprintf("ns=%s/table=%s", c.Param("ns"), c.Param("table"))
		if part != "" {
			prefix += "/" + part
		}
		key := fmt.Sprintf("%s/%s.parquet", prefix, utils.GenKSortedID(""))
		if _, err := s3_helper.WriteBytesToS3(ctx, key, &b, aws.String("application/vnd.apache.parquet")); err != nil {
			return c.RequestError(err, "error uploading to s3")
		}

		stats.Files = append(stats.Files, SnapshotFile{
			Key:          key,
			Partition:    part,
			NumRows:      n,
			BytesWritten: byteLen,
		})
		stats.NumRows += n
		stats.BytesWritten += byteLen
	}

	stats.Files = utils.ArrayOrEmpty(stats.Files)
	return c.JSON(http.StatusOK, stats)
}
