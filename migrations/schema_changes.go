package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
)

const insertSchemaChange = `INSERT INTO tablesync_schema_changes (sync_id, namespace, table_name, statement) VALUES ($1, $2, $3, $4)`

// RecordSchemaChanges appends the DDL a sync applied to the audit table, one
// row per statement, inside tx.
func RecordSchemaChanges(ctx context.Context, tx pgx.Tx, syncID, namespace, tableName string, statements []string) error {
	if len(statements) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, stmt := range statements {
		batch.Queue(insertSchemaChange, syncID, namespace, tableName, stmt)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range statements {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("error recording schema change: %w", err)
		}
	}
	return nil
}
