package loader

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/danthegoodman1/tablesync/binder"
	"github.com/danthegoodman1/tablesync/crdb"
	"github.com/danthegoodman1/tablesync/decoder"
	"github.com/danthegoodman1/tablesync/migrations"
	"github.com/danthegoodman1/tablesync/query_builder"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/danthegoodman1/tablesync/utils"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

var ErrNotStarted = errors.New("sync not started")

type (
	Options struct {
		DefaultNamespace string
		// MaxBatchRows caps the rows per write statement. The bind parameter
		// limit caps it further.
		MaxBatchRows int
		Policy       binder.OverflowPolicy
		// GenerationID is stamped on records that carry none. In Overwrite
		// mode Finish deletes every row of an older generation.
		GenerationID int64
		// SyncID, when set, is stamped into each record's meta.
		SyncID int64
		// PurgeCdc deletes rows with a CDC deletion marker on Finish.
		PurgeCdc bool
		// Audit records applied DDL in tablesync_schema_changes. It needs the
		// migrations and a session that can begin transactions.
		Audit bool
	}

	Stats struct {
		SyncID         string   `json:"sync_id"`
		Namespace      string   `json:"namespace"`
		Table          string   `json:"table"`
		SchemaChanges  []string `json:"schema_changes,omitempty"`
		RecordsWritten int64    `json:"records_written"`
		RowsAffected   int64    `json:"rows_affected"`
		Statements     int      `json:"statements"`
		Collapsed      int      `json:"collapsed"`
		Deleted        int64    `json:"deleted"`
	}

	// Sync loads records for one stream over a session: Begin prepares the
	// table, Write may be called any number of times, Finish completes the
	// import mode.
	Sync struct {
		ID    string
		Stats Stats

		opts    Options
		session query_builder.Session
		qb      *query_builder.QueryBuilder
		binder  *binder.Binder
		decoder *decoder.Decoder
		started bool
	}
)

func New(session query_builder.Session, layout *table.Layout, stream table.Stream, opts Options) (*Sync, error) {
	qb, err := query_builder.New(layout, opts.DefaultNamespace, stream)
	if err != nil {
		return nil, err
	}
	id := utils.GenKSortedID("sync_")
	return &Sync{
		ID: id,
		Stats: Stats{
			SyncID:    id,
			Namespace: qb.Namespace,
			Table:     qb.Table,
		},
		opts:    opts,
		session: session,
		qb:      qb,
		binder:  binder.New(layout, opts.Policy, qb.UniquenessKey()...),
		decoder: decoder.New(layout),
	}, nil
}

func (s *Sync) QueryBuilder() *query_builder.QueryBuilder {
	return s.qb
}

func (s *Sync) Schema() table.Schema {
	return s.qb.Schema()
}

// Begin creates the namespace and table if needed and reconciles the
// physical schema with the stream's.
func (s *Sync) Begin(ctx context.Context) error {
	logger := zerolog.Ctx(ctx).With().Str("syncID", s.ID).Str("table", s.qb.Namespace+"."+s.qb.Table).Logger()
	if err := s.qb.CreateIfNotExists(ctx, s.session); err != nil {
		return fmt.Errorf("error in CreateIfNotExists: %w", err)
	}

	var diff query_builder.Diff
	conn, canTx := s.session.(crdbpgx.Conn)
	if s.opts.Audit && canTx {
		err := crdb.ExecuteTx(ctx, conn, func(tx pgx.Tx) (err error) {
			diff, err = s.qb.Reconcile(ctx, tx)
			if err != nil {
				return err
			}
			return migrations.RecordSchemaChanges(ctx, tx, s.ID, s.qb.Namespace, s.qb.Table, diff.Statements(s.qb.Namespace, s.qb.Table))
		})
		if err != nil {
			return fmt.Errorf("error in ExecuteTx: %w", err)
		}
	} else {
		if s.opts.Audit {
			logger.Warn().Msg("session cannot begin transactions, not auditing schema changes")
		}
		var err error
		diff, err = s.qb.Reconcile(ctx, s.session)
		if err != nil {
			return fmt.Errorf("error in Reconcile: %w", err)
		}
	}

	s.Stats.SchemaChanges = diff.Statements(s.qb.Namespace, s.qb.Table)
	s.started = true
	logger.Debug().Int("schemaChanges", len(s.Stats.SchemaChanges)).Msg("sync started")
	return nil
}

// BatchSize is the number of records written per statement.
func (s *Sync) BatchSize() int {
	size := s.qb.MaxRowsPerStatement()
	if s.opts.MaxBatchRows > 0 && s.opts.MaxBatchRows < size {
		size = s.opts.MaxBatchRows
	}
	return size
}

// Write binds and writes records in batches. With FailOnOverflow a record
// that does not fit fails the write; batches already written stay written.
func (s *Sync) Write(ctx context.Context, records []table.Record) error {
	if !s.started {
		return ErrNotStarted
	}
	schema := s.qb.Schema()
	key := keyColumns(schema, s.qb.UniquenessKey())
	size := s.BatchSize()
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		if len(key) > 0 {
			var collapsed int
			batch, collapsed = CollapseDuplicates(s.binder, key, batch)
			s.Stats.Collapsed += collapsed
		}

		var stmt binder.Statement
		for _, rec := range batch {
			if rec.GenerationID == 0 {
				rec.GenerationID = s.opts.GenerationID
			}
			if s.opts.SyncID != 0 {
				rec.Meta.SyncID = s.opts.SyncID
			}
			if err := s.binder.Bind(&stmt, rec, schema); err != nil {
				return fmt.Errorf("error binding record %s: %w", rec.RawID, err)
			}
		}

		affected, err := s.qb.ExecWrite(ctx, s.session, stmt.Rows, stmt.Args)
		if err != nil {
			return err
		}
		s.Stats.RecordsWritten += int64(stmt.Rows)
		s.Stats.RowsAffected += affected
		s.Stats.Statements++
	}
	return nil
}

// Finish deletes older generations in Overwrite mode and purges CDC deletions
// when asked to.
func (s *Sync) Finish(ctx context.Context) (Stats, error) {
	if !s.started {
		return s.Stats, ErrNotStarted
	}
	if _, ok := s.qb.Stream().Mode.(table.Overwrite); ok {
		deleted, err := s.qb.DeletePreviousGenerations(ctx, s.session, s.opts.GenerationID)
		if err != nil {
			return s.Stats, err
		}
		s.Stats.Deleted += deleted
	}
	if s.opts.PurgeCdc && s.qb.Schema().HasCdc() {
		deleted, err := s.qb.DeleteCdc(ctx, s.session)
		if err != nil {
			return s.Stats, err
		}
		s.Stats.Deleted += deleted
	}
	zerolog.Ctx(ctx).Debug().Str("syncID", s.ID).Interface("stats", s.Stats).Msg("sync finished")
	return s.Stats, nil
}

// ReadAll reads every row of the table back as records of the stream's
// schema.
func (s *Sync) ReadAll(ctx context.Context) ([]table.Record, error) {
	rows, err := s.qb.SelectAll(ctx, s.session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []table.Record
	for rows.Next() {
		rec, err := s.decoder.DecodeRecord(rows, s.qb.Schema())
		if err != nil {
			return nil, fmt.Errorf("error in DecodeRecord: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading rows: %w", err)
	}
	return out, nil
}

func (s *Sync) Count(ctx context.Context) (int64, error) {
	return s.qb.CountAll(ctx, s.session)
}

// CollapseDuplicates keeps the last record for each uniqueness key, in the
// order those last records appear. Keys compare by their bound form, so
// values the database sees as equal (1.0 and 1.00) collapse. Records with a
// key part that binds NULL are all kept since they can never match each
// other. It returns the number of records dropped.
func CollapseDuplicates(b *binder.Binder, key []table.Column, records []table.Record) ([]table.Record, int) {
	last := make(map[string]int, len(records))
	keys := make([]string, len(records))
	for i, rec := range records {
		k, ok := keyOf(b, rec, key)
		if !ok {
			continue
		}
		keys[i] = k
		last[k] = i
	}
	if len(last) == len(records) {
		return records, 0
	}

	out := make([]table.Record, 0, len(records))
	for i, rec := range records {
		if keys[i] != "" && last[keys[i]] != i {
			continue
		}
		out = append(out, rec)
	}
	return out, len(records) - len(out)
}

func keyColumns(schema table.Schema, names []string) []table.Column {
	cols := make([]table.Column, 0, len(names))
	for _, name := range names {
		if col, ok := schema.Column(name); ok {
			cols = append(cols, col)
		}
	}
	return cols
}

func keyOf(b *binder.Binder, rec table.Record, key []table.Column) (string, bool) {
	parts := make([]string, len(key))
	for i, col := range key {
		text, ok := b.KeyText(col, rec.Get(col.Name))
		if !ok {
			return "", false
		}
		// length-prefixed so parts cannot run into each other
		parts[i] = strconv.Itoa(len(text)) + ":" + text
	}
	return strings.Join(parts, ""), true
}
