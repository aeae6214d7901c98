package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/danthegoodman1/tablesync/gologger"
	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v4/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

// TableName is where sql-migrate tracks applied tablesync migrations, kept
// apart from any migrations table the destination database already has.
const TableName = "tablesync_migrations"

var (
	//go:embed *.sql
	migrations embed.FS

	ErrMigrationsNotRun = fmt.Errorf("not all migrations applied")

	logger = gologger.NewComponentLogger("migrations")

	source = migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       ".",
	}
	set = migrate.MigrationSet{TableName: TableName}
)

func open(pgDSN string) (*sql.DB, error) {
	db, err := sql.Open("pgx", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("error in sql.Open: %w", err)
	}
	return db, nil
}

// RunMigrations applies every pending migration and returns how many ran.
func RunMigrations(pgDSN string) (int, error) {
	db, err := open(pgDSN)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	applied, err := set.Exec(db, "postgres", source, migrate.Up)
	if err != nil {
		return applied, fmt.Errorf("error applying migrations: %w", err)
	}
	return applied, nil
}

// PendingMigrations lists the ids of migrations not yet applied.
func PendingMigrations(pgDSN string) ([]string, error) {
	db, err := open(pgDSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	planned, _, err := set.PlanMigration(db, "postgres", source, migrate.Up, 0)
	if err != nil {
		return nil, fmt.Errorf("error in PlanMigration: %w", err)
	}
	ids := make([]string, len(planned))
	for i, mig := range planned {
		ids[i] = mig.Id
	}
	return ids, nil
}

// CheckMigrations returns ErrMigrationsNotRun when any migration is pending.
// Schema change auditing depends on it.
func CheckMigrations(pgDSN string) error {
	pending, err := PendingMigrations(pgDSN)
	if err != nil {
		return err
	}
	for _, id := range pending {
		logger.Warn().Str("migrationID", id).Msg("missing migration")
	}
	if len(pending) > 0 {
		return ErrMigrationsNotRun
	}
	return nil
}
