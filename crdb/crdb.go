package crdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/danthegoodman1/tablesync/gologger"
	"github.com/danthegoodman1/tablesync/utils"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	PGPool                 *pgxpool.Pool
	StandardContextTimeout = 10 * time.Second

	logger = gologger.NewComponentLogger("crdb")
)

func ConnectToDB(dsn string) error {
	logger.Debug().Msg("connecting to PostgreSQL...")
	var err error
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return err
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.HealthCheckPeriod = time.Second * 5
	config.MaxConnLifetime = time.Minute * 30
	config.MaxConnIdleTime = time.Minute * 30

	PGPool, err = pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		return err
	}
	logger.Debug().Msg("connected to PostgreSQL")
	return nil
}

// ReliableExec acquires a pooled connection and runs f on it, retrying with
// exponential backoff. Errors that report themselves permanent (see
// utils.IsPermanent) or that f wraps with backoff.Permanent are returned
// without retrying. Each attempt gets its own tryTimeout.
func ReliableExec(ctx context.Context, pool *pgxpool.Pool, tryTimeout time.Duration, f func(ctx context.Context, conn *pgxpool.Conn) error) error {
	cfg := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.RetryNotify(func() error {
		tryCtx, cancel := context.WithTimeout(ctx, tryTimeout)
		defer cancel()

		conn, err := pool.Acquire(tryCtx)
		if err != nil {
			return fmt.Errorf("error in pool.Acquire: %w", err)
		}
		defer conn.Release()

		err = f(tryCtx, conn)
		var perm backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		if err != nil && (utils.IsPermanent(err) || errors.Is(err, context.Canceled)) {
			return backoff.Permanent(err)
		}
		return err
	}, cfg, func(err error, d time.Duration) {
		logger.Warn().Err(err).Dur("retryIn", d).Msg("ReliableExec attempt failed")
	})
}

// ExecuteTx runs fn in a transaction on conn, retrying the transaction on
// serialization failures.
func ExecuteTx(ctx context.Context, conn crdbpgx.Conn, fn func(tx pgx.Tx) error) error {
	return crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{}, fn)
}
