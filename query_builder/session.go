package query_builder

import (
	"context"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Session is the connection the builder runs statements on. *pgx.Conn,
// *pgxpool.Pool, *pgxpool.Conn and pgx.Tx all satisfy it.
type Session interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func exec(ctx context.Context, s Session, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	zerolog.Ctx(ctx).Debug().Str("sql", sql).Int("args", len(args)).Msg("executing sql")
	tag, err := s.Exec(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error in Exec: %w", err)
	}
	return tag, nil
}

func query(ctx context.Context, s Session, sql string, args ...interface{}) (pgx.Rows, error) {
	zerolog.Ctx(ctx).Debug().Str("sql", sql).Int("args", len(args)).Msg("executing sql")
	rows, err := s.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error in Query: %w", err)
	}
	return rows, nil
}
