package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PoolConfig struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
	ApplicationName   string
}

func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.ApplicationName != "" {
		if pc.ConnConfig.RuntimeParams == nil {
			pc.ConnConfig.RuntimeParams = map[string]string{}
		}
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS room_sequences (
	room_id       TEXT PRIMARY KEY,
	last_sequence BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS operations (
	id              TEXT PRIMARY KEY,
	room_id         TEXT NOT NULL,
	sequence_number BIGINT NOT NULL,
	user_id         TEXT NOT NULL,
	user_color      TEXT NOT NULL,
	tool            TEXT NOT NULL,
	color           TEXT NOT NULL,
	width           DOUBLE PRECISION NOT NULL,
	points          JSONB NOT NULL,
	is_undone       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (room_id, sequence_number)
);

CREATE TABLE IF NOT EXISTS presence (
	room_id    TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	user_name  TEXT NOT NULL,
	user_color TEXT NOT NULL,
	cursor_x   DOUBLE PRECISION NOT NULL DEFAULT 0,
	cursor_y   DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_drawing BOOLEAN NOT NULL DEFAULT FALSE,
	last_seen  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (room_id, user_id)
);
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
