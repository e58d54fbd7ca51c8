package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	logx "sillyreader/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS last_state (
	name       TEXT PRIMARY KEY,
	state_key  TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

type postgresStore struct {
	db   *sql.DB
	log  logx.Logger
	name string
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (StateStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &postgresStore{db: db, log: log, name: cfg.Name}, nil
}

func (s *postgresStore) ReadLastState(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrClosed
	}
	var key string
	err := s.db.QueryRowContext(ctx, `SELECT state_key FROM last_state WHERE name = $1`, s.name).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return key, err
}

func (s *postgresStore) WriteLastState(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO last_state (name, state_key, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET
	state_key = EXCLUDED.state_key,
	updated_at = EXCLUDED.updated_at`,
		s.name, key, time.Now().UTC())
	return err
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
