// Package postgres is the schedule.Store backed by PostgreSQL through pgx.
//
// Write transactions run at READ COMMITTED and take a transaction-scoped
// advisory lock on the agent id before touching any row, so the re-check
// and the inserts of a booking see every booking committed before them.
// The partial unique index on scheduled appointments backs this up.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"availability-scheduler/internal/schedule"
)

var errReadOnly = errors.New("postgres store: write in read-only transaction")

type Options struct {
	URL      string
	MaxConns int32
	// LockTimeout bounds the wait for the agent lock and row locks; zero
	// leaves the server default.
	LockTimeout time.Duration
}

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// Open connects and pings the database.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("postgres url is required")
	}
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, lockTimeout: opts.LockTimeout}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) View(ctx context.Context, fn func(tx schedule.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return mapErr("begin read", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return mapErr("commit read", tx.Commit(ctx))
}

func (s *Store) Update(ctx context.Context, agentID int64, fn func(tx schedule.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr("begin", err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		q := fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, q); err != nil {
			return mapErr("set lock timeout", err)
		}
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, agentID); err != nil {
		return mapErr("lock agent", err)
	}

	if err := fn(&pgTx{tx: tx, writable: true}); err != nil {
		return err
	}
	return mapErr("commit", tx.Commit(ctx))
}

func (s *Store) Purge(ctx context.Context, quickBefore, exceptionsBefore schedule.Date) (int64, error) {
	q := `DELETE FROM availability_rules
	      WHERE (kind IN ('quick_available', 'quick_blocked') AND specific_date < $1)
	         OR (kind = 'exception' AND specific_date < $2)`
	res, err := s.pool.Exec(ctx, q, quickBefore.Time(), exceptionsBefore.Time())
	if err != nil {
		return 0, mapErr("purge", err)
	}
	return res.RowsAffected(), nil
}

func (s *Store) AgentExists(ctx context.Context, agentID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM agents WHERE id=$1)`, agentID).Scan(&ok)
	if err != nil {
		return false, mapErr("look up agent", err)
	}
	return ok, nil
}

// AddAgent registers an agent id in the local directory table.
func (s *Store) AddAgent(ctx context.Context, agentID int64, name string) error {
	q := `INSERT INTO agents (id, name) VALUES ($1, $2)
	      ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	if _, err := s.pool.Exec(ctx, q, agentID, name); err != nil {
		return mapErr("add agent", err)
	}
	slog.Info("Agent registered", "agent_id", agentID)
	return nil
}

// mapErr files driver errors under the schedule error categories. Codes that
// mean "another transaction got there first" become ErrConflict so callers
// can retry; the slot index violation is a lost booking race.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == "appointments_scheduled_slot" {
				return fmt.Errorf("%s: %w", op, schedule.ErrSlotUnavailable)
			}
		case "23514":
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, schedule.ErrValidation)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, schedule.ErrConflict)
		case "57014":
			return fmt.Errorf("%s: statement canceled: %w", op, schedule.ErrConflict)
		}
	}
	return schedule.StoreFailure(op, err)
}
