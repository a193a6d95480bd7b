package postgres

import (
	"context"
	"fmt"
	"log/slog"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id         BIGINT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id               TEXT PRIMARY KEY,
		agent_id         BIGINT NOT NULL,
		client_id        BIGINT NOT NULL,
		property_id      BIGINT,
		appointment_date DATE NOT NULL,
		start_time       TIME NOT NULL,
		duration_seconds INTEGER NOT NULL CHECK (duration_seconds > 0),
		status           TEXT NOT NULL CHECK (status IN ('scheduled', 'completed', 'cancelled')),
		location         TEXT NOT NULL CHECK (location IN ('office_visit', 'online_meeting')),
		message          TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_scheduled_slot
		ON appointments (agent_id, appointment_date, start_time) WHERE status = 'scheduled'`,
	`CREATE INDEX IF NOT EXISTS appointments_agent_date ON appointments (agent_id, appointment_date)`,
	`CREATE TABLE IF NOT EXISTS availability_rules (
		id             BIGSERIAL PRIMARY KEY,
		agent_id       BIGINT NOT NULL,
		kind           TEXT NOT NULL CHECK (kind IN ('weekly', 'exception', 'lunch_break', 'quick_available', 'quick_blocked')),
		day_of_week    SMALLINT CHECK (day_of_week BETWEEN 1 AND 7),
		specific_date  DATE,
		start_time     TIME NOT NULL,
		end_time       TIME NOT NULL,
		whole_day      BOOLEAN NOT NULL DEFAULT false,
		is_available   BOOLEAN NOT NULL,
		appointment_id TEXT REFERENCES appointments (id) ON DELETE CASCADE,
		created_at     TIMESTAMPTZ NOT NULL,
		CHECK (start_time < end_time),
		CHECK ((kind IN ('weekly', 'lunch_break')) = (day_of_week IS NOT NULL)),
		CHECK ((kind IN ('weekly', 'lunch_break')) = (specific_date IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS availability_rules_agent_date ON availability_rules (agent_id, specific_date)`,
	`CREATE INDEX IF NOT EXISTS availability_rules_agent_day ON availability_rules (agent_id, day_of_week)`,
	`CREATE INDEX IF NOT EXISTS availability_rules_appointment ON availability_rules (appointment_id)`,
}

// Migrate creates the tables the store needs.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	slog.Info("Postgres schema up to date", "statements", len(schema))
	return nil
}
