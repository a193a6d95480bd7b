package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"availability-scheduler/internal/schedule"
)

type pgTx struct {
	tx       pgx.Tx
	writable bool
}

const ruleColumns = `id, agent_id, kind, day_of_week, specific_date, start_time::text, end_time::text,
	whole_day, is_available, COALESCE(appointment_id, ''), created_at`

func scanRule(row pgx.Row) (schedule.Rule, error) {
	var (
		r          schedule.Rule
		kind       string
		dow        *int16
		date       *time.Time
		start, end string
	)
	if err := row.Scan(&r.ID, &r.AgentID, &kind, &dow, &date, &start, &end,
		&r.WholeDay, &r.IsAvailable, &r.AppointmentID, &r.CreatedAt); err != nil {
		return r, err
	}
	var err error
	if r.Kind, err = schedule.ParseKind(kind); err != nil {
		return r, err
	}
	if dow != nil {
		r.DayOfWeek = schedule.Weekday(*dow)
	}
	if date != nil {
		r.Date = schedule.DateOf(*date)
	}
	if r.Span.Start, err = schedule.ParseTimeOfDay(start); err != nil {
		return r, err
	}
	if r.Span.End, err = schedule.ParseTimeOfDay(end); err != nil {
		return r, err
	}
	return r, nil
}

func collectRules(rows pgx.Rows) ([]schedule.Rule, error) {
	defer rows.Close()
	var out []schedule.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) RulesForDate(ctx context.Context, agentID int64, date schedule.Date) ([]schedule.Rule, error) {
	q := `SELECT ` + ruleColumns + `
	      FROM availability_rules
	      WHERE agent_id=$1
	        AND ((kind IN ('weekly', 'lunch_break') AND day_of_week=$2) OR specific_date=$3)
	      ORDER BY created_at, id`
	rows, err := t.tx.Query(ctx, q, agentID, int16(date.Weekday()), date.Time())
	if err != nil {
		return nil, mapErr("rules for date", err)
	}
	rules, err := collectRules(rows)
	return rules, mapErr("rules for date", err)
}

func (t *pgTx) ListRules(ctx context.Context, agentID int64) ([]schedule.Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM availability_rules WHERE agent_id=$1 ORDER BY created_at, id`
	rows, err := t.tx.Query(ctx, q, agentID)
	if err != nil {
		return nil, mapErr("list rules", err)
	}
	rules, err := collectRules(rows)
	return rules, mapErr("list rules", err)
}

func (t *pgTx) GetRule(ctx context.Context, agentID, ruleID int64) (*schedule.Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM availability_rules WHERE id=$1 AND agent_id=$2`
	r, err := scanRule(t.tx.QueryRow(ctx, q, ruleID, agentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", ruleID, schedule.ErrNotFound)
	}
	if err != nil {
		return nil, mapErr("get rule", err)
	}
	return &r, nil
}

func (t *pgTx) InsertRule(ctx context.Context, r *schedule.Rule) error {
	if !t.writable {
		return errReadOnly
	}
	if err := r.Check(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	var (
		dow   any
		date  any
		appID any
	)
	if r.Kind.Recurring() {
		dow = int16(r.DayOfWeek)
	} else {
		date = r.Date.Time()
	}
	if r.AppointmentID != "" {
		appID = r.AppointmentID
	}

	q := `INSERT INTO availability_rules
	      (agent_id, kind, day_of_week, specific_date, start_time, end_time, whole_day, is_available, appointment_id, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`
	row := t.tx.QueryRow(ctx, q,
		r.AgentID, string(r.Kind), dow, date, r.Span.Start.String(), r.Span.End.String(),
		r.WholeDay, r.IsAvailable, appID, r.CreatedAt)
	return mapErr("insert rule", row.Scan(&r.ID))
}

func (t *pgTx) DeleteRule(ctx context.Context, agentID, ruleID int64) error {
	if !t.writable {
		return errReadOnly
	}
	res, err := t.tx.Exec(ctx, `DELETE FROM availability_rules WHERE id=$1 AND agent_id=$2`, ruleID, agentID)
	if err != nil {
		return mapErr("delete rule", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("rule %d: %w", ruleID, schedule.ErrNotFound)
	}
	return nil
}

func (t *pgTx) DeleteRecurringRules(ctx context.Context, agentID int64) error {
	if !t.writable {
		return errReadOnly
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM availability_rules WHERE agent_id=$1 AND kind IN ('weekly', 'lunch_break')`, agentID)
	return mapErr("delete recurring rules", err)
}

func (t *pgTx) DeleteAppointmentBlocks(ctx context.Context, appointmentID string) (int64, error) {
	if !t.writable {
		return 0, errReadOnly
	}
	res, err := t.tx.Exec(ctx, `DELETE FROM availability_rules WHERE appointment_id=$1`, appointmentID)
	if err != nil {
		return 0, mapErr("delete appointment blocks", err)
	}
	return res.RowsAffected(), nil
}

const appointmentColumns = `id, agent_id, client_id, property_id, appointment_date, start_time::text,
	duration_seconds, status, location, message, created_at, updated_at`

func scanAppointment(row pgx.Row) (schedule.Appointment, error) {
	var (
		a        schedule.Appointment
		date     time.Time
		start    string
		seconds  int32
		status   string
		location string
	)
	if err := row.Scan(&a.ID, &a.AgentID, &a.ClientID, &a.PropertyID, &date, &start,
		&seconds, &status, &location, &a.Message, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return a, err
	}
	var err error
	a.Date = schedule.DateOf(date)
	a.Duration = time.Duration(seconds) * time.Second
	if a.Start, err = schedule.ParseTimeOfDay(start); err != nil {
		return a, err
	}
	if a.Status, err = schedule.ParseAppointmentStatus(status); err != nil {
		return a, err
	}
	if a.Location, err = schedule.ParseLocation(location); err != nil {
		return a, err
	}
	return a, nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *schedule.Appointment) error {
	if !t.writable {
		return errReadOnly
	}
	q := `INSERT INTO appointments
	      (id, agent_id, client_id, property_id, appointment_date, start_time, duration_seconds, status, location, message, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := t.tx.Exec(ctx, q,
		a.ID, a.AgentID, a.ClientID, a.PropertyID, a.Date.Time(), a.Start.String(),
		int32(a.Duration/time.Second), string(a.Status), string(a.Location), a.Message, a.CreatedAt, a.UpdatedAt)
	return mapErr("insert appointment", err)
}

func (t *pgTx) GetAppointment(ctx context.Context, id string) (*schedule.Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id=$1`
	a, err := scanAppointment(t.tx.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointment %s: %w", id, schedule.ErrNotFound)
	}
	if err != nil {
		return nil, mapErr("get appointment", err)
	}
	return &a, nil
}

func (t *pgTx) UpdateAppointmentStatus(ctx context.Context, id string, status schedule.AppointmentStatus, at time.Time) error {
	if !t.writable {
		return errReadOnly
	}
	res, err := t.tx.Exec(ctx, `UPDATE appointments SET status=$1, updated_at=$2 WHERE id=$3`, string(status), at, id)
	if err != nil {
		return mapErr("update appointment", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("appointment %s: %w", id, schedule.ErrNotFound)
	}
	return nil
}

func (t *pgTx) AppointmentsOn(ctx context.Context, agentID int64, date schedule.Date) ([]schedule.Appointment, error) {
	return t.ListAppointments(ctx, schedule.AppointmentFilter{AgentID: agentID, From: date, To: date})
}

func (t *pgTx) ListAppointments(ctx context.Context, f schedule.AppointmentFilter) ([]schedule.Appointment, error) {
	where := []string{"agent_id=$1"}
	args := []any{f.AgentID}
	if !f.From.IsZero() {
		args = append(args, f.From.Time())
		where = append(where, fmt.Sprintf("appointment_date >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To.Time())
		where = append(where, fmt.Sprintf("appointment_date <= $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	q := `SELECT ` + appointmentColumns + ` FROM appointments
	      WHERE ` + strings.Join(where, " AND ") + `
	      ORDER BY appointment_date, start_time, id`
	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr("list appointments", err)
	}
	defer rows.Close()

	var out []schedule.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, mapErr("list appointments", err)
		}
		out = append(out, a)
	}
	return out, mapErr("list appointments", rows.Err())
}
