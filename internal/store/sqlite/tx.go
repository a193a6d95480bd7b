package sqlite

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"availability-scheduler/internal/schedule"
)

type gormTx struct {
	db       *gorm.DB
	writable bool
}

func rulesFrom(rows []ruleRow) ([]schedule.Rule, error) {
	out := make([]schedule.Rule, 0, len(rows))
	for _, row := range rows {
		r, err := row.rule()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (t *gormTx) RulesForDate(ctx context.Context, agentID int64, date schedule.Date) ([]schedule.Rule, error) {
	var rows []ruleRow
	err := t.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Where("((kind IN ? AND day_of_week = ?) OR specific_date = ?)",
			[]string{string(schedule.KindWeekly), string(schedule.KindLunchBreak)}, int(date.Weekday()), date.String()).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, mapErr("rules for date", err)
	}
	return rulesFrom(rows)
}

func (t *gormTx) ListRules(ctx context.Context, agentID int64) ([]schedule.Rule, error) {
	var rows []ruleRow
	err := t.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("created_at, id").Find(&rows).Error
	if err != nil {
		return nil, mapErr("list rules", err)
	}
	return rulesFrom(rows)
}

func (t *gormTx) GetRule(ctx context.Context, agentID, ruleID int64) (*schedule.Rule, error) {
	var row ruleRow
	err := t.db.WithContext(ctx).Where("id = ? AND agent_id = ?", ruleID, agentID).First(&row).Error
	if err != nil {
		return nil, mapErr(fmt.Sprintf("rule %d", ruleID), err)
	}
	r, err := row.rule()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *gormTx) InsertRule(ctx context.Context, r *schedule.Rule) error {
	if !t.writable {
		return errReadOnly
	}
	if err := r.Check(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	row := toRuleRow(*r)
	row.ID = 0
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return mapErr("insert rule", err)
	}
	r.ID = row.ID
	return nil
}

func (t *gormTx) DeleteRule(ctx context.Context, agentID, ruleID int64) error {
	if !t.writable {
		return errReadOnly
	}
	res := t.db.WithContext(ctx).Where("id = ? AND agent_id = ?", ruleID, agentID).Delete(&ruleRow{})
	if res.Error != nil {
		return mapErr("delete rule", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rule %d: %w", ruleID, schedule.ErrNotFound)
	}
	return nil
}

func (t *gormTx) DeleteRecurringRules(ctx context.Context, agentID int64) error {
	if !t.writable {
		return errReadOnly
	}
	err := t.db.WithContext(ctx).
		Where("agent_id = ? AND kind IN ?", agentID, []string{string(schedule.KindWeekly), string(schedule.KindLunchBreak)}).
		Delete(&ruleRow{}).Error
	return mapErr("delete recurring rules", err)
}

func (t *gormTx) DeleteAppointmentBlocks(ctx context.Context, appointmentID string) (int64, error) {
	if !t.writable {
		return 0, errReadOnly
	}
	res := t.db.WithContext(ctx).Where("appointment_id = ?", appointmentID).Delete(&ruleRow{})
	if res.Error != nil {
		return 0, mapErr("delete appointment blocks", res.Error)
	}
	return res.RowsAffected, nil
}

func (t *gormTx) InsertAppointment(ctx context.Context, a *schedule.Appointment) error {
	if !t.writable {
		return errReadOnly
	}
	row := toAppointmentRow(*a)
	return mapErr("insert appointment", t.db.WithContext(ctx).Create(&row).Error)
}

func (t *gormTx) GetAppointment(ctx context.Context, id string) (*schedule.Appointment, error) {
	var row appointmentRow
	if err := t.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, mapErr("appointment "+id, err)
	}
	a, err := row.appointment()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *gormTx) UpdateAppointmentStatus(ctx context.Context, id string, status schedule.AppointmentStatus, at time.Time) error {
	if !t.writable {
		return errReadOnly
	}
	res := t.db.WithContext(ctx).Model(&appointmentRow{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": at})
	if res.Error != nil {
		return mapErr("update appointment", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("appointment %s: %w", id, schedule.ErrNotFound)
	}
	return nil
}

func (t *gormTx) AppointmentsOn(ctx context.Context, agentID int64, date schedule.Date) ([]schedule.Appointment, error) {
	return t.ListAppointments(ctx, schedule.AppointmentFilter{AgentID: agentID, From: date, To: date})
}

func (t *gormTx) ListAppointments(ctx context.Context, f schedule.AppointmentFilter) ([]schedule.Appointment, error) {
	q := t.db.WithContext(ctx).Where("agent_id = ?", f.AgentID)
	if !f.From.IsZero() {
		q = q.Where("appointment_date >= ?", f.From.String())
	}
	if !f.To.IsZero() {
		q = q.Where("appointment_date <= ?", f.To.String())
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}

	var rows []appointmentRow
	if err := q.Order("appointment_date, start_seconds, id").Find(&rows).Error; err != nil {
		return nil, mapErr("list appointments", err)
	}
	out := make([]schedule.Appointment, 0, len(rows))
	for _, row := range rows {
		a, err := row.appointment()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
