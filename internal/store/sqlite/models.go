package sqlite

import (
	"time"

	"availability-scheduler/internal/schedule"
)

// Dates are stored as "YYYY-MM-DD" text so that range filters compare
// lexically; times of day are stored as seconds since midnight.

type agentRow struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false"`
	Name      string
	CreatedAt time.Time
}

func (agentRow) TableName() string { return "agents" }

type ruleRow struct {
	ID            int64   `gorm:"primaryKey"`
	AgentID       int64   `gorm:"not null;index:idx_rules_agent_date;index:idx_rules_agent_day"`
	Kind          string  `gorm:"not null"`
	DayOfWeek     *int    `gorm:"index:idx_rules_agent_day"`
	SpecificDate  *string `gorm:"index:idx_rules_agent_date"`
	StartSeconds  int     `gorm:"not null"`
	EndSeconds    int     `gorm:"not null"`
	WholeDay      bool    `gorm:"not null;default:false"`
	IsAvailable   bool    `gorm:"not null"`
	AppointmentID *string `gorm:"index"`
	CreatedAt     time.Time
}

func (ruleRow) TableName() string { return "availability_rules" }

func toRuleRow(r schedule.Rule) ruleRow {
	row := ruleRow{
		ID:           r.ID,
		AgentID:      r.AgentID,
		Kind:         string(r.Kind),
		StartSeconds: int(r.Span.Start),
		EndSeconds:   int(r.Span.End),
		WholeDay:     r.WholeDay,
		IsAvailable:  r.IsAvailable,
		CreatedAt:    r.CreatedAt,
	}
	if r.Kind.Recurring() {
		dow := int(r.DayOfWeek)
		row.DayOfWeek = &dow
	} else {
		date := r.Date.String()
		row.SpecificDate = &date
	}
	if r.AppointmentID != "" {
		id := r.AppointmentID
		row.AppointmentID = &id
	}
	return row
}

func (row ruleRow) rule() (schedule.Rule, error) {
	kind, err := schedule.ParseKind(row.Kind)
	if err != nil {
		return schedule.Rule{}, err
	}
	r := schedule.Rule{
		ID:          row.ID,
		AgentID:     row.AgentID,
		Kind:        kind,
		Span:        schedule.Span{Start: schedule.TimeOfDay(row.StartSeconds), End: schedule.TimeOfDay(row.EndSeconds)},
		WholeDay:    row.WholeDay,
		IsAvailable: row.IsAvailable,
		CreatedAt:   row.CreatedAt,
	}
	if row.DayOfWeek != nil {
		r.DayOfWeek = schedule.Weekday(*row.DayOfWeek)
	}
	if row.SpecificDate != nil {
		if r.Date, err = schedule.ParseDate(*row.SpecificDate); err != nil {
			return schedule.Rule{}, err
		}
	}
	if row.AppointmentID != nil {
		r.AppointmentID = *row.AppointmentID
	}
	return r, nil
}

type appointmentRow struct {
	ID              string `gorm:"primaryKey"`
	AgentID         int64  `gorm:"not null;index:idx_appt_agent_date;uniqueIndex:idx_appt_scheduled_slot,where:status = 'scheduled'"`
	ClientID        int64  `gorm:"not null"`
	PropertyID      *int64
	AppointmentDate string `gorm:"not null;index:idx_appt_agent_date;uniqueIndex:idx_appt_scheduled_slot,where:status = 'scheduled'"`
	StartSeconds    int    `gorm:"not null;uniqueIndex:idx_appt_scheduled_slot,where:status = 'scheduled'"`
	DurationSeconds int    `gorm:"not null"`
	Status          string `gorm:"not null"`
	Location        string `gorm:"not null"`
	Message         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (appointmentRow) TableName() string { return "appointments" }

func toAppointmentRow(a schedule.Appointment) appointmentRow {
	return appointmentRow{
		ID:              a.ID,
		AgentID:         a.AgentID,
		ClientID:        a.ClientID,
		PropertyID:      a.PropertyID,
		AppointmentDate: a.Date.String(),
		StartSeconds:    int(a.Start),
		DurationSeconds: int(a.Duration / time.Second),
		Status:          string(a.Status),
		Location:        string(a.Location),
		Message:         a.Message,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func (row appointmentRow) appointment() (schedule.Appointment, error) {
	date, err := schedule.ParseDate(row.AppointmentDate)
	if err != nil {
		return schedule.Appointment{}, err
	}
	status, err := schedule.ParseAppointmentStatus(row.Status)
	if err != nil {
		return schedule.Appointment{}, err
	}
	location, err := schedule.ParseLocation(row.Location)
	if err != nil {
		return schedule.Appointment{}, err
	}
	return schedule.Appointment{
		ID:         row.ID,
		AgentID:    row.AgentID,
		ClientID:   row.ClientID,
		PropertyID: row.PropertyID,
		Date:       date,
		Start:      schedule.TimeOfDay(row.StartSeconds),
		Duration:   time.Duration(row.DurationSeconds) * time.Second,
		Status:     status,
		Location:   location,
		Message:    row.Message,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}
