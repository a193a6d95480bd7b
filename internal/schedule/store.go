package schedule

import (
	"context"
	"time"
)

// Store persists rules and appointments. Implementations live under
// internal/store and translate driver failures with StoreFailure.
type Store interface {
	// View runs fn against a consistent read snapshot. Write methods on the
	// Tx passed to fn fail.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn in a write transaction that is exclusive for agentID:
	// two Update calls for the same agent never interleave, so a read made
	// through tx stays valid until commit. fn returning an error rolls back
	// every write made through tx.
	Update(ctx context.Context, agentID int64, fn func(tx Tx) error) error

	// Purge deletes quick overrides dated before quickBefore and exceptions
	// dated before exceptionsBefore across all agents.
	Purge(ctx context.Context, quickBefore, exceptionsBefore Date) (int64, error)
}

// Tx is the set of operations available inside a Store transaction. Lookups
// of a single row return an error wrapping ErrNotFound when it is missing.
type Tx interface {
	// RulesForDate returns the weekly and lunch-break rules for date's weekday
	// and every dated rule on date, ordered by creation.
	RulesForDate(ctx context.Context, agentID int64, date Date) ([]Rule, error)
	ListRules(ctx context.Context, agentID int64) ([]Rule, error)
	GetRule(ctx context.Context, agentID, ruleID int64) (*Rule, error)
	// InsertRule assigns r.ID.
	InsertRule(ctx context.Context, r *Rule) error
	DeleteRule(ctx context.Context, agentID, ruleID int64) error
	// DeleteRecurringRules removes every weekly and lunch-break rule of agentID.
	DeleteRecurringRules(ctx context.Context, agentID int64) error
	// DeleteAppointmentBlocks removes the blocking exceptions created for an
	// appointment and returns how many were removed.
	DeleteAppointmentBlocks(ctx context.Context, appointmentID string) (int64, error)

	InsertAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus, at time.Time) error
	// AppointmentsOn returns the agent's appointments on date in any status.
	AppointmentsOn(ctx context.Context, agentID int64, date Date) ([]Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
}

// AppointmentFilter selects appointments of one agent. Zero dates leave the
// range open; an empty Status matches every status.
type AppointmentFilter struct {
	AgentID int64
	From    Date
	To      Date
	Status  AppointmentStatus
}

// Directory answers identity questions owned by the user directory.
type Directory interface {
	AgentExists(ctx context.Context, agentID int64) (bool, error)
}
