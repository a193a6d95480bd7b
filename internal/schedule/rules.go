package schedule

import (
	"context"
	"fmt"
	"log/slog"
)

// DaySchedule is the weekly intent for one weekday. Hours and Lunch are
// ignored when Available is false.
type DaySchedule struct {
	Day       Weekday
	Available bool
	Hours     Span
	Lunch     *Span
}

// SetWeeklySchedule replaces every weekly and lunch-break rule of the agent
// with days. Days not listed become closed. Nothing is written unless every
// day validates.
func (s *Service) SetWeeklySchedule(ctx context.Context, agentID int64, days []DaySchedule) ([]Rule, error) {
	if err := s.ensureAgent(ctx, agentID); err != nil {
		return nil, err
	}

	now := s.Now()
	seen := make(map[Weekday]bool, len(days))
	var rules []Rule
	for _, d := range days {
		if !d.Day.Valid() {
			return nil, invalidf(ErrValidation, "invalid weekday %d", int(d.Day))
		}
		if seen[d.Day] {
			return nil, invalidf(ErrValidation, "%s is listed more than once", d.Day)
		}
		seen[d.Day] = true
		if !d.Available {
			continue
		}

		weekly := NewWeeklyRule(agentID, d.Day, d.Hours)
		weekly.CreatedAt = now
		if err := weekly.Check(); err != nil {
			return nil, fmt.Errorf("%s hours: %w", d.Day, err)
		}
		rules = append(rules, weekly)

		if d.Lunch != nil {
			lunch := NewLunchBreak(agentID, d.Day, *d.Lunch)
			lunch.CreatedAt = now
			if err := lunch.Check(); err != nil {
				return nil, fmt.Errorf("%s lunch break: %w", d.Day, err)
			}
			rules = append(rules, lunch)
		}
	}

	err := s.update(ctx, "set weekly schedule", agentID, func(tx Tx) error {
		if err := tx.DeleteRecurringRules(ctx, agentID); err != nil {
			return err
		}
		for i := range rules {
			if err := tx.InsertRule(ctx, &rules[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Weekly schedule replaced", "agent_id", agentID, "rules", len(rules))
	return rules, nil
}

// ExceptionRequest describes a date-specific override. A nil Span covers the
// whole day.
type ExceptionRequest struct {
	Date      Date
	Available bool
	Span      *Span
}

// AddException stores a date exception. Dates before today are rejected, and
// a partial exception may not overlap another partial exception of the same
// agent and date. A whole-day exception replaces the previous whole-day
// exception of that date.
func (s *Service) AddException(ctx context.Context, agentID int64, req ExceptionRequest) (*Rule, error) {
	if err := s.ensureAgent(ctx, agentID); err != nil {
		return nil, err
	}
	if req.Date.IsZero() {
		return nil, invalidf(ErrValidation, "date is required")
	}

	now := s.Now()
	if req.Date.Before(DateOf(now)) {
		return nil, invalidf(ErrPastDateTime, "exception date %s is before today", req.Date)
	}

	rule := NewException(agentID, req.Date, req.Available, req.Span)
	rule.CreatedAt = now
	if err := rule.Check(); err != nil {
		return nil, err
	}

	err := s.update(ctx, "add exception", agentID, func(tx Tx) error {
		existing, err := tx.RulesForDate(ctx, agentID, req.Date)
		if err != nil {
			return err
		}
		for _, r := range existing {
			switch {
			case rule.WholeDay && r.Kind == KindException && r.WholeDay:
				if err := tx.DeleteRule(ctx, agentID, r.ID); err != nil {
					return err
				}
			case rule.Partial() && r.Partial() && r.Span.Overlaps(rule.Span):
				return invalidf(ErrValidation, "%s overlaps existing exception %s on %s", rule.Span, r.Span, req.Date)
			}
		}
		return tx.InsertRule(ctx, &rule)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Exception added", "agent_id", agentID, "rule_id", rule.ID, "date", req.Date.String(), "available", req.Available, "whole_day", rule.WholeDay)
	return &rule, nil
}

// DeleteException removes an agent-authored exception. Blocking exceptions
// owned by a booking go away only when the appointment is cancelled.
func (s *Service) DeleteException(ctx context.Context, agentID, ruleID int64) error {
	if err := s.ensureAgent(ctx, agentID); err != nil {
		return err
	}
	return s.update(ctx, "delete exception", agentID, func(tx Tx) error {
		r, err := tx.GetRule(ctx, agentID, ruleID)
		if err != nil {
			return err
		}
		if r.Kind != KindException {
			return invalidf(ErrValidation, "rule %d is a %s rule, not an exception", ruleID, r.Kind)
		}
		if r.AppointmentID != "" {
			return invalidf(ErrValidation, "rule %d belongs to appointment %s; cancel the appointment instead", ruleID, r.AppointmentID)
		}
		return tx.DeleteRule(ctx, agentID, ruleID)
	})
}
