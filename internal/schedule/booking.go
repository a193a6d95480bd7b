package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"
)

// BookingRequest is a client's choice of slot.
type BookingRequest struct {
	AgentID    int64
	ClientID   int64
	Date       Date
	Start      TimeOfDay
	PropertyID *int64
	Location   Location
	Message    string
}

func (r BookingRequest) validate() error {
	if r.AgentID <= 0 {
		return invalidf(ErrValidation, "agent_id must be a positive integer")
	}
	if r.ClientID <= 0 {
		return invalidf(ErrValidation, "client_id must be a positive integer")
	}
	if r.Date.IsZero() {
		return invalidf(ErrValidation, "date is required")
	}
	if r.PropertyID != nil && *r.PropertyID <= 0 {
		return invalidf(ErrValidation, "property_id must be a positive integer")
	}
	if _, err := ParseLocation(string(r.Location)); err != nil {
		return err
	}
	return nil
}

// withoutBookingBlocks drops the exceptions written by earlier bookings so
// the slot grid reflects only what the agent configured.
func withoutBookingBlocks(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.AppointmentID == "" {
			out = append(out, r)
		}
	}
	return out
}

// BookSlot turns a slot choice into a scheduled appointment. The slot is
// re-checked inside the same agent-exclusive transaction that inserts the
// appointment and its blocking exception, so of two racing requests for one
// slot exactly one succeeds and the other gets ErrSlotUnavailable.
func (s *Service) BookSlot(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	location, _ := ParseLocation(string(req.Location))

	now := s.Now()
	if !req.Date.At(req.Start, s.loc).After(now) {
		return nil, invalidf(ErrPastDateTime, "%s %s is not in the future", req.Date, req.Start)
	}
	if err := s.ensureAgent(ctx, req.AgentID); err != nil {
		return nil, err
	}

	var booked *Appointment
	err := s.update(ctx, "book slot", req.AgentID, func(tx Tx) error {
		rules, err := tx.RulesForDate(ctx, req.AgentID, req.Date)
		if err != nil {
			return err
		}
		appts, err := tx.AppointmentsOn(ctx, req.AgentID, req.Date)
		if err != nil {
			return err
		}

		grid := GenerateSlots(Resolve(req.AgentID, req.Date, withoutBookingBlocks(rules), now), nil, s.slotDuration)
		if _, ok := findSlot(grid, req.Start); !ok {
			return invalidf(ErrInvalidTimeRange, "%s is not a slot start inside open hours on %s", req.Start, req.Date)
		}
		free := GenerateSlots(Resolve(req.AgentID, req.Date, rules, now), appts, s.slotDuration)
		slot, ok := findSlot(free, req.Start)
		if !ok {
			return invalidf(ErrSlotUnavailable, "%s on %s is already booked", req.Start, req.Date)
		}

		appt := &Appointment{
			ID:         ulid.Make().String(),
			AgentID:    req.AgentID,
			ClientID:   req.ClientID,
			PropertyID: req.PropertyID,
			Date:       req.Date,
			Start:      slot.Start,
			Duration:   s.slotDuration,
			Status:     StatusScheduled,
			Location:   location,
			Message:    req.Message,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}

		span := slot.Span()
		block := NewException(req.AgentID, req.Date, false, &span)
		block.AppointmentID = appt.ID
		block.CreatedAt = now
		if err := block.Check(); err != nil {
			return err
		}
		if err := tx.InsertRule(ctx, &block); err != nil {
			return err
		}
		booked = appt
		return nil
	})
	if err != nil {
		slog.Debug("Booking rejected", "agent_id", req.AgentID, "date", req.Date.String(), "time", req.Start.String(), "kind", ErrorKind(err), "error", err)
		return nil, err
	}

	slog.Info("Appointment booked", "appointment_id", booked.ID, "agent_id", booked.AgentID, "client_id", booked.ClientID, "date", booked.Date.String(), "time", booked.Start.String())
	return booked, nil
}

// CancelAppointment marks a scheduled appointment cancelled and removes its
// blocking exception in one transaction, reopening the slot.
func (s *Service) CancelAppointment(ctx context.Context, agentID int64, appointmentID string) (*Appointment, error) {
	if appointmentID == "" {
		return nil, invalidf(ErrValidation, "appointment_id is required")
	}
	if agentID <= 0 {
		return nil, invalidf(ErrValidation, "agent_id must be a positive integer")
	}

	var cancelled *Appointment
	err := s.update(ctx, "cancel appointment", agentID, func(tx Tx) error {
		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.AgentID != agentID {
			return fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
		}
		if appt.Status != StatusScheduled {
			return invalidf(ErrValidation, "appointment %s is %s", appointmentID, appt.Status)
		}

		now := s.Now()
		if err := tx.UpdateAppointmentStatus(ctx, appt.ID, StatusCancelled, now); err != nil {
			return err
		}
		if _, err := tx.DeleteAppointmentBlocks(ctx, appt.ID); err != nil {
			return err
		}
		appt.Status = StatusCancelled
		appt.UpdatedAt = now
		cancelled = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Appointment cancelled", "appointment_id", cancelled.ID, "agent_id", agentID)
	return cancelled, nil
}
