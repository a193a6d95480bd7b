package schedule

import (
	"context"
	"time"
)

// Slot is one bookable [Start, End) candidate.
type Slot struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (s Slot) Span() Span { return Span{Start: s.Start, End: s.End} }

// Value is the "HH:MM:SS" form clients send back when booking.
func (s Slot) Value() string { return s.Start.String() }

func (s Slot) Display() string { return s.Start.Display() }

// GenerateSlots walks every open interval of day in fixed steps of duration
// from the interval start. Trailing slots that would spill into a closed
// interval are dropped, as is every slot overlapping a scheduled appointment.
// The result is chronological and free of duplicates.
func GenerateSlots(day DayAvailability, appointments []Appointment, duration time.Duration) []Slot {
	step := TimeOfDay(duration / time.Second)
	if step <= 0 {
		return nil
	}

	var busy []Span
	for _, a := range appointments {
		if a.Status == StatusScheduled && a.AgentID == day.AgentID && a.Date == day.Date {
			busy = append(busy, a.Span())
		}
	}

	slots := []Slot{}
	for _, open := range day.OpenSpans() {
		for start := open.Start; start+step <= open.End; start += step {
			slot := Span{Start: start, End: start + step}
			if overlapsAny(slot, busy) {
				continue
			}
			slots = append(slots, Slot{Start: slot.Start, End: slot.End})
		}
	}
	return slots
}

func overlapsAny(s Span, spans []Span) bool {
	for _, o := range spans {
		if s.Overlaps(o) {
			return true
		}
	}
	return false
}

func findSlot(slots []Slot, start TimeOfDay) (Slot, bool) {
	for _, s := range slots {
		if s.Start == start {
			return s, true
		}
	}
	return Slot{}, false
}

// AvailableSlots lists the bookable slots of an agent on date. For today,
// slots that have already started are left out because booking them would
// fail with ErrPastDateTime.
func (s *Service) AvailableSlots(ctx context.Context, agentID int64, date Date) ([]Slot, error) {
	if err := s.ensureAgent(ctx, agentID); err != nil {
		return nil, err
	}

	var (
		rules []Rule
		appts []Appointment
	)
	err := s.view(ctx, "list slots", func(tx Tx) error {
		var err error
		if rules, err = tx.RulesForDate(ctx, agentID, date); err != nil {
			return err
		}
		appts, err = tx.AppointmentsOn(ctx, agentID, date)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.Now()
	slots := GenerateSlots(Resolve(agentID, date, rules, now), appts, s.slotDuration)
	today := DateOf(now)
	if date.Before(today) {
		return []Slot{}, nil
	}
	if date == today {
		current := TimeOfDayOf(now)
		upcoming := slots[:0]
		for _, slot := range slots {
			if slot.Start > current {
				upcoming = append(upcoming, slot)
			}
		}
		slots = upcoming
	}
	return slots, nil
}
