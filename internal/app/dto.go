package app

import (
	"fmt"
	"time"

	"availability-scheduler/internal/schedule"
)

type slotsQuery struct {
	AgentID int64  `form:"agent_id" binding:"required,gt=0"`
	Date    string `form:"date" binding:"required,isodate"`
}

type dayQuery struct {
	Date string `form:"date" binding:"omitempty,isodate"`
}

type slotJSON struct {
	Value   string `json:"value"`
	Display string `json:"display"`
}

func toSlots(slots []schedule.Slot) []slotJSON {
	out := make([]slotJSON, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotJSON{Value: s.Value(), Display: s.Display()})
	}
	return out
}

type bookingBody struct {
	AgentID    int64  `json:"agent_id" binding:"required,gt=0"`
	ClientID   int64  `json:"client_id" binding:"required,gt=0"`
	Date       string `json:"date" binding:"required,isodate"`
	Time       string `json:"time" binding:"required,timeofday"`
	PropertyID *int64 `json:"property_id" binding:"omitempty,gt=0"`
	Location   string `json:"location" binding:"omitempty,oneof=office_visit online_meeting"`
	Message    string `json:"message" binding:"max=2000"`
}

func (b bookingBody) request() (schedule.BookingRequest, error) {
	date, err := schedule.ParseDate(b.Date)
	if err != nil {
		return schedule.BookingRequest{}, err
	}
	start, err := schedule.ParseTimeOfDay(b.Time)
	if err != nil {
		return schedule.BookingRequest{}, err
	}
	return schedule.BookingRequest{
		AgentID:    b.AgentID,
		ClientID:   b.ClientID,
		Date:       date,
		Start:      start,
		PropertyID: b.PropertyID,
		Location:   schedule.Location(b.Location),
		Message:    b.Message,
	}, nil
}

type appointmentJSON struct {
	ID              string    `json:"id"`
	AgentID         int64     `json:"agent_id"`
	ClientID        int64     `json:"client_id"`
	PropertyID      *int64    `json:"property_id,omitempty"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	EndTime         string    `json:"end_time"`
	DateTime        time.Time `json:"appointment_datetime"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	Location        string    `json:"location"`
	Message         string    `json:"message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointment(a schedule.Appointment, loc *time.Location) appointmentJSON {
	return appointmentJSON{
		ID:              a.ID,
		AgentID:         a.AgentID,
		ClientID:        a.ClientID,
		PropertyID:      a.PropertyID,
		Date:            a.Date.String(),
		Time:            a.Start.String(),
		EndTime:         a.Span().End.String(),
		DateTime:        a.DateTime(loc),
		DurationMinutes: int(a.Duration / time.Minute),
		Status:          string(a.Status),
		Location:        string(a.Location),
		Message:         a.Message,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type appointmentsQuery struct {
	From   string `form:"from" binding:"omitempty,isodate"`
	To     string `form:"to" binding:"omitempty,isodate"`
	Status string `form:"status" binding:"omitempty,oneof=scheduled completed cancelled"`
}

func (q appointmentsQuery) filter(agentID int64) schedule.AppointmentFilter {
	f := schedule.AppointmentFilter{AgentID: agentID, Status: schedule.AppointmentStatus(q.Status)}
	// Both dates passed the isodate tag already.
	f.From, _ = parseOptionalDate(q.From)
	f.To, _ = parseOptionalDate(q.To)
	return f
}

func parseOptionalDate(s string) (schedule.Date, error) {
	if s == "" {
		return schedule.Date{}, nil
	}
	return schedule.ParseDate(s)
}

type ruleJSON struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"kind"`
	DayOfWeek     string    `json:"day_of_week,omitempty"`
	Date          string    `json:"specific_date,omitempty"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	WholeDay      bool      `json:"whole_day"`
	IsAvailable   bool      `json:"is_available"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toRule(r schedule.Rule) ruleJSON {
	out := ruleJSON{
		ID:            r.ID,
		Kind:          string(r.Kind),
		StartTime:     r.Span.Start.String(),
		EndTime:       r.Span.End.String(),
		WholeDay:      r.WholeDay,
		IsAvailable:   r.IsAvailable,
		AppointmentID: r.AppointmentID,
		CreatedAt:     r.CreatedAt,
	}
	if r.Kind.Recurring() {
		out.DayOfWeek = r.DayOfWeek.String()
	} else {
		out.Date = r.Date.String()
	}
	return out
}

func toRules(rules []schedule.Rule) []ruleJSON {
	out := make([]ruleJSON, 0, len(rules))
	for _, r := range rules {
		out = append(out, toRule(r))
	}
	return out
}

// dayJSON is one weekday of the weekly schedule form.
type dayJSON struct {
	Day        string `json:"day" binding:"required,weekday"`
	Available  bool   `json:"available"`
	StartTime  string `json:"start_time,omitempty" binding:"required_if=Available true,omitempty,timeofday"`
	EndTime    string `json:"end_time,omitempty" binding:"required_if=Available true,omitempty,timeofday"`
	LunchBreak bool   `json:"lunch_break"`
	LunchStart string `json:"lunch_start,omitempty" binding:"required_if=LunchBreak true,required_with=LunchEnd,omitempty,timeofday"`
	LunchEnd   string `json:"lunch_end,omitempty" binding:"required_with=LunchStart,omitempty,timeofday"`
}

type weeklyBody struct {
	Days []dayJSON `json:"days" binding:"dive"`
}

func (b weeklyBody) days() ([]schedule.DaySchedule, error) {
	out := make([]schedule.DaySchedule, 0, len(b.Days))
	for _, d := range b.Days {
		day, err := schedule.ParseWeekday(d.Day)
		if err != nil {
			return nil, err
		}
		ds := schedule.DaySchedule{Day: day, Available: d.Available}
		if d.Available {
			if ds.Hours, err = parseSpan(d.StartTime, d.EndTime); err != nil {
				return nil, fmt.Errorf("%s: %w", d.Day, err)
			}
			if d.LunchStart != "" {
				lunch, err := parseSpan(d.LunchStart, d.LunchEnd)
				if err != nil {
					return nil, fmt.Errorf("%s lunch: %w", d.Day, err)
				}
				ds.Lunch = &lunch
			}
		}
		out = append(out, ds)
	}
	return out, nil
}

// weeklyView folds the stored weekly and lunch-break rules back into the
// seven-day form.
func weeklyView(rules []schedule.Rule) []dayJSON {
	byDay := make(map[schedule.Weekday]*dayJSON, 7)
	out := make([]dayJSON, len(schedule.Weekdays))
	for i, d := range schedule.Weekdays {
		out[i] = dayJSON{Day: d.String()}
		byDay[d] = &out[i]
	}
	for _, r := range rules {
		d, ok := byDay[r.DayOfWeek]
		if !ok {
			continue
		}
		switch r.Kind {
		case schedule.KindWeekly:
			d.Available = true
			d.StartTime = r.Span.Start.String()
			d.EndTime = r.Span.End.String()
		case schedule.KindLunchBreak:
			d.LunchBreak = true
			d.LunchStart = r.Span.Start.String()
			d.LunchEnd = r.Span.End.String()
		}
	}
	return out
}

// exceptionBody takes either type ("available" or "blocked") or is_available.
type exceptionBody struct {
	Date        string `json:"date" binding:"required,isodate"`
	Type        string `json:"type" binding:"omitempty,oneof=available blocked"`
	IsAvailable *bool  `json:"is_available" binding:"required_without=Type"`
	StartTime   string `json:"start_time" binding:"required_with=EndTime,omitempty,timeofday"`
	EndTime     string `json:"end_time" binding:"required_with=StartTime,omitempty,timeofday"`
}

func (b exceptionBody) request() (schedule.ExceptionRequest, error) {
	date, err := schedule.ParseDate(b.Date)
	if err != nil {
		return schedule.ExceptionRequest{}, err
	}
	req := schedule.ExceptionRequest{Date: date}
	if b.Type != "" {
		req.Available = b.Type == "available"
	} else {
		req.Available = *b.IsAvailable
	}
	if b.StartTime != "" {
		span, err := parseSpan(b.StartTime, b.EndTime)
		if err != nil {
			return schedule.ExceptionRequest{}, err
		}
		req.Span = &span
	}
	return req, nil
}

type quickToggleBody struct {
	Type            string `json:"type" binding:"required,oneof=available blocked"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,gt=0,lte=1440"`
}

// quickToggleJSON is the override starting now. Continuation holds its
// second half on the next day when the override runs past midnight.
type quickToggleJSON struct {
	ruleJSON
	Continuation *ruleJSON `json:"continuation,omitempty"`
}

func toQuickToggle(rules []schedule.Rule) quickToggleJSON {
	out := quickToggleJSON{ruleJSON: toRule(rules[0])}
	if len(rules) > 1 {
		next := toRule(rules[1])
		out.Continuation = &next
	}
	return out
}

type intervalJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
	State string `json:"state"`
}

type dayAvailabilityJSON struct {
	AgentID   int64          `json:"agent_id"`
	Date      string         `json:"date"`
	Intervals []intervalJSON `json:"intervals"`
}

func toDay(d schedule.DayAvailability) dayAvailabilityJSON {
	out := dayAvailabilityJSON{AgentID: d.AgentID, Date: d.Date.String(), Intervals: make([]intervalJSON, 0, len(d.Intervals))}
	for _, iv := range d.Intervals {
		out.Intervals = append(out.Intervals, intervalJSON{Start: iv.Start.String(), End: iv.End.String(), State: string(iv.State)})
	}
	return out
}

type statusJSON struct {
	AgentID  int64     `json:"agent_id"`
	At       time.Time `json:"at"`
	Open     bool      `json:"open"`
	Until    string    `json:"until"`
	Override *ruleJSON `json:"override,omitempty"`
}

func toStatus(st *schedule.AgentStatus) statusJSON {
	out := statusJSON{
		AgentID: st.AgentID,
		At:      st.At,
		Open:    st.Open(),
		Until:   st.Interval.End.String(),
	}
	if st.Override != nil {
		r := toRule(*st.Override)
		out.Override = &r
	}
	return out
}

type importBody struct {
	CalendarID string `json:"calendar_id"`
	From       string `json:"from" binding:"required,isodate"`
	To         string `json:"to" binding:"required,isodate"`
}

func parseSpan(start, end string) (schedule.Span, error) {
	s, err := schedule.ParseTimeOfDay(start)
	if err != nil {
		return schedule.Span{}, err
	}
	e, err := schedule.ParseTimeOfDay(end)
	if err != nil {
		return schedule.Span{}, err
	}
	return schedule.Span{Start: s, End: e}, nil
}
