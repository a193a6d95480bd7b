package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is a day of the week, Monday first. The zero value is invalid so a
// dated rule can never carry a stray weekday.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// Weekdays lists every day in calendar order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayNames = map[Weekday]string{
	Monday:    "Monday",
	Tuesday:   "Tuesday",
	Wednesday: "Wednesday",
	Thursday:  "Thursday",
	Friday:    "Friday",
	Saturday:  "Saturday",
	Sunday:    "Sunday",
}

func WeekdayOf(d time.Weekday) Weekday {
	if d == time.Sunday {
		return Sunday
	}
	return Weekday(d)
}

// ParseWeekday accepts a weekday name in any case.
func ParseWeekday(s string) (Weekday, error) {
	for d, name := range weekdayNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q: %w", s, ErrValidation)
}

func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

func (d Weekday) String() string {
	if name, ok := weekdayNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Weekday(%d)", int(d))
}

// Kind tags an availability rule. Each kind fixes whether the rule is keyed
// by weekday or by calendar date.
type Kind string

const (
	KindWeekly         Kind = "weekly"
	KindException      Kind = "exception"
	KindLunchBreak     Kind = "lunch_break"
	KindQuickAvailable Kind = "quick_available"
	KindQuickBlocked   Kind = "quick_blocked"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindWeekly, KindException, KindLunchBreak, KindQuickAvailable, KindQuickBlocked:
		return k, nil
	}
	return "", fmt.Errorf("invalid rule kind %q: %w", s, ErrValidation)
}

// Recurring reports whether rules of this kind are keyed by weekday.
func (k Kind) Recurring() bool {
	return k == KindWeekly || k == KindLunchBreak
}

func (k Kind) Quick() bool {
	return k == KindQuickAvailable || k == KindQuickBlocked
}

// Rule is one row of scheduling intent. Build rules with the New* helpers;
// stores rehydrate rows through Rule.Check so a weekly rule with a date, or a
// dated rule with a weekday, is rejected before it reaches the resolver.
type Rule struct {
	ID          int64
	AgentID     int64
	Kind        Kind
	DayOfWeek   Weekday
	Date        Date
	Span        Span
	WholeDay    bool
	IsAvailable bool
	// AppointmentID links a blocking exception to the booking that created it.
	AppointmentID string
	CreatedAt     time.Time
}

func NewWeeklyRule(agentID int64, day Weekday, span Span) Rule {
	return Rule{AgentID: agentID, Kind: KindWeekly, DayOfWeek: day, Span: span, IsAvailable: true}
}

func NewLunchBreak(agentID int64, day Weekday, span Span) Rule {
	return Rule{AgentID: agentID, Kind: KindLunchBreak, DayOfWeek: day, Span: span}
}

// NewException builds a whole-day exception when span is nil.
func NewException(agentID int64, date Date, available bool, span *Span) Rule {
	r := Rule{AgentID: agentID, Kind: KindException, Date: date, IsAvailable: available}
	if span == nil {
		r.Span = WholeDay
		r.WholeDay = true
	} else {
		r.Span = *span
	}
	return r
}

func NewQuickOverride(agentID int64, date Date, available bool, span Span) Rule {
	kind := KindQuickBlocked
	if available {
		kind = KindQuickAvailable
	}
	return Rule{AgentID: agentID, Kind: kind, Date: date, Span: span, IsAvailable: available}
}

// Check enforces the shape invariants of r.Kind.
func (r Rule) Check() error {
	if r.AgentID <= 0 {
		return fmt.Errorf("rule has no agent: %w", ErrValidation)
	}
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}
	if !r.Span.Valid() {
		return fmt.Errorf("start time %s must be before end time %s: %w", r.Span.Start, r.Span.End, ErrInvalidTimeRange)
	}
	if r.Kind.Recurring() {
		if !r.DayOfWeek.Valid() {
			return fmt.Errorf("%s rule requires a day of week: %w", r.Kind, ErrValidation)
		}
		if !r.Date.IsZero() {
			return fmt.Errorf("%s rule cannot carry a specific date: %w", r.Kind, ErrValidation)
		}
	} else {
		if r.Date.IsZero() {
			return fmt.Errorf("%s rule requires a specific date: %w", r.Kind, ErrValidation)
		}
		if r.DayOfWeek != 0 {
			return fmt.Errorf("%s rule cannot carry a day of week: %w", r.Kind, ErrValidation)
		}
	}
	switch r.Kind {
	case KindWeekly, KindQuickAvailable:
		if !r.IsAvailable {
			return fmt.Errorf("%s rule must be available: %w", r.Kind, ErrValidation)
		}
	case KindLunchBreak, KindQuickBlocked:
		if r.IsAvailable {
			return fmt.Errorf("%s rule must be blocking: %w", r.Kind, ErrValidation)
		}
	}
	if r.WholeDay && r.Span != WholeDay {
		return fmt.Errorf("whole-day rule must span the full day: %w", ErrValidation)
	}
	if r.AppointmentID != "" && (r.Kind != KindException || r.IsAvailable) {
		return fmt.Errorf("only blocking exceptions may reference an appointment: %w", ErrValidation)
	}
	return nil
}

// Partial reports whether r is a sub-day exception authored by the agent.
func (r Rule) Partial() bool {
	return r.Kind == KindException && !r.WholeDay && r.AppointmentID == ""
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("invalid appointment status %q: %w", s, ErrValidation)
}

type Location string

const (
	LocationOfficeVisit   Location = "office_visit"
	LocationOnlineMeeting Location = "online_meeting"
)

func ParseLocation(s string) (Location, error) {
	switch l := Location(strings.ToLower(strings.TrimSpace(s))); l {
	case LocationOfficeVisit, LocationOnlineMeeting:
		return l, nil
	case "":
		return LocationOfficeVisit, nil
	}
	return "", fmt.Errorf("invalid location %q: %w", s, ErrValidation)
}

// Appointment is a confirmed booking of one slot.
type Appointment struct {
	ID         string
	AgentID    int64
	ClientID   int64
	PropertyID *int64
	Date       Date
	Start      TimeOfDay
	Duration   time.Duration
	Status     AppointmentStatus
	Location   Location
	Message    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (a Appointment) Span() Span {
	return Span{Start: a.Start, End: a.Start.Add(a.Duration)}
}

// DateTime is the appointment instant on the agent's calendar.
func (a Appointment) DateTime(loc *time.Location) time.Time {
	return a.Date.At(a.Start, loc)
}
