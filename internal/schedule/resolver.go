package schedule

import (
	"context"
	"sort"
	"time"
)

type State string

const (
	Open   State = "open"
	Closed State = "closed"
)

// Interval is a span of the day tagged with its resolved state.
type Interval struct {
	Span
	State State
}

// DayAvailability partitions one calendar day into disjoint, ordered
// intervals covering [00:00, 24:00) with no gaps. Adjacent intervals always
// differ in state.
type DayAvailability struct {
	AgentID   int64
	Date      Date
	Intervals []Interval
}

func closedDay(agentID int64, date Date) DayAvailability {
	return DayAvailability{
		AgentID:   agentID,
		Date:      date,
		Intervals: []Interval{{Span: WholeDay, State: Closed}},
	}
}

// OpenSpans returns the open intervals in order.
func (d DayAvailability) OpenSpans() []Span {
	var out []Span
	for _, iv := range d.Intervals {
		if iv.State == Open {
			out = append(out, iv.Span)
		}
	}
	return out
}

// At returns the interval containing t.
func (d DayAvailability) At(t TimeOfDay) Interval {
	for _, iv := range d.Intervals {
		if iv.Contains(t) {
			return iv
		}
	}
	return Interval{Span: WholeDay, State: Closed}
}

// paint forces s to st, splitting the intervals it straddles.
func (d *DayAvailability) paint(s Span, st State) {
	if !s.Valid() {
		return
	}
	out := make([]Interval, 0, len(d.Intervals)+2)
	inserted := false
	for _, iv := range d.Intervals {
		if !iv.Overlaps(s) {
			out = append(out, iv)
			continue
		}
		if iv.Start < s.Start {
			out = append(out, Interval{Span: Span{Start: iv.Start, End: s.Start}, State: iv.State})
		}
		if !inserted {
			out = append(out, Interval{Span: s, State: st})
			inserted = true
		}
		if iv.End > s.End {
			out = append(out, Interval{Span: Span{Start: s.End, End: iv.End}, State: iv.State})
		}
	}
	d.Intervals = coalesce(out)
}

func coalesce(in []Interval) []Interval {
	out := in[:0]
	for _, iv := range in {
		if n := len(out); n > 0 && out[n-1].State == iv.State && out[n-1].End == iv.Start {
			out[n-1].End = iv.End
			continue
		}
		out = append(out, iv)
	}
	return out
}

func stateOf(open bool) State {
	if open {
		return Open
	}
	return Closed
}

// byCreation orders rules oldest first, breaking ties by id.
func byCreation(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}

// Resolve merges rules into the availability of date. now is the current
// instant on the agent's calendar; quick overrides only apply when date is
// now's date and their span contains now.
//
// Precedence, lowest first: weekly hours, lunch breaks, whole-day
// exceptions, partial exceptions, quick overrides (latest created wins).
func Resolve(agentID int64, date Date, rules []Rule, now time.Time) DayAvailability {
	day := closedDay(agentID, date)
	weekday := date.Weekday()

	var weekly, lunch, wholeDay, partial, quick []Rule
	for _, r := range rules {
		if r.AgentID != agentID {
			continue
		}
		switch {
		case r.Kind == KindWeekly && r.DayOfWeek == weekday:
			weekly = append(weekly, r)
		case r.Kind == KindLunchBreak && r.DayOfWeek == weekday:
			lunch = append(lunch, r)
		case r.Kind == KindException && r.Date == date && r.WholeDay:
			wholeDay = append(wholeDay, r)
		case r.Kind == KindException && r.Date == date:
			partial = append(partial, r)
		case r.Kind.Quick() && r.Date == date:
			quick = append(quick, r)
		}
	}

	for _, r := range weekly {
		day.paint(r.Span, Open)
	}
	for _, r := range lunch {
		day.paint(r.Span, Closed)
	}
	for _, group := range [][]Rule{wholeDay, partial} {
		byCreation(group)
		for _, r := range group {
			day.paint(r.Span, stateOf(r.IsAvailable))
		}
	}

	if DateOf(now) == date {
		current := TimeOfDayOf(now)
		byCreation(quick)
		for _, r := range quick {
			if r.Span.Contains(current) {
				day.paint(r.Span, stateOf(r.Kind == KindQuickAvailable))
			}
		}
	}
	return day
}

// ActiveOverride returns the quick override in effect at now, if any.
func ActiveOverride(rules []Rule, now time.Time) *Rule {
	today := DateOf(now)
	current := TimeOfDayOf(now)
	var active *Rule
	for i := range rules {
		r := rules[i]
		if !r.Kind.Quick() || r.Date != today || !r.Span.Contains(current) {
			continue
		}
		if active == nil || r.CreatedAt.After(active.CreatedAt) ||
			(r.CreatedAt.Equal(active.CreatedAt) && r.ID > active.ID) {
			active = &r
		}
	}
	return active
}

// ResolveDay reads the agent's rules for date and resolves them. An agent
// with no rules resolves to a closed day.
func (s *Service) ResolveDay(ctx context.Context, agentID int64, date Date) (DayAvailability, error) {
	var rules []Rule
	err := s.view(ctx, "resolve day", func(tx Tx) error {
		var err error
		rules, err = tx.RulesForDate(ctx, agentID, date)
		return err
	})
	if err != nil {
		return DayAvailability{}, err
	}
	return Resolve(agentID, date, rules, s.Now()), nil
}

// AgentStatus is the agent's state right now, as shown on the dashboard.
type AgentStatus struct {
	AgentID  int64
	At       time.Time
	Interval Interval
	Override *Rule
}

func (st AgentStatus) Open() bool { return st.Interval.State == Open }

// CurrentStatus resolves today and reports the interval containing now.
func (s *Service) CurrentStatus(ctx context.Context, agentID int64) (*AgentStatus, error) {
	if err := s.ensureAgent(ctx, agentID); err != nil {
		return nil, err
	}
	now := s.Now()
	today := DateOf(now)

	var rules []Rule
	err := s.view(ctx, "current status", func(tx Tx) error {
		var err error
		rules, err = tx.RulesForDate(ctx, agentID, today)
		return err
	})
	if err != nil {
		return nil, err
	}

	day := Resolve(agentID, today, rules, now)
	return &AgentStatus{
		AgentID:  agentID,
		At:       now,
		Interval: day.At(TimeOfDayOf(now)),
		Override: ActiveOverride(rules, now),
	}, nil
}
