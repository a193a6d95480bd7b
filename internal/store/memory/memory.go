// Package memory is an in-process schedule.Store. Transactions work on a
// private copy of the state that replaces the shared state on commit, so a
// failed transaction leaves nothing behind and readers never see a partial
// write. Writers run one at a time.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"availability-scheduler/internal/schedule"
)

var errReadOnly = errors.New("memory store: write in read-only transaction")

type state struct {
	rules      map[int64]schedule.Rule
	appts      map[string]schedule.Appointment
	nextRuleID int64
}

func (st *state) clone() *state {
	c := &state{
		rules:      make(map[int64]schedule.Rule, len(st.rules)),
		appts:      make(map[string]schedule.Appointment, len(st.appts)),
		nextRuleID: st.nextRuleID,
	}
	for k, v := range st.rules {
		c.rules[k] = v
	}
	for k, v := range st.appts {
		c.appts[k] = v
	}
	return c
}

type Store struct {
	writer chan struct{}

	mu     sync.RWMutex
	state  *state
	agents map[int64]bool
}

// New returns an empty store. With no agent ids every positive id is treated
// as a known agent.
func New(agentIDs ...int64) *Store {
	s := &Store{
		writer: make(chan struct{}, 1),
		state: &state{
			rules: make(map[int64]schedule.Rule),
			appts: make(map[string]schedule.Appointment),
		},
	}
	for _, id := range agentIDs {
		s.AddAgent(id)
	}
	return s
}

func (s *Store) AddAgent(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agents == nil {
		s.agents = make(map[int64]bool)
	}
	s.agents[id] = true
}

func (s *Store) AgentExists(_ context.Context, agentID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.agents == nil {
		return agentID > 0, nil
	}
	return s.agents[agentID], nil
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) View(ctx context.Context, fn func(tx schedule.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&tx{st: s.snapshot()})
}

func (s *Store) Update(ctx context.Context, _ int64, fn func(tx schedule.Tx) error) error {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("wait for writer: %w", ctx.Err())
	}
	defer func() { <-s.writer }()

	work := s.snapshot().clone()
	if err := fn(&tx{st: work, writable: true}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

func (s *Store) Purge(ctx context.Context, quickBefore, exceptionsBefore schedule.Date) (int64, error) {
	var n int64
	err := s.Update(ctx, 0, func(t schedule.Tx) error {
		st := t.(*tx).st
		for id, r := range st.rules {
			if (r.Kind.Quick() && r.Date.Before(quickBefore)) ||
				(r.Kind == schedule.KindException && r.Date.Before(exceptionsBefore)) {
				delete(st.rules, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type tx struct {
	st       *state
	writable bool
}

func (t *tx) RulesForDate(_ context.Context, agentID int64, date schedule.Date) ([]schedule.Rule, error) {
	weekday := date.Weekday()
	var out []schedule.Rule
	for _, r := range t.st.rules {
		if r.AgentID != agentID {
			continue
		}
		if (r.Kind.Recurring() && r.DayOfWeek == weekday) || (!r.Kind.Recurring() && r.Date == date) {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out, nil
}

func (t *tx) ListRules(_ context.Context, agentID int64) ([]schedule.Rule, error) {
	var out []schedule.Rule
	for _, r := range t.st.rules {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out, nil
}

func (t *tx) GetRule(_ context.Context, agentID, ruleID int64) (*schedule.Rule, error) {
	r, ok := t.st.rules[ruleID]
	if !ok || r.AgentID != agentID {
		return nil, fmt.Errorf("rule %d: %w", ruleID, schedule.ErrNotFound)
	}
	return &r, nil
}

func (t *tx) InsertRule(_ context.Context, r *schedule.Rule) error {
	if !t.writable {
		return errReadOnly
	}
	if err := r.Check(); err != nil {
		return err
	}
	t.st.nextRuleID++
	r.ID = t.st.nextRuleID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	t.st.rules[r.ID] = *r
	return nil
}

func (t *tx) DeleteRule(_ context.Context, agentID, ruleID int64) error {
	if !t.writable {
		return errReadOnly
	}
	r, ok := t.st.rules[ruleID]
	if !ok || r.AgentID != agentID {
		return fmt.Errorf("rule %d: %w", ruleID, schedule.ErrNotFound)
	}
	delete(t.st.rules, ruleID)
	return nil
}

func (t *tx) DeleteRecurringRules(_ context.Context, agentID int64) error {
	if !t.writable {
		return errReadOnly
	}
	for id, r := range t.st.rules {
		if r.AgentID == agentID && r.Kind.Recurring() {
			delete(t.st.rules, id)
		}
	}
	return nil
}

func (t *tx) DeleteAppointmentBlocks(_ context.Context, appointmentID string) (int64, error) {
	if !t.writable {
		return 0, errReadOnly
	}
	var n int64
	for id, r := range t.st.rules {
		if r.AppointmentID == appointmentID {
			delete(t.st.rules, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertAppointment(_ context.Context, a *schedule.Appointment) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.st.appts[a.ID]; ok {
		return fmt.Errorf("appointment %s already exists", a.ID)
	}
	for _, o := range t.st.appts {
		if o.AgentID == a.AgentID && o.Date == a.Date && o.Start == a.Start && o.Status == schedule.StatusScheduled {
			return fmt.Errorf("%s %s: %w", a.Date, a.Start, schedule.ErrSlotUnavailable)
		}
	}
	t.st.appts[a.ID] = *a
	return nil
}

func (t *tx) GetAppointment(_ context.Context, id string) (*schedule.Appointment, error) {
	a, ok := t.st.appts[id]
	if !ok {
		return nil, fmt.Errorf("appointment %s: %w", id, schedule.ErrNotFound)
	}
	return &a, nil
}

func (t *tx) UpdateAppointmentStatus(_ context.Context, id string, status schedule.AppointmentStatus, at time.Time) error {
	if !t.writable {
		return errReadOnly
	}
	a, ok := t.st.appts[id]
	if !ok {
		return fmt.Errorf("appointment %s: %w", id, schedule.ErrNotFound)
	}
	a.Status = status
	a.UpdatedAt = at
	t.st.appts[id] = a
	return nil
}

func (t *tx) AppointmentsOn(_ context.Context, agentID int64, date schedule.Date) ([]schedule.Appointment, error) {
	return t.ListAppointments(context.Background(), schedule.AppointmentFilter{AgentID: agentID, From: date, To: date})
}

func (t *tx) ListAppointments(_ context.Context, f schedule.AppointmentFilter) ([]schedule.Appointment, error) {
	var out []schedule.Appointment
	for _, a := range t.st.appts {
		if a.AgentID != f.AgentID {
			continue
		}
		if !f.From.IsZero() && a.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.Date.After(f.To) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func sortRules(rules []schedule.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}
