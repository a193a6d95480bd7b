package schedule

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultSlotDuration = 30 * time.Minute
	DefaultTxTimeout    = 5 * time.Second
)

type Options struct {
	SlotDuration time.Duration
	// TxTimeout bounds every store round trip: read and write transactions,
	// lock waits included, and directory lookups.
	TxTimeout time.Duration
	// Location is the agent calendar used to derive "today" and "now".
	Location *time.Location
	Clock    Clock
}

// Service is the availability and booking engine. It keeps no state between
// calls; every operation reads a fresh snapshot from the store.
type Service struct {
	store        Store
	dir          Directory
	now          Clock
	loc          *time.Location
	slotDuration time.Duration
	txTimeout    time.Duration
}

// NewService wires the engine. dir may be nil, in which case agent ids are
// not checked against a directory.
func NewService(store Store, dir Directory, opts Options) *Service {
	s := &Service{
		store:        store,
		dir:          dir,
		now:          opts.Clock,
		loc:          opts.Location,
		slotDuration: opts.SlotDuration,
		txTimeout:    opts.TxTimeout,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.slotDuration <= 0 {
		s.slotDuration = DefaultSlotDuration
	}
	if s.txTimeout <= 0 {
		s.txTimeout = DefaultTxTimeout
	}
	return s
}

// Now is the current instant on the agent calendar.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

func (s *Service) Today() Date { return DateOf(s.Now()) }

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) SlotDuration() time.Duration { return s.slotDuration }

func (s *Service) view(ctx context.Context, op string, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	return classify(op, s.store.View(ctx, fn))
}

func (s *Service) update(ctx context.Context, op string, agentID int64, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	return classify(op, s.store.Update(ctx, agentID, fn))
}

// classify leaves categorized errors untouched so their detail reaches the
// caller verbatim, and files everything else under ErrStore or ErrConflict.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if ErrorKind(err) != KindUnknown {
		return err
	}
	return StoreFailure(op, err)
}

func (s *Service) ensureAgent(ctx context.Context, agentID int64) error {
	if agentID <= 0 {
		return invalidf(ErrValidation, "agent_id must be a positive integer")
	}
	if s.dir == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	ok, err := s.dir.AgentExists(ctx, agentID)
	if err != nil {
		return StoreFailure("look up agent", err)
	}
	if !ok {
		return fmt.Errorf("agent %d: %w", agentID, ErrNotFound)
	}
	return nil
}

// ListRules returns every rule of the agent.
func (s *Service) ListRules(ctx context.Context, agentID int64) ([]Rule, error) {
	if err := s.ensureAgent(ctx, agentID); err != nil {
		return nil, err
	}
	var rules []Rule
	err := s.view(ctx, "list rules", func(tx Tx) error {
		var err error
		rules, err = tx.ListRules(ctx, agentID)
		return err
	})
	return rules, err
}

// ListAppointments returns the appointments matching f in chronological order.
func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	if err := s.ensureAgent(ctx, f.AgentID); err != nil {
		return nil, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, invalidf(ErrValidation, "from must not be after to")
	}
	var out []Appointment
	err := s.view(ctx, "list appointments", func(tx Tx) error {
		var err error
		out, err = tx.ListAppointments(ctx, f)
		return err
	})
	return out, err
}

// Purge removes quick overrides from past days and exceptions older than
// retention. It only reclaims storage; resolution never depends on it.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	today := s.Today()
	cutoff := DateOf(today.Time().Add(-retention))
	n, err := s.store.Purge(ctx, today, cutoff)
	return n, classify("purge", err)
}
