package schedule_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"availability-scheduler/internal/schedule"
	"availability-scheduler/internal/store/memory"
)

const agentID int64 = 7

var (
	// 2026-10-12 is a Monday.
	monday    = schedule.Date{Year: 2026, Month: time.October, Day: 12}
	tuesday   = monday.AddDays(1)
	saturday  = monday.AddDays(5)
	sunday    = monday.AddDays(6)
	nextMonth = monday.AddDays(7)
)

func at(d schedule.Date, clock string) time.Time {
	return d.At(schedule.MustTimeOfDay(clock), time.UTC)
}

func span(start, end string) schedule.Span {
	return schedule.Span{Start: schedule.MustTimeOfDay(start), End: schedule.MustTimeOfDay(end)}
}

func tod(s string) schedule.TimeOfDay { return schedule.MustTimeOfDay(s) }

// testClock is a settable clock shared by a service under test.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newService(t *testing.T, now time.Time) (*schedule.Service, *memory.Store, *testClock) {
	t.Helper()
	store := memory.New(agentID)
	clock := &testClock{now: now}
	svc := schedule.NewService(store, store, schedule.Options{
		SlotDuration: 30 * time.Minute,
		TxTimeout:    time.Second,
		Location:     time.UTC,
		Clock:        clock.Now,
	})
	return svc, store, clock
}

func weekdayHours(t *testing.T, svc *schedule.Service, days ...schedule.DaySchedule) {
	t.Helper()
	_, err := svc.SetWeeklySchedule(context.Background(), agentID, days)
	require.NoError(t, err)
}

func nineToFive(day schedule.Weekday) schedule.DaySchedule {
	return schedule.DaySchedule{Day: day, Available: true, Hours: span("09:00", "17:00")}
}

func slotStarts(slots []schedule.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Value()
	}
	return out
}

var errInjected = errors.New("injected failure")

// faultyStore fails InsertRule inside write transactions after the rest of
// the transaction has run.
type faultyStore struct {
	schedule.Store
}

func (f faultyStore) Update(ctx context.Context, agentID int64, fn func(tx schedule.Tx) error) error {
	return f.Store.Update(ctx, agentID, func(tx schedule.Tx) error {
		return fn(faultyTx{Tx: tx})
	})
}

type faultyTx struct {
	schedule.Tx
}

func (faultyTx) InsertRule(context.Context, *schedule.Rule) error { return errInjected }

// stallingStore never starts a transaction until the caller gives up.
type stallingStore struct {
	schedule.Store
}

func (stallingStore) View(ctx context.Context, _ func(tx schedule.Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stallingStore) Update(ctx context.Context, _ int64, _ func(tx schedule.Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// stallingDirectory answers agent lookups only once the caller gives up.
type stallingDirectory struct{}

func (stallingDirectory) AgentExists(ctx context.Context, _ int64) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}
