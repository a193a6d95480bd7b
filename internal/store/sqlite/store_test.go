package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"availability-scheduler/internal/schedule"
)

const agentID int64 = 3

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scheduler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.AddAgent(context.Background(), agentID, "Dana"))
	return s
}

func newTestService(s *Store, now time.Time) *schedule.Service {
	return schedule.NewService(s, s, schedule.Options{
		Location: time.UTC,
		Clock:    func() time.Time { return now },
	})
}

var (
	monday = schedule.Date{Year: 2026, Month: time.October, Day: 12}
	nine   = schedule.MustTimeOfDay("09:00")
	five   = schedule.MustTimeOfDay("17:00")
)

func TestAgentExists(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	ok, err := s.AgentExists(ctx, agentID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AgentExists(ctx, agentID+1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRuleRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	partial := schedule.Span{Start: schedule.MustTimeOfDay("13:00"), End: schedule.EndOfDay}
	in := []schedule.Rule{
		schedule.NewWeeklyRule(agentID, schedule.Monday, schedule.Span{Start: nine, End: five}),
		schedule.NewException(agentID, monday, true, &partial),
		schedule.NewException(agentID, monday.AddDays(1), false, nil),
	}
	require.NoError(t, s.Update(ctx, agentID, func(tx schedule.Tx) error {
		for i := range in {
			in[i].CreatedAt = time.Date(2026, 10, 1, 0, 0, i, 0, time.UTC)
			if err := tx.InsertRule(ctx, &in[i]); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx schedule.Tx) error {
		rules, err := tx.RulesForDate(ctx, agentID, monday)
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, schedule.KindWeekly, rules[0].Kind)
		assert.Equal(t, schedule.Monday, rules[0].DayOfWeek)
		assert.Equal(t, partial, rules[1].Span)
		assert.Equal(t, monday, rules[1].Date)
		assert.True(t, rules[1].IsAvailable)

		got, err := tx.GetRule(ctx, agentID, in[2].ID)
		require.NoError(t, err)
		assert.True(t, got.WholeDay)
		assert.Equal(t, schedule.WholeDay, got.Span)

		_, err = tx.GetRule(ctx, agentID+1, in[2].ID)
		assert.ErrorIs(t, err, schedule.ErrNotFound)

		r := schedule.NewWeeklyRule(agentID, schedule.Friday, schedule.Span{Start: nine, End: five})
		assert.ErrorIs(t, tx.InsertRule(ctx, &r), errReadOnly)
		return nil
	}))
}

func TestBookingThroughService(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	svc := newTestService(s, monday.At(schedule.MustTimeOfDay("08:00"), time.UTC))

	_, err := svc.SetWeeklySchedule(ctx, agentID, []schedule.DaySchedule{
		{Day: schedule.Monday, Available: true, Hours: schedule.Span{Start: nine, End: five}},
	})
	require.NoError(t, err)

	appt, err := svc.BookSlot(ctx, schedule.BookingRequest{
		AgentID: agentID, ClientID: 11, Date: monday, Start: schedule.MustTimeOfDay("10:00"),
		Location: schedule.LocationOnlineMeeting, Message: "hello",
	})
	require.NoError(t, err)

	slots, err := svc.AvailableSlots(ctx, agentID, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 15)

	_, err = svc.BookSlot(ctx, schedule.BookingRequest{
		AgentID: agentID, ClientID: 12, Date: monday, Start: schedule.MustTimeOfDay("10:00"),
	})
	assert.ErrorIs(t, err, schedule.ErrSlotUnavailable)

	appts, err := svc.ListAppointments(ctx, schedule.AppointmentFilter{AgentID: agentID, From: monday, To: monday})
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, appt.ID, appts[0].ID)
	assert.Equal(t, "hello", appts[0].Message)
	assert.Equal(t, schedule.LocationOnlineMeeting, appts[0].Location)

	_, err = svc.CancelAppointment(ctx, agentID, appt.ID)
	require.NoError(t, err)
	slots, err = svc.AvailableSlots(ctx, agentID, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 16)
}

func TestDuplicateScheduledSlotRejectedByIndex(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	appt := func(id string, status schedule.AppointmentStatus) *schedule.Appointment {
		return &schedule.Appointment{
			ID: id, AgentID: agentID, ClientID: 1, Date: monday, Start: nine,
			Duration: 30 * time.Minute, Status: status, Location: schedule.LocationOfficeVisit,
		}
	}

	require.NoError(t, s.Update(ctx, agentID, func(tx schedule.Tx) error {
		if err := tx.InsertAppointment(ctx, appt("a", schedule.StatusCancelled)); err != nil {
			return err
		}
		return tx.InsertAppointment(ctx, appt("b", schedule.StatusScheduled))
	}))

	err := s.Update(ctx, agentID, func(tx schedule.Tx) error {
		return tx.InsertAppointment(ctx, appt("c", schedule.StatusScheduled))
	})
	assert.ErrorIs(t, err, schedule.ErrSlotUnavailable)
}

func TestPurge(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	span := schedule.Span{Start: nine, End: five}
	require.NoError(t, s.Update(ctx, agentID, func(tx schedule.Tx) error {
		for _, r := range []schedule.Rule{
			schedule.NewQuickOverride(agentID, monday.AddDays(-1), true, span),
			schedule.NewQuickOverride(agentID, monday, true, span),
			schedule.NewException(agentID, monday.AddDays(-40), false, nil),
			schedule.NewWeeklyRule(agentID, schedule.Monday, span),
		} {
			if err := tx.InsertRule(ctx, &r); err != nil {
				return err
			}
		}
		return nil
	}))

	n, err := s.Purge(ctx, monday, monday.AddDays(-30))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
