package schedule_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"availability-scheduler/internal/schedule"
	"availability-scheduler/internal/store/memory"
)

const clientID int64 = 42

func booking(date schedule.Date, start string) schedule.BookingRequest {
	return schedule.BookingRequest{
		AgentID:  agentID,
		ClientID: clientID,
		Date:     date,
		Start:    tod(start),
		Location: schedule.LocationOnlineMeeting,
		Message:  "first viewing",
	}
}

func TestBookSlot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t, at(monday, "08:00"))
	weekdayHours(t, svc, nineToFive(schedule.Monday))

	appt, err := svc.BookSlot(ctx, booking(monday, "10:00"))
	require.NoError(t, err)
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, schedule.StatusScheduled, appt.Status)
	assert.Equal(t, schedule.LocationOnlineMeeting, appt.Location)
	assert.Equal(t, 30*time.Minute, appt.Duration)
	assert.Equal(t, at(monday, "10:00"), appt.DateTime(time.UTC))

	slots, err := svc.AvailableSlots(ctx, agentID, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 15)
	assert.NotContains(t, slotStarts(slots), "10:00:00")
	assert.Contains(t, slotStarts(slots), "09:30:00")
	assert.Contains(t, slotStarts(slots), "10:30:00")

	var blocks []schedule.Rule
	require.NoError(t, store.View(ctx, func(tx schedule.Tx) error {
		rules, err := tx.RulesForDate(ctx, agentID, monday)
		for _, r := range rules {
			if r.AppointmentID != "" {
				blocks = append(blocks, r)
			}
		}
		return err
	}))
	require.Len(t, blocks, 1)
	assert.Equal(t, appt.ID, blocks[0].AppointmentID)
	assert.Equal(t, span("10:00", "10:30"), blocks[0].Span)
	assert.False(t, blocks[0].IsAvailable)

	cancelled, err := svc.CancelAppointment(ctx, agentID, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCancelled, cancelled.Status)

	slots, err = svc.AvailableSlots(ctx, agentID, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 16)
	assert.Contains(t, slotStarts(slots), "10:00:00")

	rules, err := svc.ListRules(ctx, agentID)
	require.NoError(t, err)
	for _, r := range rules {
		assert.Empty(t, r.AppointmentID, "blocking exception survived cancellation")
	}
}

func TestBookSlot_ConcurrentRequestsForOneSlot(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, at(monday, "08:00"))
	weekdayHours(t, svc, nineToFive(schedule.Monday))

	const attempts = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		i := i // per-iteration copy (go directive is below 1.22)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			req := booking(monday, "11:00")
			req.ClientID = clientID + int64(i)
			_, err := svc.BookSlot(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errs = append(errs, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, ok)
	require.Len(t, errs, attempts-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, schedule.ErrSlotUnavailable)
		assert.False(t, schedule.IsRetryable(err))
	}

	appts, err := svc.ListAppointments(ctx, schedule.AppointmentFilter{AgentID: agentID, Status: schedule.StatusScheduled})
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestBookSlot_Rejections(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, at(monday, "10:00"))
	weekdayHours(t, svc, nineToFive(schedule.Monday), nineToFive(schedule.Tuesday))

	cases := []struct {
		name string
		req  func() schedule.BookingRequest
		want error
	}{
		{"slot already started", func() schedule.BookingRequest { return booking(monday, "10:00") }, schedule.ErrPastDateTime},
		{"earlier today", func() schedule.BookingRequest { return booking(monday, "09:00") }, schedule.ErrPastDateTime},
		{"past date", func() schedule.BookingRequest { return booking(monday.AddDays(-7), "11:00") }, schedule.ErrPastDateTime},
		{"off the slot grid", func() schedule.BookingRequest { return booking(tuesday, "10:15") }, schedule.ErrInvalidTimeRange},
		{"after hours", func() schedule.BookingRequest { return booking(tuesday, "18:00") }, schedule.ErrInvalidTimeRange},
		{"last partial slot", func() schedule.BookingRequest { return booking(tuesday, "16:45") }, schedule.ErrInvalidTimeRange},
		{"closed day", func() schedule.BookingRequest { return booking(sunday, "10:00") }, schedule.ErrInvalidTimeRange},
		{"missing client", func() schedule.BookingRequest {
			r := booking(tuesday, "10:00")
			r.ClientID = 0
			return r
		}, schedule.ErrValidation},
		{"missing date", func() schedule.BookingRequest { return booking(schedule.Date{}, "10:00") }, schedule.ErrValidation},
		{"bad location", func() schedule.BookingRequest {
			r := booking(tuesday, "10:00")
			r.Location = "rooftop"
			return r
		}, schedule.ErrValidation},
		{"bad property", func() schedule.BookingRequest {
			r := booking(tuesday, "10:00")
			p := int64(-1)
			r.PropertyID = &p
			return r
		}, schedule.ErrValidation},
		{"unknown agent", func() schedule.BookingRequest {
			r := booking(tuesday, "10:00")
			r.AgentID = agentID + 1
			return r
		}, schedule.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appt, err := svc.BookSlot(ctx, tc.req())
			assert.Nil(t, appt)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	appts, err := svc.ListAppointments(ctx, schedule.AppointmentFilter{AgentID: agentID})
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestBookSlot_SecondBookingIsUnavailable(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, at(monday, "08:00"))
	weekdayHours(t, svc, nineToFive(schedule.Monday))

	_, err := svc.BookSlot(ctx, booking(monday, "14:00"))
	require.NoError(t, err)

	_, err = svc.BookSlot(ctx, booking(monday, "14:00"))
	require.ErrorIs(t, err, schedule.ErrSlotUnavailable)
	assert.Equal(t, schedule.KindSlotUnavailable, schedule.ErrorKind(err))
}

func TestBookSlot_InsideExceptionWindow(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, at(monday, "08:00"))
	extra := span("10:00", "12:00")
	_, err := svc.AddException(ctx, agentID, schedule.ExceptionRequest{Date: saturday, Available: true, Span: &extra})
	require.NoError(t, err)

	_, err = svc.BookSlot(ctx, booking(saturday, "10:30"))
	require.NoError(t, err)
	_, err = svc.BookSlot(ctx, booking(saturday, "11:00"))
	require.NoError(t, err)

	slots, err := svc.AvailableSlots(ctx, agentID, saturday)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00:00", "11:30:00"}, slotStarts(slots))
}

func TestBookSlot_RollsBackOnFailedBlock(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newService(t, at(monday, "08:00"))
	weekdayHours(t, svc, nineToFive(schedule.Monday))

	faulty := schedule.NewService(faultyStore{Store: store}, store, schedule.Options{
		Location: time.UTC,
		Clock:    clock.Now,
	})
	_, err := faulty.BookSlot(ctx, booking(monday, "10:00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInjected))
	assert.ErrorIs(t, err, schedule.ErrStore)

	appts, err := svc.ListAppointments(ctx, schedule.AppointmentFilter{AgentID: agentID})
	require.NoError(t, err)
	assert.Empty(t, appts, "appointment without its blocking exception is visible")

	slots, err := svc.AvailableSlots(ctx, agentID, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 16)
}

func TestBookSlot_TimesOutAsConflict(t *testing.T) {
	svc := schedule.NewService(stallingStore{Store: memory.New(agentID)}, nil, schedule.Options{
		Location:  time.UTC,
		TxTimeout: 20 * time.Millisecond,
		Clock:     func() time.Time { return at(monday, "08:00") },
	})

	_, err := svc.BookSlot(context.Background(), booking(tuesday, "10:00"))
	require.ErrorIs(t, err, schedule.ErrConflict)
	assert.True(t, schedule.IsRetryable(err))
}

func TestReadsTimeOutAsConflict(t *testing.T) {
	opts := schedule.Options{
		Location:  time.UTC,
		TxTimeout: 20 * time.Millisecond,
		Clock:     func() time.Time { return at(monday, "08:00") },
	}
	ctx := context.Background()

	reads := map[string]func(svc *schedule.Service) error{
		"available slots": func(svc *schedule.Service) error {
			_, err := svc.AvailableSlots(ctx, agentID, monday)
			return err
		},
		"current status": func(svc *schedule.Service) error {
			_, err := svc.CurrentStatus(ctx, agentID)
			return err
		},
		"list rules": func(svc *schedule.Service) error {
			_, err := svc.ListRules(ctx, agentID)
			return err
		},
		"list appointments": func(svc *schedule.Service) error {
			_, err := svc.ListAppointments(ctx, schedule.AppointmentFilter{AgentID: agentID})
			return err
		},
	}

	for name, read := range reads {
		t.Run(name, func(t *testing.T) {
			store := memory.New(agentID)
			for _, svc := range []*schedule.Service{
				schedule.NewService(stallingStore{Store: store}, nil, opts),
				schedule.NewService(store, stallingDirectory{}, opts),
			} {
				done := make(chan error, 1)
				go func() { done <- read(svc) }()
				select {
				case err := <-done:
					require.ErrorIs(t, err, schedule.ErrConflict)
					assert.True(t, schedule.IsRetryable(err))
				case <-time.After(2 * time.Second):
					t.Fatal("read did not honor the transaction timeout")
				}
			}
		})
	}

	svc := schedule.NewService(stallingStore{Store: memory.New(agentID)}, nil, opts)
	_, err := svc.ResolveDay(ctx, agentID, monday)
	require.ErrorIs(t, err, schedule.ErrConflict)
}

func TestCancelAppointment(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, at(monday, "08:00"))
	weekdayHours(t, svc, nineToFive(schedule.Monday))

	appt, err := svc.BookSlot(ctx, booking(monday, "09:00"))
	require.NoError(t, err)

	_, err = svc.CancelAppointment(ctx, agentID+1, appt.ID)
	assert.ErrorIs(t, err, schedule.ErrNotFound)

	_, err = svc.CancelAppointment(ctx, agentID, "missing")
	assert.ErrorIs(t, err, schedule.ErrNotFound)

	_, err = svc.CancelAppointment(ctx, agentID, "")
	assert.ErrorIs(t, err, schedule.ErrValidation)

	_, err = svc.CancelAppointment(ctx, agentID, appt.ID)
	require.NoError(t, err)

	_, err = svc.CancelAppointment(ctx, agentID, appt.ID)
	assert.ErrorIs(t, err, schedule.ErrValidation)

	got, err := svc.ListAppointments(ctx, schedule.AppointmentFilter{AgentID: agentID, Status: schedule.StatusCancelled})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, appt.ID, got[0].ID)

	// The slot can be booked again once cancelled.
	again, err := svc.BookSlot(ctx, booking(monday, "09:00"))
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, again.ID)
}

func TestListAppointments_RejectsInvertedRange(t *testing.T) {
	svc, _, _ := newService(t, at(monday, "08:00"))
	_, err := svc.ListAppointments(context.Background(), schedule.AppointmentFilter{AgentID: agentID, From: tuesday, To: monday})
	assert.ErrorIs(t, err, schedule.ErrValidation)
}
