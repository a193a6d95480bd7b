package housekeeping

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"availability-scheduler/internal/config"
	"availability-scheduler/internal/schedule"
	"availability-scheduler/internal/store/memory"
)

type countingPurger struct {
	calls     atomic.Int32
	retention time.Duration
	err       error
}

func (p *countingPurger) Purge(_ context.Context, retention time.Duration) (int64, error) {
	p.calls.Add(1)
	p.retention = retention
	return 3, p.err
}

func TestNew(t *testing.T) {
	p := &countingPurger{}

	job, err := New(p, config.HousekeepingConfig{}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultHousekeepingSchedule, job.schedule)
	assert.Equal(t, 720*time.Hour, job.retention)

	_, err = New(p, config.HousekeepingConfig{Schedule: "every night"}, time.UTC)
	assert.ErrorContains(t, err, "invalid cron schedule")

	_, err = New(p, config.HousekeepingConfig{Retention: "a month"}, time.UTC)
	assert.ErrorContains(t, err, "retention")
}

func TestRunOnce(t *testing.T) {
	p := &countingPurger{}
	job, err := New(p, config.HousekeepingConfig{Retention: "48h"}, time.UTC)
	require.NoError(t, err)

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 48*time.Hour, p.retention)

	p.err = errors.New("store down")
	_, err = job.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunOncePurgesStore(t *testing.T) {
	const agentID int64 = 5
	store := memory.New(agentID)
	now := time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)
	svc := schedule.NewService(store, store, schedule.Options{Location: time.UTC, Clock: func() time.Time { return now }})

	old := schedule.DateOf(now).AddDays(-40)
	require.NoError(t, store.Update(context.Background(), agentID, func(tx schedule.Tx) error {
		for _, r := range []schedule.Rule{
			schedule.NewException(agentID, old, false, nil),
			schedule.NewQuickOverride(agentID, schedule.DateOf(now).AddDays(-1), true, schedule.Span{Start: 0, End: 3600}),
			schedule.NewException(agentID, schedule.DateOf(now).AddDays(3), false, nil),
		} {
			if err := tx.InsertRule(context.Background(), &r); err != nil {
				return err
			}
		}
		return nil
	}))

	job, err := New(svc, config.HousekeepingConfig{Retention: "720h"}, time.UTC)
	require.NoError(t, err)
	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rules, err := svc.ListRules(context.Background(), agentID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, schedule.DateOf(now).AddDays(3), rules[0].Date)
}

func TestRunOnSchedule(t *testing.T) {
	p := &countingPurger{}
	job, err := New(p, config.HousekeepingConfig{Schedule: "@every 1s"}, time.UTC)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
