package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"availability-scheduler/internal/schedule"
)

func rule(r schedule.Rule, id int64, created time.Time) schedule.Rule {
	r.ID = id
	r.CreatedAt = created
	return r
}

func assertPartition(t *testing.T, day schedule.DayAvailability) {
	t.Helper()
	require.NotEmpty(t, day.Intervals)
	assert.Equal(t, schedule.Midnight, day.Intervals[0].Start)
	assert.Equal(t, schedule.EndOfDay, day.Intervals[len(day.Intervals)-1].End)
	for i := 1; i < len(day.Intervals); i++ {
		prev, cur := day.Intervals[i-1], day.Intervals[i]
		assert.Equal(t, prev.End, cur.Start, "gap or overlap at interval %d", i)
		assert.NotEqual(t, prev.State, cur.State, "adjacent intervals %d and %d share a state", i-1, i)
		assert.True(t, cur.Valid())
	}
}

func TestResolve_WeeklyWithLunchBreak(t *testing.T) {
	now := at(monday, "07:00")
	rules := []schedule.Rule{
		rule(schedule.NewWeeklyRule(agentID, schedule.Monday, span("09:00", "17:00")), 1, now),
		rule(schedule.NewLunchBreak(agentID, schedule.Monday, span("12:00", "13:00")), 2, now),
	}

	day := schedule.Resolve(agentID, monday, rules, now)

	assertPartition(t, day)
	assert.Equal(t, []schedule.Span{span("09:00", "12:00"), span("13:00", "17:00")}, day.OpenSpans())
	assert.Len(t, day.Intervals, 5)
}

func TestResolve_NoRulesIsClosedAllDay(t *testing.T) {
	now := at(monday, "07:00")
	rules := []schedule.Rule{
		rule(schedule.NewWeeklyRule(agentID, schedule.Monday, span("09:00", "17:00")), 1, now),
	}

	day := schedule.Resolve(agentID, sunday, rules, now)

	assertPartition(t, day)
	assert.Empty(t, day.OpenSpans())
	assert.Equal(t, []schedule.Interval{{Span: schedule.WholeDay, State: schedule.Closed}}, day.Intervals)
}

func TestResolve_ExceptionOpensDayWithoutWeeklyRule(t *testing.T) {
	now := at(monday, "07:00")
	s := span("10:00", "14:00")
	rules := []schedule.Rule{
		rule(schedule.NewException(agentID, saturday, true, &s), 1, now),
	}

	day := schedule.Resolve(agentID, saturday, rules, now)

	assertPartition(t, day)
	assert.Equal(t, []schedule.Span{span("10:00", "14:00")}, day.OpenSpans())
}

func TestResolve_ExceptionPrecedence(t *testing.T) {
	now := at(monday, "07:00")
	weekly := rule(schedule.NewWeeklyRule(agentID, schedule.Monday, span("09:00", "17:00")), 1, now)
	lunch := rule(schedule.NewLunchBreak(agentID, schedule.Monday, span("12:00", "13:00")), 2, now)

	t.Run("whole day block closes weekly hours", func(t *testing.T) {
		block := rule(schedule.NewException(agentID, monday, false, nil), 3, now)
		day := schedule.Resolve(agentID, monday, []schedule.Rule{weekly, block}, now)
		assert.Empty(t, day.OpenSpans())
	})

	t.Run("available exception overrides lunch break", func(t *testing.T) {
		s := span("12:00", "12:30")
		open := rule(schedule.NewException(agentID, monday, true, &s), 3, now)
		day := schedule.Resolve(agentID, monday, []schedule.Rule{weekly, lunch, open}, now)
		assert.Equal(t, []schedule.Span{span("09:00", "12:30"), span("13:00", "17:00")}, day.OpenSpans())
	})

	t.Run("partial exception applies over whole day exception", func(t *testing.T) {
		s := span("10:00", "11:00")
		partial := rule(schedule.NewException(agentID, monday, true, &s), 3, now)
		block := rule(schedule.NewException(agentID, monday, false, nil), 4, now.Add(time.Minute))
		day := schedule.Resolve(agentID, monday, []schedule.Rule{weekly, partial, block}, now)
		assert.Equal(t, []schedule.Span{span("10:00", "11:00")}, day.OpenSpans())
	})

	t.Run("exception for another date is ignored", func(t *testing.T) {
		block := rule(schedule.NewException(agentID, tuesday, false, nil), 3, now)
		day := schedule.Resolve(agentID, monday, []schedule.Rule{weekly, block}, now)
		assert.Equal(t, []schedule.Span{span("09:00", "17:00")}, day.OpenSpans())
	})
}

func TestResolve_QuickBlockedAppliesToTodayOnly(t *testing.T) {
	now := at(monday, "14:00")
	rules := []schedule.Rule{
		rule(schedule.NewWeeklyRule(agentID, schedule.Monday, span("09:00", "17:00")), 1, now.Add(-time.Hour)),
		rule(schedule.NewWeeklyRule(agentID, schedule.Tuesday, span("09:00", "17:00")), 2, now.Add(-time.Hour)),
		rule(schedule.NewQuickOverride(agentID, monday, false, span("14:00", "15:00")), 3, now),
	}

	today := schedule.Resolve(agentID, monday, rules, now)
	assertPartition(t, today)
	assert.Equal(t, []schedule.Span{span("09:00", "14:00"), span("15:00", "17:00")}, today.OpenSpans())
	assert.Equal(t, schedule.Closed, today.At(tod("14:30")).State)

	tomorrow := schedule.Resolve(agentID, tuesday, rules, now)
	assert.Equal(t, []schedule.Span{span("09:00", "17:00")}, tomorrow.OpenSpans())
}

func TestResolve_QuickOverrideIgnoredOnceExpired(t *testing.T) {
	rules := []schedule.Rule{
		rule(schedule.NewWeeklyRule(agentID, schedule.Monday, span("09:00", "17:00")), 1, at(monday, "08:00")),
		rule(schedule.NewQuickOverride(agentID, monday, false, span("14:00", "15:00")), 2, at(monday, "14:00")),
	}

	day := schedule.Resolve(agentID, monday, rules, at(monday, "15:00"))
	assert.Equal(t, []schedule.Span{span("09:00", "17:00")}, day.OpenSpans())

	// The same override viewed from another day has no effect either.
	day = schedule.Resolve(agentID, monday, rules, at(tuesday, "14:30"))
	assert.Equal(t, []schedule.Span{span("09:00", "17:00")}, day.OpenSpans())
}

func TestResolve_QuickAvailableOpensClosedDay(t *testing.T) {
	now := at(sunday, "10:05")
	rules := []schedule.Rule{
		rule(schedule.NewQuickOverride(agentID, sunday, true, span("10:00", "11:00")), 1, at(sunday, "10:00")),
	}

	day := schedule.Resolve(agentID, sunday, rules, now)
	assert.Equal(t, []schedule.Span{span("10:00", "11:00")}, day.OpenSpans())
}

func TestResolve_LatestQuickOverrideWins(t *testing.T) {
	weekly := rule(schedule.NewWeeklyRule(agentID, schedule.Monday, span("09:00", "17:00")), 1, at(monday, "08:00"))
	blocked := schedule.NewQuickOverride(agentID, monday, false, span("14:00", "16:00"))
	available := schedule.NewQuickOverride(agentID, monday, true, span("14:10", "14:40"))
	now := at(monday, "14:20")

	t.Run("available created last", func(t *testing.T) {
		rules := []schedule.Rule{weekly, rule(available, 3, at(monday, "14:10")), rule(blocked, 2, at(monday, "14:00"))}
		day := schedule.Resolve(agentID, monday, rules, now)
		assert.Equal(t, schedule.Open, day.At(tod("14:20")).State)
		assert.Equal(t, schedule.Closed, day.At(tod("15:00")).State)

		active := schedule.ActiveOverride(rules, now)
		require.NotNil(t, active)
		assert.Equal(t, schedule.KindQuickAvailable, active.Kind)
	})

	t.Run("blocked created last", func(t *testing.T) {
		rules := []schedule.Rule{weekly, rule(available, 2, at(monday, "14:10")), rule(blocked, 3, at(monday, "14:15"))}
		day := schedule.Resolve(agentID, monday, rules, now)
		assert.Equal(t, schedule.Closed, day.At(tod("14:20")).State)

		active := schedule.ActiveOverride(rules, now)
		require.NotNil(t, active)
		assert.Equal(t, schedule.KindQuickBlocked, active.Kind)
	})
}

func TestResolve_AlwaysPartitionsTheDay(t *testing.T) {
	now := at(monday, "11:00")
	a, b, c := span("00:00", "01:00"), span("23:00", "24:00"), span("08:00", "09:30")
	sets := [][]schedule.Rule{
		nil,
		{rule(schedule.NewWeeklyRule(agentID, schedule.Monday, schedule.WholeDay), 1, now)},
		{
			rule(schedule.NewWeeklyRule(agentID, schedule.Monday, span("09:00", "17:00")), 1, now),
			rule(schedule.NewException(agentID, monday, true, &a), 2, now),
			rule(schedule.NewException(agentID, monday, true, &b), 3, now),
			rule(schedule.NewException(agentID, monday, true, &c), 4, now),
			rule(schedule.NewLunchBreak(agentID, schedule.Monday, span("09:00", "17:00")), 5, now),
			rule(schedule.NewQuickOverride(agentID, monday, true, span("10:59", "11:30")), 6, now),
		},
	}
	for _, rules := range sets {
		assertPartition(t, schedule.Resolve(agentID, monday, rules, now))
	}
}

func TestResolveDay_Idempotent(t *testing.T) {
	svc, _, _ := newService(t, at(monday, "07:00"))
	ctx := context.Background()
	weekdayHours(t, svc, schedule.DaySchedule{
		Day: schedule.Monday, Available: true, Hours: span("09:00", "17:00"),
		Lunch: &schedule.Span{Start: tod("12:00"), End: tod("13:00")},
	})

	first, err := svc.ResolveDay(ctx, agentID, monday)
	require.NoError(t, err)
	second, err := svc.ResolveDay(ctx, agentID, monday)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []schedule.Span{span("09:00", "12:00"), span("13:00", "17:00")}, first.OpenSpans())
}

func TestCurrentStatus(t *testing.T) {
	svc, _, clock := newService(t, at(monday, "10:00"))
	ctx := context.Background()
	weekdayHours(t, svc, nineToFive(schedule.Monday))

	status, err := svc.CurrentStatus(ctx, agentID)
	require.NoError(t, err)
	assert.True(t, status.Open())
	assert.Nil(t, status.Override)
	assert.Equal(t, span("09:00", "17:00"), status.Interval.Span)

	_, err = svc.QuickToggle(ctx, agentID, false, 45*time.Minute)
	require.NoError(t, err)

	status, err = svc.CurrentStatus(ctx, agentID)
	require.NoError(t, err)
	assert.False(t, status.Open())
	require.NotNil(t, status.Override)
	assert.Equal(t, schedule.KindQuickBlocked, status.Override.Kind)

	clock.now = at(monday, "10:45")
	status, err = svc.CurrentStatus(ctx, agentID)
	require.NoError(t, err)
	assert.True(t, status.Open(), "override expires by its span alone")
	assert.Nil(t, status.Override)
}
