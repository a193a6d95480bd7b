// Package housekeeping purges rules that can no longer affect resolution.
package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"availability-scheduler/internal/config"
)

const runTimeout = time.Minute

type Purger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

type Job struct {
	purger    Purger
	schedule  string
	retention time.Duration
	loc       *time.Location

	mu      sync.Mutex
	running bool
}

func New(purger Purger, cfg config.HousekeepingConfig, loc *time.Location) (*Job, error) {
	retention, err := config.DurationOrDefault(cfg.Retention, config.DefaultHousekeepingRetention)
	if err != nil {
		return nil, fmt.Errorf("parse housekeeping retention: %w", err)
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = config.DefaultHousekeepingSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Job{purger: purger, schedule: schedule, retention: retention, loc: loc}, nil
}

// RunOnce purges once and returns how many rules were removed. A run that
// starts while another is in progress does nothing.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return 0, nil
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	start := time.Now()
	n, err := j.purger.Purge(ctx, j.retention)
	if err != nil {
		slog.Error("Housekeeping failed", "error", err)
		return 0, err
	}
	slog.Info("Housekeeping done", "purged", n, "retention", j.retention.String(), "took", time.Since(start))
	return n, nil
}

// Run purges on the cron schedule until ctx is done, then waits for a
// running purge to finish.
func (j *Job) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(j.loc))
	if _, err := c.AddFunc(j.schedule, func() { _, _ = j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule housekeeping: %w", err)
	}
	c.Start()
	slog.Info("Housekeeping scheduled", "schedule", j.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("Housekeeping stopped")
	return nil
}
