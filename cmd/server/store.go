package main

import (
	"context"
	"fmt"
	"time"

	"availability-scheduler/internal/config"
	"availability-scheduler/internal/schedule"
	"availability-scheduler/internal/store/memory"
	"availability-scheduler/internal/store/postgres"
	"availability-scheduler/internal/store/sqlite"
)

// backend is the rule store selected by store.driver together with its
// agent directory and lifecycle hooks.
type backend struct {
	store    schedule.Store
	dir      schedule.Directory
	ping     func(ctx context.Context) error
	migrate  func(ctx context.Context) error
	addAgent func(ctx context.Context, id int64, name string) error
	close    func()
}

func openBackend(ctx context.Context, c config.StoreConfig) (*backend, error) {
	switch c.Driver {
	case config.DriverPostgres:
		lockTimeout, err := config.DurationOrDefault(c.LockTimeout, config.DefaultStoreLockTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse store lock timeout: %w", err)
		}
		s, err := postgres.Open(ctx, postgres.Options{
			URL:         c.URL,
			MaxConns:    int32(c.MaxConns),
			LockTimeout: lockTimeout,
		})
		if err != nil {
			return nil, err
		}
		return &backend{store: s, dir: s, ping: s.Ping, migrate: s.Migrate, addAgent: s.AddAgent, close: s.Close}, nil

	case config.DriverSQLite:
		s, err := sqlite.Open(c.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:    s,
			dir:      s,
			ping:     s.Ping,
			migrate:  func(context.Context) error { return s.Migrate() },
			addAgent: s.AddAgent,
			close:    func() { _ = s.Close() },
		}, nil

	case config.DriverMemory:
		s := memory.New()
		return &backend{
			store:   s,
			dir:     s,
			migrate: func(context.Context) error { return nil },
			addAgent: func(_ context.Context, id int64, _ string) error {
				s.AddAgent(id)
				return nil
			},
			close: func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", c.Driver)
}

func newService(b *backend, c *config.Config) (*schedule.Service, error) {
	slot, err := config.DurationOrDefault(c.Schedule.SlotDuration, config.DefaultScheduleSlotDuration)
	if err != nil {
		return nil, fmt.Errorf("parse slot duration: %w", err)
	}
	txTimeout, err := config.DurationOrDefault(c.Store.TxTimeout, config.DefaultStoreTxTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse store tx timeout: %w", err)
	}
	loc, err := c.Schedule.Location()
	if err != nil {
		return nil, err
	}
	return schedule.NewService(b.store, b.dir, schedule.Options{
		SlotDuration: slot,
		TxTimeout:    txTimeout,
		Location:     loc,
		Clock:        time.Now,
	}), nil
}
