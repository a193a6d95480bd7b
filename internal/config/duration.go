package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DurationOrDefault parses a duration string and falls back to defaultValue when empty.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	return d, nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse port %q: %w", s, err)
	}
	if n <= 0 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return n, nil
}

// Location resolves schedule.timezone. "Local" and "" mean the process zone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	switch tz := strings.TrimSpace(s.Timezone); tz {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		return loc, nil
	}
}

// Validate rejects values that would otherwise only fail on first use.
func (c *Config) Validate() error {
	durations := []struct {
		key, value string
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"store.tx_timeout", c.Store.TxTimeout},
		{"store.lock_timeout", c.Store.LockTimeout},
		{"schedule.slot_duration", c.Schedule.SlotDuration},
		{"housekeeping.retention", c.Housekeeping.Retention},
	}
	for _, d := range durations {
		v, err := DurationOrDefault(d.value, "")
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return fmt.Errorf("%s: must not be negative", d.key)
		}
	}

	slot, _ := DurationOrDefault(c.Schedule.SlotDuration, "")
	if slot < time.Minute || slot%time.Minute != 0 {
		return fmt.Errorf("schedule.slot_duration: %s is not a whole number of minutes", slot)
	}
	if _, err := c.Schedule.Location(); err != nil {
		return err
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url (or DATABASE_URL) is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode: unknown mode %q", c.Server.Mode)
	}
	return nil
}
