// Package sqlite is a schedule.Store on an embedded SQLite file through gorm,
// for single-node deployments. The pool holds one connection, so
// transactions are serialized and an agent-exclusive Update needs no extra
// locking.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"availability-scheduler/internal/schedule"
)

var errReadOnly = errors.New("sqlite store: write in read-only transaction")

type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&agentRow{}, &appointmentRow{}, &ruleRow{}); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	slog.Debug("SQLite schema up to date")
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) View(ctx context.Context, fn func(tx schedule.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
}

func (s *Store) Update(ctx context.Context, _ int64, fn func(tx schedule.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db, writable: true})
	})
}

func (s *Store) Purge(ctx context.Context, quickBefore, exceptionsBefore schedule.Date) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("(kind IN ? AND specific_date < ?) OR (kind = ? AND specific_date < ?)",
			[]string{string(schedule.KindQuickAvailable), string(schedule.KindQuickBlocked)}, quickBefore.String(),
			string(schedule.KindException), exceptionsBefore.String()).
		Delete(&ruleRow{})
	if res.Error != nil {
		return 0, mapErr("purge", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) AgentExists(ctx context.Context, agentID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&agentRow{}).Where("id = ?", agentID).Count(&count).Error
	if err != nil {
		return false, mapErr("look up agent", err)
	}
	return count > 0, nil
}

func (s *Store) AddAgent(ctx context.Context, agentID int64, name string) error {
	err := s.db.WithContext(ctx).Save(&agentRow{ID: agentID, Name: name}).Error
	if err != nil {
		return mapErr("add agent", err)
	}
	slog.Info("Agent registered", "agent_id", agentID)
	return nil
}

func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, schedule.ErrSlotUnavailable)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, schedule.ErrNotFound)
	}
	return schedule.StoreFailure(op, err)
}
