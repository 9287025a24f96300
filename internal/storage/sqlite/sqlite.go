// Package sqlite implements the history Store using SQLite via GORM.
// Uses modernc.org/sqlite (pure Go, no CGO) through the glebarez/sqlite
// GORM driver. WAL mode is enabled by default for concurrent reads.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkaninda/pyguard-terminal/internal/storage"
)

// Config holds SQLite-specific configuration.
type Config struct {
	Path        string // Database file path.
	JournalMode string // WAL mode by default.
}

// commandModel is the GORM model for storage.CommandRecord.
type commandModel struct {
	ID         string    `gorm:"type:text;primaryKey"`
	ClientID   string    `gorm:"type:text;not null;index:idx_commands_client_created,priority:1"`
	Command    string    `gorm:"type:text;not null"`
	Verdict    string    `gorm:"type:text;not null"`
	Reason     string    `gorm:"type:text"`
	Outcome    string    `gorm:"type:text"`
	DurationMs int64     `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"not null;index:idx_commands_client_created,priority:2;index:idx_commands_created"`
}

func (commandModel) TableName() string { return "commands" }

// Store implements storage.Store backed by SQLite.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	path   string
}

// Open creates a new SQLite-backed Store.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}

	journalMode := cfg.JournalMode
	if journalMode == "" {
		journalMode = "wal"
	}

	// Build DSN with pragmas.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path, journalMode)

	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slogger,
		path:   cfg.Path,
	}

	slogger.Info("sqlite store opened", slog.String("path", cfg.Path), slog.String("journal_mode", journalMode))
	return s, nil
}

// Migrate runs GORM AutoMigrate to create/update tables.
func (s *Store) Migrate(_ context.Context) error {
	return s.db.AutoMigrate(&commandModel{})
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns "sqlite".
func (s *Store) Driver() string {
	return storage.DriverSQLite
}

// Record appends one command record, assigning ID and CreatedAt when unset.
func (s *Store) Record(ctx context.Context, rec *storage.CommandRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m := toModel(rec)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("recording command: %w", err)
	}
	return nil
}

// RecentByClient returns the newest records for one client, newest first.
func (s *Store) RecentByClient(ctx context.Context, clientID string, limit int) ([]*storage.CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []commandModel
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing command history: %w", err)
	}
	records := make([]*storage.CommandRecord, 0, len(models))
	for i := range models {
		rec, err := fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// PurgeBefore deletes records created before the cutoff.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&commandModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("purging command history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// TrimToNewest deletes the oldest records beyond the max row cap.
func (s *Store) TrimToNewest(ctx context.Context, max int) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	newest := s.db.Model(&commandModel{}).
		Select("id").
		Order("created_at DESC").
		Limit(max)
	res := s.db.WithContext(ctx).
		Where("id NOT IN (?)", newest).
		Delete(&commandModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("trimming command history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Count returns the total number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&commandModel{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting command history: %w", err)
	}
	return n, nil
}

func toModel(rec *storage.CommandRecord) commandModel {
	return commandModel{
		ID:         rec.ID.String(),
		ClientID:   rec.ClientID,
		Command:    rec.Command,
		Verdict:    rec.Verdict,
		Reason:     rec.Reason,
		Outcome:    rec.Outcome,
		DurationMs: rec.DurationMs,
		CreatedAt:  rec.CreatedAt,
	}
}

func fromModel(m *commandModel) (*storage.CommandRecord, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing command id %q: %w", m.ID, err)
	}
	return &storage.CommandRecord{
		ID:         id,
		ClientID:   m.ClientID,
		Command:    m.Command,
		Verdict:    m.Verdict,
		Reason:     m.Reason,
		Outcome:    m.Outcome,
		DurationMs: m.DurationMs,
		CreatedAt:  m.CreatedAt,
	}, nil
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
