// Package sqlstore persists receiver state in a SQL database.
//
// It is an alternative to the file-backed store for receivers that
// already operate a database, and it enforces the monotonic
// discipline a second time at the storage layer: an update that
// would regress the anchor or the generation counter is refused
// inside the transaction.
package sqlstore

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	asemantic "github.com/asemantix/asemantic-go"
)

// stateRow is the single-row receiver state record. Its size is
// constant regardless of how many fragments have been accepted.
type stateRow struct {
	ID              uint `gorm:"primarykey"`
	Version         int
	Mode            string
	Anchor          uint64
	Seed            string
	RollbackCounter uint64
	UpdatedAt       time.Time
}

func (stateRow) TableName() string {
	return "receiver_state"
}

// Store is a SQL-backed asemantic.Store.
type Store struct {
	db *gorm.DB
}

var _ asemantic.Store = (*Store)(nil)

// Open connects to the database named by driver ("sqlite" or
// "postgres") and dsn, and migrates the state table.
func Open(driver, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlstore: dsn is required")
	}

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}
	if err := db.AutoMigrate(&stateRow{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrating state table: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts the state row. The transaction refuses to overwrite
// a newer generation, so even a buggy caller cannot roll durable
// state backwards.
func (s *Store) Save(b *asemantic.Blob) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row stateRow
		err := tx.First(&row, 1).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = stateRow{ID: 1}
		case err != nil:
			return fmt.Errorf("sqlstore: loading state row: %w", err)
		default:
			if b.Anchor < row.Anchor || b.RollbackCounter < row.RollbackCounter {
				return asemantic.ErrRollbackDetected
			}
		}

		row.Version = b.Version
		row.Mode = b.Mode
		row.Anchor = b.Anchor
		row.Seed = b.Seed
		row.RollbackCounter = b.RollbackCounter
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("sqlstore: saving state row: %w", err)
		}
		return nil
	})
}

// Load returns the persisted blob, or (nil, nil) when none exists.
func (s *Store) Load() (*asemantic.Blob, error) {
	var row stateRow
	err := s.db.First(&row, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: loading state row: %w", err)
	}
	if row.Version != 1 || (row.Mode != "A" && row.Mode != "B") {
		return nil, asemantic.ErrCorruptBlob
	}
	return &asemantic.Blob{
		Version:         row.Version,
		Mode:            row.Mode,
		Anchor:          row.Anchor,
		Seed:            row.Seed,
		RollbackCounter: row.RollbackCounter,
	}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
