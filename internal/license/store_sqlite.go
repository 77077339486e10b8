package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// licenseRow is the single-row table backing SQLiteStore. The record is
// stored as a JSON payload since all fields are written together anyway.
type licenseRow struct {
	ID        uint   `gorm:"primaryKey"`
	Payload   string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (licenseRow) TableName() string { return "license_records" }

// SQLiteStore persists the license record in a SQLite database, for hosts
// that already carry a database file and prefer it over a loose JSON file.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates the
// license table.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open license db: %w", err)
	}
	if err := db.AutoMigrate(&licenseRow{}); err != nil {
		return nil, fmt.Errorf("migrate license db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the license record.
func (s *SQLiteStore) Load(ctx context.Context) (Record, error) {
	var row licenseRow
	err := s.db.WithContext(ctx).First(&row, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNoRecord
	}
	if err != nil {
		return Record{}, fmt.Errorf("load license record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(row.Payload), &rec); err != nil {
		return Record{}, ErrNoRecord
	}
	return rec, nil
}

// Save upserts the single license row.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal license record: %w", err)
	}
	row := licenseRow{ID: 1, Payload: string(payload), UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save license record: %w", err)
	}
	return nil
}

// Clear deletes the stored record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Delete(&licenseRow{}, 1).Error
	if err != nil {
		return fmt.Errorf("clear license record: %w", err)
	}
	return nil
}
