package memory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Record is the persisted row behind one hardware_id's memory pair.
type Record struct {
	gorm.Model
	HardwareID string `gorm:"uniqueIndex;size:255;not null"`
	Short      string `gorm:"type:text"`
	Long       string `gorm:"type:text"`
}

// PostgresAdapter implements DatabaseAdapter over a Postgres table via
// gorm, grounded on the entity/gorm-tag idiom used for persisted
// records throughout the pack.
type PostgresAdapter struct {
	db *gorm.DB
}

// OpenPostgresAdapter dials dsn and migrates the memory_records table.
func OpenPostgresAdapter(dsn string) (*PostgresAdapter, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("memory: open postgres: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("memory: automigrate: %w", err)
	}
	return &PostgresAdapter{db: db}, nil
}

func (a *PostgresAdapter) Fetch(ctx context.Context, hardwareID string) (Pair, error) {
	var rec Record
	err := a.db.WithContext(ctx).Where("hardware_id = ?", hardwareID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Pair{}, nil
	}
	if err != nil {
		return Pair{}, fmt.Errorf("memory: fetch: %w", err)
	}
	return Pair{Short: rec.Short, Long: rec.Long}, nil
}

func (a *PostgresAdapter) Store(ctx context.Context, hardwareID string, pair Pair) error {
	rec := Record{HardwareID: hardwareID, Short: pair.Short, Long: pair.Long}
	err := a.db.WithContext(ctx).
		Where("hardware_id = ?", hardwareID).
		Assign(Record{Short: pair.Short, Long: pair.Long}).
		FirstOrCreate(&rec).Error
	if err != nil {
		return fmt.Errorf("memory: store: %w", err)
	}
	return nil
}
