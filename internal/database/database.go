package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"trading-desk-go/internal/config"
	"trading-desk-go/internal/models"
)

// allModels lists every table owned by the desk, in drop order.
var allModels = []any{
	&models.Trade{},
	&models.Position{},
	&models.Signal{},
	&models.FeatureSet{},
	&models.PriceBar{},
	&models.PortfolioSnapshot{},
	&models.Cycle{},
}

// NewDatabase opens the SQLite datastore and migrates the schema.
func NewDatabase(cfg config.Database) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	// SQLite allows a single writer; in-memory databases also live on one connection.
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db, cfg.ResetOnStart); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the tables, optionally dropping them first.
func AutoMigrate(db *gorm.DB, reset bool) error {
	if reset {
		if err := db.Migrator().DropTable(allModels...); err != nil {
			return fmt.Errorf("failed to drop tables: %w", err)
		}
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
