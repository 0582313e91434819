// Package database opens the GORM connection used by the repositories.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storefront/internal/config"
	"storefront/internal/models"
)

// Open connects to the configured database.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// MigrateProductOrder creates or updates the product/order service schema.
func MigrateProductOrder(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Product{}, &models.Order{}, &models.OrderItem{}, &models.OutboxEvent{}); err != nil {
		return fmt.Errorf("failed to auto-migrate product/order schema: %w", err)
	}
	return nil
}

// MigrateCustomer creates or updates the customer service schema.
func MigrateCustomer(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Customer{}, &models.CustomerOrder{}); err != nil {
		return fmt.Errorf("failed to auto-migrate customer schema: %w", err)
	}
	return nil
}
