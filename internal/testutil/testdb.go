// Package testutil provides database fixtures for tests.
package testutil

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/database"
)

// NewDB opens a migrated sqlite database in a temporary file. A file (rather
// than a shared in-memory cache) lets concurrent transactions wait on the
// busy timeout instead of failing with table locks.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=10000&_txlock=immediate&_foreign_keys=1"
	db, err := database.Open(config.DatabaseConfig{Driver: config.DriverSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.MigrateProductOrder(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	if err := database.MigrateCustomer(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
