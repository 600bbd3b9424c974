package storage

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mochimon-server-go/internal/platform/errors"
	"mochimon-server-go/internal/platform/storage/migrations"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "./data/mochimon.db"

// Open opens (creating if needed) the SQLite database at path and applies
// all pending migrations. In-memory DSNs ("file:...mode=memory", ":memory:")
// are passed to the driver untouched.
func Open(path string) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}

	if !isMemoryDSN(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to create data directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to open database", err)
	}

	// sqlite allows a single writer; serialise on one connection instead of
	// surfacing SQLITE_BUSY to callers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to access sql.DB", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate registers every schema migration and applies the pending ones.
func Migrate(db *gorm.DB) error {
	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001Initial{})
	manager.AddMigration(&migrations.Migration002TTSCache{})
	return manager.RunMigrations()
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.close", "failed to access sql.DB", err)
	}
	return sqlDB.Close()
}

func isMemoryDSN(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}
