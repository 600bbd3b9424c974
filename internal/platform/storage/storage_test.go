package storage

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:storage-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestOpenAppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"domain_events", "tts_cache_entries"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}

	manager := NewMigrationManager(db)
	history, err := manager.GetMigrationHistory()
	if err != nil {
		t.Fatalf("GetMigrationHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 applied migrations, got %d", len(history))
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int64
	if err := db.Model(&MigrationRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 migration records after rerun, got %d", count)
	}
}

func TestRollbackAndPending(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db)
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if err := manager.RollbackMigration("002_tts_cache"); err == nil {
		t.Fatal("expected error for unregistered migration")
	}

	full := NewMigrationManager(db)
	full.AddMigration(&testMigration{version: "002_tts_cache"})
	if err := full.RollbackMigration("002_tts_cache"); err != nil {
		t.Fatalf("RollbackMigration() error = %v", err)
	}

	pending, err := full.Pending()
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0] != "002_tts_cache" {
		t.Fatalf("unexpected pending list %v", pending)
	}
}

func TestTTSCacheEntryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	row := TTSCacheEntry{
		Key:            "abc",
		StoragePath:    "tts/abc.wav",
		URL:            "http://example/abc",
		SpeakerID:      1,
		TextLength:     3,
		CreatedAt:      now,
		URLExpiresAt:   now.Add(time.Hour),
		CacheExpiresAt: now.Add(24 * time.Hour),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var got TTSCacheEntry
	if err := db.First(&got, "cache_key = ?", "abc").Error; err != nil {
		t.Fatalf("first: %v", err)
	}
	if got.StoragePath != row.StoragePath || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected row %+v", got)
	}
}

type testMigration struct {
	version string
}

func (m *testMigration) Version() string       { return m.version }
func (m *testMigration) Description() string   { return "test" }
func (m *testMigration) Up(db *gorm.DB) error   { return nil }
func (m *testMigration) Down(db *gorm.DB) error { return nil }
