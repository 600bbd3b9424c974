package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"mochimon-server-go/internal/domain/tts/aggregate"
	"mochimon-server-go/internal/domain/tts/inter"
	testutil "mochimon-server-go/internal/platform/testing"
)

func sampleEntry(key string, now time.Time) aggregate.CacheEntry {
	return aggregate.CacheEntry{
		Key:            key,
		StoragePath:    "tts/" + key + ".wav",
		URL:            "http://blob/" + key + "?v=1",
		ContentType:    "audio/wav",
		SpeakerID:      3,
		TextLength:     5,
		CreatedAt:      now,
		URLExpiresAt:   now.Add(7 * 24 * time.Hour),
		CacheExpiresAt: now.Add(30 * 24 * time.Hour),
	}
}

// exerciseStore checks the contract every driver must honour.
func exerciseStore(t *testing.T, s inter.MetadataStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if _, found, err := s.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("Get(missing) = found %v, err %v", found, err)
	}

	entry := sampleEntry("k1", now)
	if err := s.Set(ctx, "k1", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, found, err := s.Get(ctx, "k1")
	if err != nil || !found {
		t.Fatalf("Get(k1) = found %v, err %v", found, err)
	}
	if got.StoragePath != entry.StoragePath || got.URL != entry.URL || got.SpeakerID != 3 {
		t.Fatalf("unexpected entry %+v", got)
	}
	if !got.CreatedAt.Equal(now) || !got.CacheExpiresAt.Equal(entry.CacheExpiresAt) {
		t.Fatalf("timestamps not preserved: %+v", got)
	}

	patch := aggregate.URLPatch{URL: "http://blob/k1?v=2", URLExpiresAt: now.Add(14 * 24 * time.Hour)}
	if err := s.Update(ctx, "k1", patch); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _, _ = s.Get(ctx, "k1")
	if got.URL != patch.URL || !got.URLExpiresAt.Equal(patch.URLExpiresAt) {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.StoragePath != entry.StoragePath || !got.CreatedAt.Equal(now) || !got.CacheExpiresAt.Equal(entry.CacheExpiresAt) {
		t.Fatalf("patch touched immutable fields: %+v", got)
	}

	if err := s.Update(ctx, "nope", patch); !errors.Is(err, inter.ErrEntryNotFound) {
		t.Fatalf("Update(missing) error = %v, want ErrEntryNotFound", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if fmt.Sprint(stats["total"]) != "1" {
		t.Fatalf("expected total 1, got %v", stats["total"])
	}

	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() of missing key should be a no-op, got %v", err)
	}
	if _, found, _ := s.Get(ctx, "k1"); found {
		t.Fatal("entry still present after Delete")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close(context.Background())
	exerciseStore(t, s)
}

func TestMemoryCleanupExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now()

	stale := sampleEntry("stale", now.Add(-40*24*time.Hour))
	fresh := sampleEntry("fresh", now)
	_ = s.Set(ctx, "stale", stale)
	_ = s.Set(ctx, "fresh", fresh)

	removed, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if len(removed) != 1 || removed[0].Key != "stale" || removed[0].StoragePath != stale.StoragePath {
		t.Fatalf("unexpected removed entries %+v", removed)
	}
	if _, found, _ := s.Get(ctx, "stale"); found {
		t.Fatal("stale entry should be swept")
	}
	if _, found, _ := s.Get(ctx, "fresh"); !found {
		t.Fatal("fresh entry should survive")
	}
}

func TestSQLiteStore(t *testing.T) {
	db := testutil.SetupTestDB(t)

	s, err := New(Config{Driver: DriverSQLite}, Dependencies{SQLiteDB: db})
	if err != nil {
		t.Fatalf("New sqlite store: %v", err)
	}
	exerciseStore(t, s)

	ctx := context.Background()
	_ = s.Set(ctx, "old", sampleEntry("old", time.Now().Add(-40*24*time.Hour)))
	removed, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if len(removed) != 1 || removed[0].Key != "old" {
		t.Fatalf("unexpected removed entries %+v", removed)
	}
	if _, found, _ := s.Get(ctx, "old"); found {
		t.Fatal("expired row should be removed")
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	s, err := New(Config{Driver: DriverRedis, Redis: &RedisConfig{Addr: mr.Addr()}}, Dependencies{})
	if err != nil {
		t.Fatalf("New redis store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	exerciseStore(t, s)
}

func TestRedisStoreTTLFollowsCacheHorizon(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	s, err := NewRedis(Config{ExpireAtHorizon: true, Redis: &RedisConfig{Addr: mr.Addr(), Prefix: "test:"}})
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	defer s.Close(ctx)

	entry := sampleEntry("k", time.Now())
	entry.CacheExpiresAt = time.Now().Add(2 * time.Hour)
	if err := s.Set(ctx, "k", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ttl := mr.TTL("test:k")
	if ttl <= time.Hour || ttl > 2*time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(3 * time.Hour)
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatal("entry should expire with its cache horizon")
	}
}

func TestRedisStoreKeepsEntriesWithoutHorizon(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	s, err := NewRedis(Config{Redis: &RedisConfig{Addr: mr.Addr(), Prefix: "test:"}})
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	defer s.Close(ctx)

	entry := sampleEntry("k", time.Now())
	entry.CacheExpiresAt = time.Now().Add(2 * time.Hour)
	if err := s.Set(ctx, "k", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if ttl := mr.TTL("test:k"); ttl != 0 {
		t.Fatalf("ttl = %v, want none", ttl)
	}

	mr.FastForward(3 * time.Hour)
	if _, found, _ := s.Get(ctx, "k"); !found {
		t.Fatal("entry should persist past its horizon")
	}
}

func TestRedisRequiresAddress(t *testing.T) {
	if _, err := NewRedis(Config{}); err == nil {
		t.Fatal("expected error without redis config")
	}
	if _, err := NewRedis(Config{Redis: &RedisConfig{}}); err == nil {
		t.Fatal("expected error without redis address")
	}
}

func TestFactoryRejectsUnknownDriver(t *testing.T) {
	if _, err := New(Config{Driver: "firestore"}, Dependencies{}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := New(Config{Driver: DriverSQLite}, Dependencies{}); err == nil {
		t.Fatal("expected error for sqlite without database handle")
	}
}
