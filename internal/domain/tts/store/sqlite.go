package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"mochimon-server-go/internal/domain/tts/aggregate"
	"mochimon-server-go/internal/domain/tts/inter"
	"mochimon-server-go/internal/platform/storage"
)

type sqliteStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLite builds a SQLite-backed metadata store on the tts_cache_entries table.
func NewSQLite(db *gorm.DB) (inter.MetadataStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db, now: time.Now}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (aggregate.CacheEntry, bool, error) {
	var row storage.TTSCacheEntry
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return aggregate.CacheEntry{}, false, nil
	}
	if err != nil {
		return aggregate.CacheEntry{}, false, err
	}
	return fromRow(row), true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key string, entry aggregate.CacheEntry) error {
	entry.Key = key
	row := toRow(entry)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cache_key = ?", key).Delete(&storage.TTSCacheEntry{}).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
}

func (s *sqliteStore) Update(ctx context.Context, key string, patch aggregate.URLPatch) error {
	res := s.db.WithContext(ctx).
		Model(&storage.TTSCacheEntry{}).
		Where("cache_key = ?", key).
		Updates(map[string]any{
			"url":            patch.URL,
			"url_expires_at": patch.URLExpiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(key)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&storage.TTSCacheEntry{}).Error
}

func (s *sqliteStore) CleanupExpired(ctx context.Context) ([]aggregate.CacheEntry, error) {
	now := s.now()
	var removed []aggregate.CacheEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []storage.TTSCacheEntry
		if err := tx.Where("cache_expires_at < ?", now).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		keys := make([]string, 0, len(rows))
		for _, row := range rows {
			keys = append(keys, row.Key)
			removed = append(removed, fromRow(row))
		}
		return tx.Where("cache_key IN ?", keys).Delete(&storage.TTSCacheEntry{}).Error
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total, urlExpired int64
	if err := s.db.WithContext(ctx).Model(&storage.TTSCacheEntry{}).Count(&total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).
		Model(&storage.TTSCacheEntry{}).
		Where("url_expires_at < ?", s.now()).
		Count(&urlExpired).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":        DriverSQLite,
		"total":       total,
		"url_expired": urlExpired,
	}, nil
}

// Close is a no-op; the database handle belongs to the caller.
func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func toRow(e aggregate.CacheEntry) storage.TTSCacheEntry {
	return storage.TTSCacheEntry{
		Key:            e.Key,
		StoragePath:    e.StoragePath,
		URL:            e.URL,
		ContentType:    e.ContentType,
		SpeakerID:      e.SpeakerID,
		TextLength:     e.TextLength,
		CreatedAt:      e.CreatedAt,
		URLExpiresAt:   e.URLExpiresAt,
		CacheExpiresAt: e.CacheExpiresAt,
	}
}

func fromRow(r storage.TTSCacheEntry) aggregate.CacheEntry {
	return aggregate.CacheEntry{
		Key:            r.Key,
		StoragePath:    r.StoragePath,
		URL:            r.URL,
		ContentType:    r.ContentType,
		SpeakerID:      r.SpeakerID,
		TextLength:     r.TextLength,
		CreatedAt:      r.CreatedAt,
		URLExpiresAt:   r.URLExpiresAt,
		CacheExpiresAt: r.CacheExpiresAt,
	}
}
