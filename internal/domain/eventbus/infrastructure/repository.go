package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"gorm.io/gorm"

	"mochimon-server-go/internal/domain/eventbus/repository"
	"mochimon-server-go/internal/platform/errors"
	"mochimon-server-go/internal/platform/storage"
)

// eventRepository 事件存储库实现
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件存储库
func NewEventRepository(db *gorm.DB) repository.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Store(ctx context.Context, event repository.Event) error {
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "event.store.marshal", "failed to marshal event data", err)
	}

	row := &storage.DomainEvent{
		EventType: event.EventType,
		CacheKey:  event.CacheKey,
		Data:      dataBytes,
		CreatedAt: event.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "event.store.create", "failed to store event", err)
	}
	return nil
}

func (r *eventRepository) FindByCacheKey(ctx context.Context, cacheKey string) ([]repository.Event, error) {
	var rows []storage.DomainEvent
	if err := r.db.WithContext(ctx).
		Where("cache_key = ?", cacheKey).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.find.cache_key", "failed to find events by cache key", err)
	}
	return convertDomainEvents(rows)
}

func (r *eventRepository) FindByEventType(ctx context.Context, eventType string, limit int) ([]repository.Event, error) {
	var rows []storage.DomainEvent
	query := r.db.WithContext(ctx).
		Where("event_type = ?", eventType).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.find.type", "failed to find events by type", err)
	}
	return convertDomainEvents(rows)
}

func (r *eventRepository) DeleteOldEvents(ctx context.Context, beforeTime time.Time) error {
	if err := r.db.WithContext(ctx).
		Where("created_at < ?", beforeTime).
		Delete(&storage.DomainEvent{}).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "event.delete.old", "failed to delete old events", err)
	}
	return nil
}

func (r *eventRepository) GetEventStats(ctx context.Context) (map[string]int64, error) {
	var stats []struct {
		EventType string
		Count     int64
	}
	if err := r.db.WithContext(ctx).
		Model(&storage.DomainEvent{}).
		Select("event_type, count(*) as count").
		Group("event_type").
		Scan(&stats).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.stats", "failed to get event stats", err)
	}

	result := make(map[string]int64, len(stats))
	for _, stat := range stats {
		result[stat.EventType] = stat.Count
	}
	return result, nil
}

func convertDomainEvents(rows []storage.DomainEvent) ([]repository.Event, error) {
	events := make([]repository.Event, len(rows))
	for i, row := range rows {
		var data interface{}
		if len(row.Data) > 0 {
			if err := json.Unmarshal(row.Data, &data); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "event.convert.unmarshal", "failed to unmarshal event data", err)
			}
		}
		events[i] = repository.Event{
			ID:        strconv.FormatUint(uint64(row.ID), 10),
			EventType: row.EventType,
			CacheKey:  row.CacheKey,
			Data:      data,
			CreatedAt: row.CreatedAt,
		}
	}
	return events, nil
}
