package repository

import (
	"context"
	"time"
)

// EventRepository 领域事件数据访问接口
type EventRepository interface {
	// Store 存储领域事件
	Store(ctx context.Context, event Event) error

	// FindByCacheKey 查找某个缓存条目的全部事件
	FindByCacheKey(ctx context.Context, cacheKey string) ([]Event, error)

	// FindByEventType 根据事件类型查找事件
	FindByEventType(ctx context.Context, eventType string, limit int) ([]Event, error)

	// DeleteOldEvents 删除指定时间之前的旧事件
	DeleteOldEvents(ctx context.Context, beforeTime time.Time) error

	// GetEventStats 获取事件统计信息
	GetEventStats(ctx context.Context) (map[string]int64, error)
}

// Event 领域事件
type Event struct {
	ID        string
	EventType string
	CacheKey  string
	Data      interface{}
	CreatedAt time.Time
}
