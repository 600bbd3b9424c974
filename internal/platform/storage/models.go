package storage

import (
	"time"

	"gorm.io/datatypes"
)

// DomainEvent 领域事件存储模型
type DomainEvent struct {
	ID        uint           `gorm:"primaryKey"`
	EventType string         `gorm:"index;not null"`
	CacheKey  string         `gorm:"index"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
}

// TTSCacheEntry 语音缓存元数据存储模型
type TTSCacheEntry struct {
	Key            string    `gorm:"column:cache_key;primaryKey;size:64"`
	StoragePath    string    `gorm:"not null"`
	URL            string    `gorm:"type:text;not null"`
	ContentType    string    `gorm:"size:64"`
	SpeakerID      int       `gorm:"not null"`
	TextLength     int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	URLExpiresAt   time.Time `gorm:"not null"`
	CacheExpiresAt time.Time `gorm:"not null;index"`
}

func (TTSCacheEntry) TableName() string {
	return "tts_cache_entries"
}
