package inter

import (
	"context"
	"errors"
	"time"

	"mochimon-server-go/internal/domain/tts/aggregate"
)

// MaxURLValidity 签名URL的最长有效期（对象存储签名上限为7天）
const MaxURLValidity = 7 * 24 * time.Hour

// ErrEntryNotFound 更新不存在的缓存条目时返回
var ErrEntryNotFound = errors.New("tts cache entry not found")

// SynthesisClient 语音合成引擎客户端
type SynthesisClient interface {
	// Synthesize 将文本合成为音频字节
	Synthesize(ctx context.Context, text string, speakerID int) ([]byte, error)
}

// BlobStore 音频对象存储
type BlobStore interface {
	// Upload 写入对象，metadata 作为对象元数据保存
	Upload(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error

	// Exists 检查对象是否存在
	Exists(ctx context.Context, path string) (bool, error)

	// SignURL 生成限时读取URL，validity 超过 MaxURLValidity 时按上限处理
	SignURL(ctx context.Context, path string, validity time.Duration) (string, error)

	// Delete 删除对象，对象不存在时不报错
	Delete(ctx context.Context, path string) error
}

// MetadataStore 缓存条目存储
type MetadataStore interface {
	// Get 按key读取条目，未命中时 found 为 false
	Get(ctx context.Context, key string) (entry aggregate.CacheEntry, found bool, err error)

	// Set 写入完整条目，覆盖同key旧值
	Set(ctx context.Context, key string, entry aggregate.CacheEntry) error

	// Update 仅更新URL及其过期时间，条目不存在时返回 ErrEntryNotFound
	Update(ctx context.Context, key string, patch aggregate.URLPatch) error

	// Delete 删除条目，条目不存在时不报错
	Delete(ctx context.Context, key string) error

	// CleanupExpired 清理超过缓存期限的条目，返回被删除的条目以便清理对应音频对象
	CleanupExpired(ctx context.Context) ([]aggregate.CacheEntry, error)

	// Stats 返回存储统计信息
	Stats(ctx context.Context) (map[string]any, error)

	// Close 释放存储资源
	Close(ctx context.Context) error
}

// EventPublisher 缓存生命周期事件发布
type EventPublisher interface {
	Publish(topic string, args ...interface{})
}
