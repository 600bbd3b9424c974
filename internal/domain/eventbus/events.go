package eventbus

import "time"

// 语音缓存生命周期事件
const (
	EventTTSHit         = "tts:hit"
	EventTTSRefreshed   = "tts:refreshed"
	EventTTSPurged      = "tts:purged"
	EventTTSSynthesized = "tts:synthesized"
	EventTTSError       = "tts:error"
)

// TTSTopics lists every cache lifecycle topic.
var TTSTopics = []string{
	EventTTSHit,
	EventTTSRefreshed,
	EventTTSPurged,
	EventTTSSynthesized,
	EventTTSError,
}

// TTSEventData is the payload of every cache lifecycle event.
type TTSEventData struct {
	CacheKey    string    `json:"cache_key"`
	SpeakerID   int       `json:"speaker_id"`
	StoragePath string    `json:"storage_path,omitempty"`
	Cached      bool      `json:"cached"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
