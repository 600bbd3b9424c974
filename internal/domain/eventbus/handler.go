package eventbus

import (
	"context"
	"time"

	"mochimon-server-go/internal/domain/eventbus/repository"
	"mochimon-server-go/internal/platform/logging"
)

// Recorder persists cache lifecycle events for diagnostics.
type Recorder struct {
	repo    repository.EventRepository
	logger  *logging.Logger
	timeout time.Duration
}

func NewRecorder(repo repository.EventRepository, logger *logging.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger, timeout: 5 * time.Second}
}

// Attach subscribes the recorder to every TTS topic on bus.
func (r *Recorder) Attach(bus *Bus) error {
	for _, topic := range TTSTopics {
		topic := topic
		if err := bus.Subscribe(topic, func(data TTSEventData) {
			r.Handle(topic, data)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Handle stores a single event. Failures are logged and swallowed.
func (r *Recorder) Handle(topic string, data TTSEventData) {
	if topic == EventTTSError || topic == EventTTSPurged {
		r.logger.WarnTag("Events", "%s key=%s error=%s", topic, data.CacheKey, data.Error)
	} else {
		r.logger.DebugTag("Events", "%s key=%s cached=%v", topic, data.CacheKey, data.Cached)
	}

	if r.repo == nil {
		return
	}
	createdAt := data.OccurredAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.repo.Store(ctx, repository.Event{
		EventType: topic,
		CacheKey:  data.CacheKey,
		Data:      data,
		CreatedAt: createdAt,
	}); err != nil {
		r.logger.ErrorTag("Events", "persist %s failed: %v", topic, err)
	}
}
