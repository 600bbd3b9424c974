package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"mochimon-server-go/internal/domain/eventbus/repository"
)

func TestBusDeliversAsync(t *testing.T) {
	bus := New(2, 16)
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	if err := bus.Subscribe(EventTTSHit, func(data TTSEventData) {
		mu.Lock()
		got = append(got, data.CacheKey)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	bus.Publish(EventTTSHit, TTSEventData{CacheKey: "a"})
	bus.Publish(EventTTSHit, TTSEventData{CacheKey: "b"})
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %v", got)
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := New(1, 1)
	defer bus.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	_ = bus.Subscribe(EventTTSError, func(TTSEventData) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	bus.Publish(EventTTSError, TTSEventData{})
	<-started
	bus.Publish(EventTTSError, TTSEventData{}) // fills the queue
	bus.Publish(EventTTSError, TTSEventData{}) // dropped

	if bus.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", bus.Dropped())
	}
	close(release)
	bus.Wait()
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	bus := New(1, 4)
	bus.Close()
	bus.Publish(EventTTSHit, TTSEventData{})
	bus.Close()
	if bus.Dropped() != 1 {
		t.Fatalf("expected publish after close to be dropped, got %d", bus.Dropped())
	}
}

func TestHandlerPanicDoesNotKillWorker(t *testing.T) {
	bus := New(1, 4)
	defer bus.Close()

	var calls int
	var mu sync.Mutex
	_ = bus.Subscribe(EventTTSPurged, func(data TTSEventData) {
		mu.Lock()
		calls++
		mu.Unlock()
		if data.CacheKey == "boom" {
			panic("handler failure")
		}
	})

	bus.Publish(EventTTSPurged, TTSEventData{CacheKey: "boom"})
	bus.Publish(EventTTSPurged, TTSEventData{CacheKey: "ok"})
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected worker to survive panic, calls=%d", calls)
	}
}

type memoryRepo struct {
	mu     sync.Mutex
	events []repository.Event
}

func (m *memoryRepo) Store(_ context.Context, event repository.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryRepo) FindByCacheKey(context.Context, string) ([]repository.Event, error) {
	return nil, nil
}

func (m *memoryRepo) FindByEventType(context.Context, string, int) ([]repository.Event, error) {
	return nil, nil
}

func (m *memoryRepo) DeleteOldEvents(context.Context, time.Time) error { return nil }

func (m *memoryRepo) GetEventStats(context.Context) (map[string]int64, error) { return nil, nil }

func TestRecorderPersistsEveryTopic(t *testing.T) {
	bus := New(2, 16)
	defer bus.Close()

	repo := &memoryRepo{}
	if err := NewRecorder(repo, nil).Attach(bus); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	for _, topic := range TTSTopics {
		bus.Publish(topic, TTSEventData{CacheKey: "k", OccurredAt: time.Now()})
	}
	bus.Wait()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.events) != len(TTSTopics) {
		t.Fatalf("expected %d stored events, got %d", len(TTSTopics), len(repo.events))
	}
	seen := map[string]bool{}
	for _, e := range repo.events {
		seen[e.EventType] = true
		if e.CacheKey != "k" {
			t.Fatalf("unexpected cache key %q", e.CacheKey)
		}
	}
	for _, topic := range TTSTopics {
		if !seen[topic] {
			t.Fatalf("topic %s not recorded", topic)
		}
	}
}
