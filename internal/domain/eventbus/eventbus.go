package eventbus

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 1000
)

// Bus dispatches events to evbus subscribers from a fixed worker pool so
// publishers never block on slow handlers. When the queue is full the event
// is dropped and counted.
type Bus struct {
	bus      evbus.Bus
	workChan chan asyncEvent
	wg       sync.WaitGroup
	inflight sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	dropped  atomic.Int64
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// New starts a bus with the given number of workers and queue capacity.
// Non-positive values fall back to 4 workers and 1000 queued events.
func New(workers, queueSize int) *Bus {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	b := &Bus{
		bus:      evbus.New(),
		workChan: make(chan asyncEvent, queueSize),
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for event := range b.workChan {
		b.dispatch(event)
	}
}

func (b *Bus) dispatch(event asyncEvent) {
	defer b.inflight.Done()
	defer func() {
		// a panicking handler must not take the worker down
		_ = recover()
	}()
	b.bus.Publish(event.topic, event.args...)
}

// Publish queues an event for asynchronous delivery.
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return
	}

	b.inflight.Add(1)
	select {
	case b.workChan <- asyncEvent{topic: topic, args: args}:
	default:
		b.inflight.Done()
		b.dropped.Add(1)
	}
}

// PublishSync delivers an event on the caller's goroutine.
func (b *Bus) PublishSync(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

// Subscribe registers fn for topic. fn's parameters must match the published args.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

func (b *Bus) HasCallback(topic string) bool {
	return b.bus.HasCallback(topic)
}

// Wait blocks until every queued event has been handled.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

// Dropped reports how many events were discarded.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting events, drains the queue and stops the workers.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.workChan)
	b.mu.Unlock()
	b.wg.Wait()
}
