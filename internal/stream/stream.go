package stream

import (
	"context"
	"sync"
	"time"
)

// LifecycleEvent describes one document transition for live consumers
// (SSE clients, dashboards).
type LifecycleEvent struct {
	DocumentID string    `json:"document_id"`
	Category   string    `json:"category"`
	Type       string    `json:"type"`
	Author     string    `json:"author"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stream fan-outs lifecycle events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan LifecycleEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan LifecycleEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan LifecycleEvent {
	ch := make(chan LifecycleEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt LifecycleEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking writers.
		}
	}
}
