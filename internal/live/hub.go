// Package live fans "data changed" signals out to connected dashboards.
package live

import (
	"log/slog"
	"sync"

	"storepulse/internal/metrics"
)

// TopicVisitors is the topic notified after every stored beacon.
const TopicVisitors = "visitors"

const defaultBufferSize = 8

// Broadcaster delivers change signals. Notify never blocks the caller.
type Broadcaster interface {
	Notify(topic string)
}

// Hub is the in-process set of live subscribers.
type Hub struct {
	logger     *slog.Logger
	bufferSize int

	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	closed      bool
}

// Subscription receives topics on C until it or its hub is closed.
type Subscription struct {
	C <-chan string

	ch   chan string
	hub  *Hub
	once sync.Once
}

// NewHub creates an empty hub. A non-positive bufferSize uses the default.
func NewHub(logger *slog.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		logger:      logger,
		bufferSize:  bufferSize,
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber. On a closed hub the returned
// subscription's channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan string, h.bufferSize)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	h.subscribers[sub] = struct{}{}
	metrics.LiveSubscribers.Inc()
	h.logger.Debug("Live subscriber connected", slog.Int("subscribers", len(h.subscribers)))
	return sub
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if _, ok := s.hub.subscribers[s]; !ok {
			return
		}
		delete(s.hub.subscribers, s)
		close(s.ch)
		metrics.LiveSubscribers.Dec()
	})
}

// Notify sends topic to every subscriber without waiting. A subscriber whose
// buffer is full misses the signal.
func (h *Hub) Notify(topic string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subscribers {
		select {
		case sub.ch <- topic:
		default:
			metrics.DroppedSignalsTotal.Inc()
		}
	}
	metrics.RecordBroadcast("local")
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.ch)
		metrics.LiveSubscribers.Dec()
	}
	h.subscribers = make(map[*Subscription]struct{})
	h.logger.Info("Live hub closed")
}
