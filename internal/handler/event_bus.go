// internal/handler/event_bus.go
package handler

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mems-service/internal/model"
)

// EventBus fans mirror events out to WebSocket subscribers. With a single
// device every subscriber sees every event; slow subscribers are skipped
// rather than allowed to stall the publisher.
type EventBus struct {
	subscribers map[uuid.UUID]chan model.MirrorEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[uuid.UUID]chan model.MirrorEvent),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Publish delivers an event to every subscriber. Implements
// service.EventSink.
func (eb *EventBus) Publish(event model.MirrorEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for id, subscriber := range eb.subscribers {
		select {
		case subscriber <- event:
		default:
			eb.logger.Warn("Subscriber too slow, dropping event",
				zap.String("subscriber_id", id.String()),
				zap.String("event_type", string(event.EventType)),
			)
		}
	}
}

// Subscribe registers a new subscriber and returns its event channel
func (eb *EventBus) Subscribe() (uuid.UUID, <-chan model.MirrorEvent) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	id := uuid.New()
	subscriber := make(chan model.MirrorEvent, 64)
	eb.subscribers[id] = subscriber
	return id, subscriber
}

// Unsubscribe removes a subscriber and closes its channel
func (eb *EventBus) Unsubscribe(id uuid.UUID) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if subscriber, ok := eb.subscribers[id]; ok {
		delete(eb.subscribers, id)
		close(subscriber)
	}
}

// SubscriberCount returns the number of attached subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers)
}
