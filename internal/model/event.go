// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of a mirror event
type EventType string

const (
	EventConnected         EventType = "CONNECTED"
	EventDisconnected      EventType = "DISCONNECTED"
	EventParametersChanged EventType = "PARAMETERS_CHANGED"
	EventPowerChanged      EventType = "POWER_CHANGED"
	EventPositionChanged   EventType = "POSITION_CHANGED"
	EventShutdown          EventType = "SHUTDOWN"
	EventError             EventType = "ERROR"
)

// MirrorEvent is published on every state transition of the controller and
// fanned out to WebSocket subscribers
type MirrorEvent struct {
	ID        uuid.UUID              `json:"id"`
	EventType EventType              `json:"event_type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
}

// NewMirrorEvent creates an event stamped with a fresh ID and timestamp
func NewMirrorEvent(eventType EventType, source string, data map[string]interface{}) MirrorEvent {
	return MirrorEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}
}

// OperationResult captures the outcome of a single service operation
type OperationResult struct {
	OperationID uuid.UUID              `json:"operation_id"`
	Success     bool                   `json:"success"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Duration    string                 `json:"duration"`
	Timestamp   time.Time              `json:"timestamp"`
}
