// internal/handler/event_bus_test.go
package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mems-service/internal/model"
)

func TestEventBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus(zap.NewNop())

	id1, ch1 := bus.Subscribe()
	id2, ch2 := bus.Subscribe()
	defer bus.Unsubscribe(id1)
	defer bus.Unsubscribe(id2)

	bus.Publish(model.NewMirrorEvent(model.EventPowerChanged, "test", map[string]interface{}{
		"power_state": "HV_ON",
	}))

	for _, ch := range []<-chan model.MirrorEvent{ch1, ch2} {
		select {
		case event := <-ch:
			assert.Equal(t, model.EventPowerChanged, event.EventType)
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestEventBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewEventBus(zap.NewNop())

	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	// Fill the buffer, then publish one more. Publish must not block.
	for i := 0; i < cap(ch)+1; i++ {
		bus.Publish(model.NewMirrorEvent(model.EventPositionChanged, "test", nil))
	}

	assert.Len(t, ch, cap(ch))
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(zap.NewNop())

	id, ch := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(id)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Second unsubscribe is a no-op
	bus.Unsubscribe(id)
}

func TestEventBusPublishWithNoSubscribers(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	bus.Publish(model.NewMirrorEvent(model.EventShutdown, "test", nil))
	assert.Equal(t, 0, bus.SubscriberCount())
}
