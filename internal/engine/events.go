package engine

import (
	"sync"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/flume/pkg/api"
)

type (
	// EventType identifies an execution lifecycle event
	EventType string

	// Event is published to the hub whenever an execution changes state.
	// Record is the state after the change took effect
	Event struct {
		Timestamp time.Time      `json:"timestamp"`
		Record    *api.Execution `json:"record"`
		Type      EventType      `json:"type"`
	}

	// Hub fans execution lifecycle events out to any number of consumers
	// (websocket clients, tests)
	Hub struct {
		queue     topic.Topic[*Event]
		prod      topic.Producer[*Event]
		closeOnce sync.Once
	}

	// Consumer receives lifecycle events from the hub
	Consumer = topic.Consumer[*Event]
)

const (
	EventExecutionStarted   EventType = "execution-started"
	EventStepCompleted      EventType = "step-completed"
	EventExecutionSucceeded EventType = "execution-succeeded"
	EventExecutionFailed    EventType = "execution-failed"
)

// NewHub creates a lifecycle event hub
func NewHub() *Hub {
	queue := caravan.NewTopic[*Event]()
	return &Hub{
		queue: queue,
		prod:  queue.NewProducer(),
	}
}

// NewConsumer returns a fresh consumer of lifecycle events. Callers must
// Close it when done
func (h *Hub) NewConsumer() Consumer {
	return h.queue.NewConsumer()
}

// Publish emits a lifecycle event for the given record
func (h *Hub) Publish(typ EventType, rec *api.Execution) {
	message.Send(h.prod, &Event{
		Type:      typ,
		Record:    rec,
		Timestamp: time.Now(),
	})
}

// Close shuts the hub's producer down
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.prod.Close()
	})
}
