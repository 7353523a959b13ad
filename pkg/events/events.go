// Package events is the backup task engine's event broker: task drivers
// publish state-transition events (New/Idle/ErrorAndWillRetry/Fail/
// Succeeded) and any number of subscribers (a CLI watch command, a
// metrics bridge) can observe them.
package events

import (
	"sync"
	"time"

	"github.com/wugren/buckyos/pkg/zonetypes"
)

// EventType represents the type of event.
type EventType string

const (
	EventTaskNew               EventType = "task.new"
	EventTaskWorking           EventType = "task.working"
	EventTaskIdle              EventType = "task.idle"
	EventTaskErrorAndWillRetry EventType = "task.error_and_will_retry"
	EventTaskFail              EventType = "task.fail"
	EventTaskSucceeded         EventType = "task.succeeded"
	EventSessionIssued         EventType = "session.issued"
	EventSessionRevoked        EventType = "session.revoked"
)

// Event represents one backup-task or session state change.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	TaskID    string
	Message   string
	Metadata  map[string]string
}

// TaskEventType maps a task state transition to its event type.
func TaskEventType(state zonetypes.TaskState) EventType {
	switch state {
	case zonetypes.TaskNew:
		return EventTaskNew
	case zonetypes.TaskWorking:
		return EventTaskWorking
	case zonetypes.TaskIdle:
		return EventTaskIdle
	case zonetypes.TaskErrorAndWillRetry:
		return EventTaskErrorAndWillRetry
	case zonetypes.TaskFail:
		return EventTaskFail
	case zonetypes.TaskSucceeded:
		return EventTaskSucceeded
	default:
		return EventType("task." + string(state))
	}
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker manages event subscriptions and distribution.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full, drop rather than block the broker
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
