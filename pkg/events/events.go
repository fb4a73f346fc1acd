package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of job/task event being published.
type EventType string

const (
	EventJobRegistered        EventType = "job.registered"
	EventJobUpdated           EventType = "job.updated"
	EventJobRemoved           EventType = "job.removed"
	EventJobDisabled          EventType = "job.disabled"
	EventTaskScheduled        EventType = "task.scheduled"
	EventTaskStarted          EventType = "task.started"
	EventTaskFinished         EventType = "task.finished"
	EventTaskFailed           EventType = "task.failed"
	EventTaskRetriesExhausted EventType = "task.retries_exhausted"
	EventTaskSkipped          EventType = "task.skipped"
)

// Event describes a single job or task transition.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	JobName   string
	TaskID    string
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker fans out published events to every current subscriber without
// blocking the publisher on a slow or stalled subscriber.
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

// Subscribe creates a new subscription and returns its channel.
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

// Publish publishes an event to all subscribers, assigning it a correlation
// id if the caller did not already set one.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
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
			// subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
