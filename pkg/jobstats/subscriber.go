package jobstats

import (
	"strconv"
	"sync"

	"github.com/cuemby/schedulerd/internal/taskid"
	"github.com/cuemby/schedulerd/pkg/events"
)

// EventSink is the Observer fan-out's actual consumer: it subscribes to a
// Broker and translates published job/task events into HistoryStore writes.
// Without one running, the broker has no subscribers and every event it
// fans out is silently dropped.
type EventSink struct {
	broker *events.Broker
	sub    events.Subscriber
	hist   HistoryStore

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEventSink subscribes to broker immediately; call Start to begin
// draining the subscription.
func NewEventSink(broker *events.Broker, hist HistoryStore) *EventSink {
	return &EventSink{
		broker: broker,
		sub:    broker.Subscribe(),
		hist:   hist,
		stopCh: make(chan struct{}),
	}
}

// Start begins translating events on a dedicated goroutine.
func (s *EventSink) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop stops the goroutine and unsubscribes from the broker.
func (s *EventSink) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.broker.Unsubscribe(s.sub)
}

func (s *EventSink) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case evt := <-s.sub:
			s.handle(evt)
		}
	}
}

// handle maps one published event to the corresponding HistoryStore calls.
// Unrecognized event types are ignored rather than treated as an error,
// since new event types may be added without every sink needing to handle
// every one of them.
func (s *EventSink) handle(evt *events.Event) {
	switch evt.Type {
	case events.EventTaskScheduled:
		s.hist.SetState(evt.JobName, StateQueued)

	case events.EventTaskStarted:
		s.hist.SetState(evt.JobName, StateRunning)
		s.recordTaskEvent(evt, "RUNNING", false)

	case events.EventTaskFinished:
		s.hist.SetState(evt.JobName, StateIdle)
		s.recordTaskEvent(evt, "FINISHED", false)

	case events.EventTaskFailed:
		s.recordTaskEvent(evt, "FAILED", true)

	case events.EventTaskRetriesExhausted:
		s.hist.SetState(evt.JobName, StateIdle)
		s.recordTaskEvent(evt, "FAILED", true)

	case events.EventTaskSkipped:
		s.recordTaskEvent(evt, "SKIPPED", false)

	case events.EventJobDisabled, events.EventJobRemoved:
		s.hist.SetState(evt.JobName, StateIdle)
	}

	// A data-processing job's driver may report incremental progress via
	// metadata rather than a dedicated event type; best-effort, like the
	// rest of this sink.
	if raw, ok := evt.Metadata["elements_processed"]; ok && evt.TaskID != "" {
		if delta, err := strconv.ParseInt(raw, 10, 64); err == nil {
			s.hist.IncrementElementsProcessed(evt.JobName, evt.TaskID, delta)
		}
	}
}

func (s *EventSink) recordTaskEvent(evt *events.Event, state string, isFailure bool) {
	attempt := 0
	if id, ok := taskid.Parse(evt.TaskID); ok {
		attempt = id.Attempt
	}
	s.hist.RecordTaskEvent(TaskEvent{
		TaskID:    evt.TaskID,
		JobName:   evt.JobName,
		Timestamp: evt.Timestamp,
		TaskState: state,
		Message:   evt.Message,
		Attempt:   attempt,
		IsFailure: isFailure,
	})
}
