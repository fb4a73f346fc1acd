package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventJobRegistered, JobName: "daily-report"})

	select {
	case evt := <-sub:
		assert.Equal(t, EventJobRegistered, evt.Type)
		assert.Equal(t, "daily-report", evt.JobName)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestBroadcastFansOutToMultipleSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	subA := b.Subscribe()
	subB := b.Subscribe()
	defer b.Unsubscribe(subA)
	defer b.Unsubscribe(subB)

	b.Publish(&Event{Type: EventTaskFinished, TaskID: "v1:job:100:0"})

	for _, sub := range []Subscriber{subA, subB} {
		select {
		case evt := <-sub:
			assert.Equal(t, EventTaskFinished, evt.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}
