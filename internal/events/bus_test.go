package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	id1, ch1 := bus.Subscribe(4)
	id2, ch2 := bus.Subscribe(4)
	defer bus.Unsubscribe(id1)
	defer bus.Unsubscribe(id2)

	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Emit("test", &JobProgressData{JobID: "abc", Processed: 3, Total: 10})

	for _, ch := range []<-chan Event{ch1, ch2} {
		event := <-ch
		assert.Equal(t, JobProgress, event.Type)
		assert.Equal(t, "test", event.Source)
		assert.False(t, event.Timestamp.IsZero())

		data, ok := event.Data.(*JobProgressData)
		require.True(t, ok)
		assert.Equal(t, "abc", data.JobID)
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	id, ch := bus.Subscribe(1)
	bus.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount())

	// Unsubscribing twice is harmless.
	bus.Unsubscribe(id)
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	id, ch := bus.Subscribe(1)
	defer bus.Unsubscribe(id)

	// Fill the buffer and keep emitting; the publisher must not block.
	for i := 0; i < 10; i++ {
		bus.Emit("test", &SentimentUpdatedData{Date: "2024-01-01", Value: i})
	}

	// Only the first event fit.
	event := <-ch
	data := event.Data.(*SentimentUpdatedData)
	assert.Equal(t, 0, data.Value)

	select {
	case e := <-ch:
		t.Fatalf("unexpected buffered event: %+v", e)
	default:
	}
}

func TestJobStatusDataEventTypes(t *testing.T) {
	tests := []struct {
		status string
		want   EventType
	}{
		{"RUNNING", JobStarted},
		{"COMPLETED", JobCompleted},
		{"FAILED", JobFailed},
		{"PAUSED", JobPaused},
		{"PENDING", JobCreated},
	}

	for _, tt := range tests {
		d := &JobStatusData{Status: tt.status}
		assert.Equal(t, tt.want, d.EventType(), "status %s", tt.status)
	}
}
