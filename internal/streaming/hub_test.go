package streaming

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	hub := NewHub(8)
	ch := hub.Subscribe("run-1", 4)
	defer hub.Unsubscribe("run-1", ch)

	hub.Publish("run-1", Event{Type: EventStepStarted, Step: "research"})

	evt := <-ch
	assert.Equal(t, "run-1", evt.RunID)
	assert.Equal(t, EventStepStarted, evt.Type)
	assert.Equal(t, "research", evt.Step)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestPublishIsolatesRuns(t *testing.T) {
	hub := NewHub(8)
	ch := hub.Subscribe("run-1", 4)
	defer hub.Unsubscribe("run-1", ch)

	hub.Publish("run-2", Event{Type: EventRunStarted})
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event for run-1: %+v", evt)
	default:
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(8)
	ch := hub.Subscribe("run-1", 1)
	defer hub.Unsubscribe("run-1", ch)

	hub.Publish("run-1", Event{Type: EventStepStarted})
	hub.Publish("run-1", Event{Type: EventStepFinished})
	hub.Publish("run-1", Event{Type: EventRunFinished})

	// only the first fit in the buffer; the rest were dropped
	assert.Len(t, ch, 1)

	replay := hub.ReplaySince("run-1", 0)
	assert.Len(t, replay, 2, "replay recovers what the channel dropped")
}

func TestReplaySince(t *testing.T) {
	hub := NewHub(8)
	for i := 0; i < 5; i++ {
		hub.Publish("run-1", Event{Type: EventStepStarted})
	}

	all := hub.ReplaySince("run-1", 0)
	require.Len(t, all, 4, "seq 0 itself is excluded")

	tail := hub.ReplaySince("run-1", 3)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(4), tail[0].Seq)

	assert.Nil(t, hub.ReplaySince("unknown", 0))
}

func TestRingOverwritesOldest(t *testing.T) {
	hub := NewHub(3)
	for i := 0; i < 6; i++ {
		hub.Publish("run-1", Event{Type: EventStepStarted})
	}

	events := hub.ReplaySince("run-1", 0)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(3), events[0].Seq)
	assert.Equal(t, uint64(5), events[2].Seq)
}

func TestForgetClearsHistory(t *testing.T) {
	hub := NewHub(8)
	hub.Publish("run-1", Event{Type: EventRunFinished})
	hub.Forget("run-1")
	assert.Nil(t, hub.ReplaySince("run-1", 0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(8)
	ch := hub.Subscribe("run-1", 1)
	hub.Unsubscribe("run-1", ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestPublishDuringUnsubscribe(t *testing.T) {
	hub := NewHub(8)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		ch := hub.Subscribe("run-1", 1)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish("run-1", Event{Type: EventStepStarted, Step: "write"})
			}
		}()
		go func(ch chan Event) {
			defer wg.Done()
			hub.Unsubscribe("run-1", ch)
		}(ch)
	}
	wg.Wait()
}
