// Package streaming fans workflow step events out to websocket and SSE
// subscribers, with a bounded replay buffer per run.
package streaming

import (
	"encoding/json"
	"sync"
	"time"
)

// Step event types emitted over a run's lifetime.
const (
	EventRunStarted   = "run_started"
	EventStepStarted  = "step_started"
	EventStepFinished = "step_finished"
	EventRewrite      = "rewrite"
	EventRunFinished  = "run_finished"
)

// Event is one observable moment in a chat run.
type Event struct {
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	Step      string    `json:"step,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
}

// Marshal renders the event for SSE payloads.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Hub is in-memory pub/sub keyed by run ID. Slow subscribers drop
// events rather than block publishers; the replay ring covers gaps.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe returns a channel of events for one run. The caller must
// drain it and call Unsubscribe when done.
func (h *Hub) Subscribe(runID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[runID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		h.subscribers[runID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(runID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[runID]; ok {
		if _, present := subs[ch]; present {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, runID)
		}
	}
}

// Publish assigns a sequence number, records the event for replay, and
// delivers it to current subscribers without blocking.
func (h *Hub) Publish(runID string, evt Event) {
	evt.RunID = runID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	rg := h.history[runID]
	if rg == nil {
		rg = newRing(h.capacity)
		h.history[runID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)

	// Sends stay under the lock so Unsubscribe cannot close a channel
	// mid-delivery. They never block, so the critical section stays short.
	for ch := range h.subscribers[runID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns buffered events with Seq greater than since. Events
// older than the ring capacity are gone.
func (h *Hub) ReplaySince(runID string, since uint64) []Event {
	h.mu.RLock()
	rg := h.history[runID]
	h.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops a run's replay buffer once the run is fully consumed.
func (h *Hub) Forget(runID string) {
	h.mu.Lock()
	delete(h.history, runID)
	h.mu.Unlock()
}

type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Event, capacity)}
}

func (r *ring) push(evt Event) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = evt
		r.count++
		return
	}
	r.buf[r.start] = evt
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		evt := r.buf[(r.start+i)%len(r.buf)]
		if evt.Seq > seq {
			out = append(out, evt)
		}
	}
	return out
}
