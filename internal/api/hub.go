package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/minihead/minihead/internal/motion"
)

// subscriberBuffer is how many messages a slow stream may fall behind
// before messages to it are dropped.
const subscriberBuffer = 64

// Message is one server-sent event.
type Message struct {
	Event string
	Data  []byte
}

// Hub fans telemetry and controller events out to server-sent event
// streams. It implements motion.Sink and never blocks the caller: a
// subscriber that cannot keep up loses messages.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan Message
	closed      bool
	dropped     atomic.Int64
}

var _ motion.Sink = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan Message)}
}

// Subscribe registers a new stream.
func (h *Hub) Subscribe() (string, <-chan Message) {
	id := uuid.NewString()
	ch := make(chan Message, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a stream and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Subscribers returns the number of open streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Dropped returns how many messages were discarded for slow subscribers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close ends every stream. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Telemetry publishes a sample as a "telemetry" event.
func (h *Hub) Telemetry(t motion.Telemetry) { h.publish("telemetry", t) }

// Event publishes a controller outcome as an "event" event.
func (h *Hub) Event(e motion.Event) { h.publish("event", e) }

func (h *Hub) publish(event string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: failed to encode %s: %v", event, err)
		return
	}
	msg := Message{Event: event, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// ServeHTTP streams messages as server-sent events until the client goes
// away or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := h.Subscribe()
	defer h.Unsubscribe(id)

	// Send initial ping to establish connection
	if _, err := w.Write([]byte(": ping\n\n")); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case msg, ok := <-c:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
