// Package progress broadcasts per-job pipeline events (started, a
// window's correction decision, completed, failed) to any admin API
// client subscribed to that job over SSE.
package progress

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"secondpass/pkg/logger"
)

// EventType names one of the pipeline notification points a
// subscriber can receive.
type EventType string

const (
	EventStarted          EventType = "started"
	EventWindowReconciled EventType = "window_reconciled"
	EventCompleted        EventType = "completed"
	EventFailed           EventType = "failed"
)

// Event is one broadcast message for a job.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type subscription struct {
	jobID   string
	channel chan Event
}

type message struct {
	jobID string
	event Event
}

// Broadcaster fans out job events to SSE subscribers, keyed by job ID.
type Broadcaster struct {
	subscribers map[string]map[chan Event]bool
	register    chan subscription
	unregister  chan subscription
	broadcast   chan message
	shutdown    chan struct{}
	mutex       sync.RWMutex
}

// NewBroadcaster starts a Broadcaster's internal dispatch loop.
func NewBroadcaster() *Broadcaster {
	b := &Broadcaster{
		subscribers: make(map[string]map[chan Event]bool),
		register:    make(chan subscription),
		unregister:  make(chan subscription),
		broadcast:   make(chan message),
		shutdown:    make(chan struct{}),
	}
	go b.listen()
	return b
}

func (b *Broadcaster) listen() {
	for {
		select {
		case sub := <-b.register:
			b.mutex.Lock()
			if b.subscribers[sub.jobID] == nil {
				b.subscribers[sub.jobID] = make(map[chan Event]bool)
			}
			b.subscribers[sub.jobID][sub.channel] = true
			b.mutex.Unlock()

		case sub := <-b.unregister:
			b.mutex.Lock()
			if clients, ok := b.subscribers[sub.jobID]; ok {
				delete(clients, sub.channel)
				close(sub.channel)
				if len(clients) == 0 {
					delete(b.subscribers, sub.jobID)
				}
			}
			b.mutex.Unlock()

		case msg := <-b.broadcast:
			b.mutex.RLock()
			if clients, ok := b.subscribers[msg.jobID]; ok {
				for ch := range clients {
					select {
					case ch <- msg.event:
					default:
						logger.Warn("skipping slow progress subscriber", "job_id", msg.jobID)
					}
				}
			}
			b.mutex.RUnlock()

		case <-b.shutdown:
			b.mutex.Lock()
			for _, clients := range b.subscribers {
				for ch := range clients {
					close(ch)
				}
			}
			b.subscribers = nil
			b.mutex.Unlock()
			return
		}
	}
}

// Shutdown stops dispatch and closes every open subscriber channel.
func (b *Broadcaster) Shutdown() {
	close(b.shutdown)
}

// Publish emits one event for a job to its current subscribers, if any.
func (b *Broadcaster) Publish(jobID string, eventType EventType, data any) {
	b.broadcast <- message{jobID: jobID, event: Event{Type: eventType, Payload: data}}
}

// ServeHTTP streams events for one job as Server-Sent Events. The job
// ID is passed in by the caller; the admin router reads it from the
// ":id" path segment.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request, jobID string) {
	if jobID == "" {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := subscription{jobID: jobID, channel: make(chan Event)}
	b.register <- sub

	defer func() {
		select {
		case b.unregister <- sub:
		case <-b.shutdown:
		}
	}()

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"job_id\":%q}\n\n", jobID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-sub.channel:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				logger.Error("failed to marshal progress event", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-time.After(30 * time.Second):
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
