// Package sse implements a Server-Sent Events broker that tells connected
// browsers when the catalog has been reloaded, or when a reload failed and
// the previous catalog is still being served.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/syllabus/internal/catalog"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ReloadData is the payload of a catalog.reloaded event.
type ReloadData struct {
	Fingerprint string         `json:"fingerprint"`
	LoadedAt    time.Time      `json:"loaded_at"`
	Report      catalog.Report `json:"report"`
}

// ReloadFailedData is the payload of a catalog.reload_failed event.
type ReloadFailedData struct {
	Error string `json:"error"`
	// Fingerprint is the catalog still being served; empty before the
	// first successful load.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal event loop owns mutable state (clients and the failure
// throttle timestamp). Public methods talk to the loop over channels, so no
// mutexes are required.
type Broker struct {
	failureMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	reloadCh      chan catalog.Stats
	failedCh      chan ReloadFailedData
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits catalog.reload_failed at most once
// per failureThrottle. A watcher retrying a broken artifact fails on every
// write; reloads themselves are never throttled.
func NewBroker(failureThrottle time.Duration) *Broker {
	if failureThrottle <= 0 {
		failureThrottle = 2 * time.Second
	}

	b := &Broker{
		failureMin:    failureThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		reloadCh:      make(chan catalog.Stats, 16),
		failedCh:      make(chan ReloadFailedData, 16),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastFailure time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip it rather than block the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case st := <-b.reloadCh:
			broadcast(Event{Type: "catalog.reloaded", Data: ReloadData{
				Fingerprint: st.Fingerprint,
				LoadedAt:    st.LoadedAt,
				Report:      st.Report,
			}})
			// A successful reload ends the failure streak.
			lastFailure = time.Time{}

		case f := <-b.failedCh:
			now := time.Now()
			if now.Sub(lastFailure) >= b.failureMin {
				lastFailure = now
				broadcast(Event{Type: "catalog.reload_failed", Data: f})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishReload announces a swapped catalog.
func (b *Broker) PublishReload(st catalog.Stats) {
	if b.closed.Load() {
		return
	}
	select {
	case b.reloadCh <- st:
	case <-b.stopped:
	}
}

// PublishReloadFailed announces a failed reload. keptFingerprint names the
// catalog still being served. Repeated failures are throttled.
func (b *Broker) PublishReloadFailed(err error, keptFingerprint string) {
	if b.closed.Load() || err == nil {
		return
	}
	select {
	case b.failedCh <- ReloadFailedData{Error: err.Error(), Fingerprint: keptFingerprint}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
