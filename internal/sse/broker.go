// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/cardsync/internal/models"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Event types.
const (
	TypeDocumentSent    = "document.sent"
	TypeDocumentRemoved = "document.removed"
	TypeDocumentFailed  = "document.failed"
	TypeDeckUpdated     = "deck.updated"
)

// DocumentEvent is the payload of the document.* events.
type DocumentEvent struct {
	DocumentID string          `json:"document_id"`
	Deck       string          `json:"deck,omitempty"`
	Summary    *models.Summary `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type sendEventReq struct {
	typ  string
	data DocumentEvent
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + deck throttle timestamp). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	deckMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	sendEventCh   chan sendEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. deck.updated is sent at most once per
// deckThrottle.
func NewBroker(deckThrottle time.Duration) *Broker {
	if deckThrottle <= 0 {
		deckThrottle = 2 * time.Second
	}

	b := &Broker{
		deckMin:       deckThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		sendEventCh:   make(chan sendEventReq, 256),
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
	var lastDeck time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
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

		case req := <-b.sendEventCh:
			broadcast(Event{Type: req.typ, Data: req.data})
			if req.typ == TypeDocumentFailed {
				continue
			}

			now := time.Now()
			if now.Sub(lastDeck) >= b.deckMin {
				lastDeck = now
				broadcast(Event{Type: TypeDeckUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
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

// PublishSent announces a sent document and a throttled deck.updated event.
func (b *Broker) PublishSent(d models.SendDiff) {
	s := d.Summary()
	b.publishSendEvent(sendEventReq{
		typ:  TypeDocumentSent,
		data: DocumentEvent{DocumentID: d.DocumentID, Deck: d.Deck, Summary: &s},
	})
}

// PublishRemoved announces a document whose cards were deleted.
func (b *Broker) PublishRemoved(d models.SendDiff) {
	s := d.Summary()
	b.publishSendEvent(sendEventReq{
		typ:  TypeDocumentRemoved,
		data: DocumentEvent{DocumentID: d.DocumentID, Summary: &s},
	})
}

// PublishFailed announces a document that could not be sent.
func (b *Broker) PublishFailed(documentID string, err error) {
	b.publishSendEvent(sendEventReq{
		typ:  TypeDocumentFailed,
		data: DocumentEvent{DocumentID: documentID, Error: err.Error()},
	})
}

func (b *Broker) publishSendEvent(req sendEventReq) {
	if b.closed.Load() {
		return
	}
	select {
	case b.sendEventCh <- req:
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
	w.Header().Set("Access-Control-Allow-Origin", "*")
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
