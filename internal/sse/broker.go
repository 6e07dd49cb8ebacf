// Package sse implements a Server-Sent Events broker for notifications and
// article change events.
package sse

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types.
const (
	TypeNotification     = "notification"
	TypeArticleCreated   = "article.created"
	TypeArticleUpdated   = "article.updated"
	TypeArticleDeleted   = "article.deleted"
	TypeArticlePublished = "article.published"
	TypeListsStale       = "lists.stale"
)

// articleTypes maps the change kinds accepted by PublishArticleEvent to
// their event types.
var articleTypes = map[string]string{
	"created":   TypeArticleCreated,
	"updated":   TypeArticleUpdated,
	"deleted":   TypeArticleDeleted,
	"published": TypeArticlePublished,
}

// Option configures a Broker.
type Option func(*Broker)

// WithListsThrottle sets the minimum interval between lists.stale events.
func WithListsThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.listsMin = d
		}
	}
}

// WithOnSubscribe registers fn to run, outside the event loop, whenever a
// client connects. count is the number of clients after the subscription.
func WithOnSubscribe(fn func(count int)) Option {
	return func(b *Broker) { b.onSubscribe = fn }
}

// WithHeartbeat sets how often an idle stream receives a keepalive comment.
// Zero disables keepalives.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// WithRetry sets the reconnect delay advertised to clients on connect.
func WithRetry(d time.Duration) Option {
	return func(b *Broker) { b.retry = d }
}

type request struct {
	event Event
	// stale asks the loop to follow event with a throttled lists.stale.
	stale bool
	done  chan bool
}

// Broker fans events out to connected SSE clients.
//
// A single goroutine owns the client set, the event sequence and the
// lists.stale throttle. Everything else talks to it over channels.
type Broker struct {
	listsMin    time.Duration
	heartbeat   time.Duration
	retry       time.Duration
	onSubscribe func(count int)

	join   chan chan []byte
	leave  chan chan []byte
	send   chan request
	counts chan chan int

	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		listsMin:  2 * time.Second,
		heartbeat: 30 * time.Second,
		retry:     3 * time.Second,
		join:      make(chan chan []byte),
		leave:     make(chan chan []byte),
		send:      make(chan request, 256),
		counts:    make(chan chan int),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}

	go b.loop()
	return b
}

// frame encodes one event in the text/event-stream format.
func frame(seq uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("id: ")
	buf.WriteString(strconv.FormatUint(seq, 10))
	buf.WriteString("\nevent: ")
	buf.WriteString(event.Type)
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq       uint64
		lastStale time.Time
	)

	deliver := func(event Event) bool {
		seq++
		raw, err := frame(seq, event)
		if err != nil {
			return false
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; it misses this event.
			}
		}
		return true
	}

	for {
		select {
		case <-b.stop:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}
			if b.onSubscribe != nil {
				go b.onSubscribe(len(clients))
			}

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.send:
			ok := deliver(req.event)
			if req.stale {
				if now := time.Now(); now.Sub(lastStale) >= b.listsMin {
					lastStale = now
					deliver(Event{Type: TypeListsStale, Data: map[string]string{}})
				}
			}
			if req.done != nil {
				req.done <- ok
			}

		case resp := <-b.counts:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
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
	case b.join <- ch:
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
	case b.leave <- ch:
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
	case b.counts <- resp:
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

// Publish broadcasts event and waits until the loop has handed it to the
// connected clients. It reports false when the broker is closed or the
// event data cannot be encoded.
func (b *Broker) Publish(event Event) bool {
	if b.closed.Load() {
		return false
	}
	done := make(chan bool, 1)
	select {
	case b.send <- request{event: event, done: done}:
	case <-b.stopped:
		return false
	}
	select {
	case ok := <-done:
		return ok
	case <-b.stopped:
		return false
	}
}

// PublishArticleEvent publishes an article change (created, updated, deleted
// or published) followed by a throttled lists.stale hint. Unknown kinds are
// ignored.
func (b *Broker) PublishArticleEvent(kind, id string) {
	typ, ok := articleTypes[kind]
	if !ok || b.closed.Load() {
		return
	}
	req := request{
		event: Event{Type: typ, Data: map[string]string{"id": id}},
		stale: true,
	}
	select {
	case b.send <- req:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /events).
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
	if b.retry > 0 {
		_, _ = w.Write([]byte("retry: " + strconv.FormatInt(b.retry.Milliseconds(), 10) + "\n\n"))
	}
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		ticker := time.NewTicker(b.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
