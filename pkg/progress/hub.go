package progress

import (
	"errors"
	"sync"
	"time"
)

var ErrTopicBusy = errors.New("download id already in use")

const (
	defaultSubscriberBuffer = 16
	defaultRetain           = 30 * time.Second
)

// Hub fans progress out to any number of subscribers per download id. Clients
// pick the id up front so they can subscribe before the download starts.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topic
	buffer int
	retain time.Duration
}

type topic struct {
	subs       map[chan Event]struct{}
	last       *Event
	publishing bool
	closed     bool
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]*topic),
		buffer: defaultSubscriberBuffer,
		retain: defaultRetain,
	}
}

// WithRetention sets how long a finished topic keeps its terminal event for
// late subscribers.
func (h *Hub) WithRetention(d time.Duration) *Hub {
	h.retain = d
	return h
}

// Open attaches a publisher to topic id and returns the Relay feeding it.
func (h *Hub) Open(id string) (*Relay, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[id]
	if ok && (t.publishing || t.closed) {
		return nil, ErrTopicBusy
	}
	if !ok {
		t = newTopic()
		h.topics[id] = t
	}
	t.publishing = true

	return NewRelay(func(ev Event) { h.publish(id, ev) }), nil
}

// Subscribe returns a channel of events for id and a cancel func. The
// channel is closed after the terminal event, or by cancel.
func (h *Hub) Subscribe(id string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)

	t, ok := h.topics[id]
	if !ok {
		t = newTopic()
		h.topics[id] = t
	}
	if t.last != nil {
		ch <- *t.last
	}
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	t.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(id, ch) })
	}
}

// active reports whether id has a publisher or subscribers attached.
func (h *Hub) active(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.topics[id]
	return ok
}

func (h *Hub) unsubscribe(id string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[id]
	if !ok {
		return
	}
	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
	if len(t.subs) == 0 && !t.publishing && !t.closed {
		delete(h.topics, id)
	}
}

// publish delivers ev to every subscriber without blocking: a full buffer
// loses its oldest event so the newest always lands.
func (h *Hub) publish(id string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[id]
	if !ok || t.closed {
		return
	}

	t.last = &ev
	for ch := range t.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}

	if !ev.Done {
		return
	}

	for ch := range t.subs {
		close(ch)
	}
	t.subs = nil
	t.closed = true
	t.publishing = false

	time.AfterFunc(h.retain, func() { h.expire(id, t) })
}

func (h *Hub) expire(id string, t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[id] == t {
		delete(h.topics, id)
	}
}

func newTopic() *topic {
	return &topic{subs: make(map[chan Event]struct{})}
}
