// Package notify implements the in-process fan-out hub behind the SSE
// stream endpoint.
//
// The hub maps user ids to their open subscriber channels. Publishing to a
// user delivers the event to every one of that user's subscribers and to no
// one else. A subscriber that cannot accept an event within the send budget
// is treated as dead, closed, and dropped, so one stalled connection never
// blocks delivery to its siblings.
package notify

import (
	"sync"
	"time"

	"github.com/tbourn/go-counsel-backend/internal/domain"
)

// Event names understood by stream consumers.
const (
	// EventConnected is the handshake sent once per new subscription.
	EventConnected = "CONNECTED"
	// EventStatusChanged announces a counsel status transition.
	EventStatusChanged = "COUNSEL_STATUS_CHANGED"
)

// defaultSendBudget bounds how long Publish waits on a single subscriber.
const defaultSendBudget = time.Second

// Event is one message on a subscriber stream.
type Event struct {
	// Name is the SSE event name.
	Name string
	// Data is the payload, serialized by the transport layer.
	Data any
}

// Channel is one subscriber's lease on the hub. The transport reads Events
// until it is closed, then calls Unsubscribe.
type Channel struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Events returns the stream of published events for this subscriber.
func (c *Channel) Events() <-chan Event { return c.events }

// Done is closed when the hub has discarded this subscriber.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans events out to per-user subscriber sets.
type Hub struct {
	// SendBudget bounds how long a single delivery may block before the
	// subscriber is reaped. Zero means the default of one second.
	SendBudget time.Duration

	mu     sync.RWMutex
	subs   map[uint64][]*Channel
	closed bool
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64][]*Channel)}
}

// Subscribe registers a new stream for userID and immediately queues the
// CONNECTED handshake on it. Returns nil when the hub is already closed.
func (h *Hub) Subscribe(userID uint64) *Channel {
	ch := &Channel{
		events: make(chan Event, 8),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.subs[userID] = append(h.subs[userID], ch)
	h.mu.Unlock()

	ch.events <- Event{Name: EventConnected, Data: "connected"}
	return ch
}

// Unsubscribe removes a subscriber. Safe to call more than once and with
// channels the hub has already reaped.
func (h *Hub) Unsubscribe(userID uint64, ch *Channel) {
	if ch == nil {
		return
	}
	h.mu.Lock()
	h.removeLocked(userID, ch)
	h.mu.Unlock()
	ch.close()
}

// Publish delivers an event to every current subscriber of userID.
// Subscribers that do not accept the event within the send budget are
// closed and dropped. Users with no subscribers are a no-op.
func (h *Hub) Publish(userID uint64, ev Event) {
	h.mu.RLock()
	targets := append([]*Channel(nil), h.subs[userID]...)
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	budget := h.SendBudget
	if budget <= 0 {
		budget = defaultSendBudget
	}

	deadline := time.Now().Add(budget)
	var dead []*Channel
	for _, ch := range targets {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			// Budget exhausted; only take non-blocking sends from here on.
			select {
			case ch.events <- ev:
			default:
				dead = append(dead, ch)
			}
			continue
		}
		timer := time.NewTimer(remaining)
		select {
		case ch.events <- ev:
		case <-ch.done:
			dead = append(dead, ch)
		case <-timer.C:
			dead = append(dead, ch)
		}
		timer.Stop()
	}

	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, ch := range dead {
		h.removeLocked(userID, ch)
	}
	h.mu.Unlock()
	for _, ch := range dead {
		ch.close()
	}
}

// PublishStatus publishes a COUNSEL_STATUS_CHANGED event built from a
// status transition.
func (h *Hub) PublishStatus(ev *domain.StatusChangedEvent) {
	if ev == nil {
		return
	}
	h.Publish(ev.UserID, Event{Name: EventStatusChanged, Data: ev})
}

// Close shuts the hub down: all subscribers are closed and further
// Subscribe calls return nil.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	all := h.subs
	h.subs = make(map[uint64][]*Channel)
	h.mu.Unlock()

	for _, chans := range all {
		for _, ch := range chans {
			ch.close()
		}
	}
}

// removeLocked drops ch from userID's subscriber list. Caller holds mu.
func (h *Hub) removeLocked(userID uint64, ch *Channel) {
	list := h.subs[userID]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.subs, userID)
		return
	}
	h.subs[userID] = list
}
