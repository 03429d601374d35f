package room

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/contest/events"
)

// Hub is the in-memory Broadcaster. Delivery is best-effort and at-most-once: a
// subscriber that is not subscribed at publish time never sees the event, and a
// subscriber whose queue is full is dropped.
type Hub struct {
	mu          sync.RWMutex
	channels    map[Channel]map[Subscriber]struct{}
	memberships map[Subscriber]map[Channel]struct{}
	observers   []Observer

	now func() time.Time
}

// Stats describes current channel membership
type Stats struct {
	Channels           int            `json:"channels"`
	Subscribers        int            `json:"subscribers"`
	ChannelSubscribers map[string]int `json:"channel_subscribers"`
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		channels:    make(map[Channel]map[Subscriber]struct{}),
		memberships: make(map[Subscriber]map[Channel]struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AddObserver registers an observer that receives every published event
func (h *Hub) AddObserver(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

// Subscribe adds sub to ch. Subscribing twice is a no-op.
func (h *Hub) Subscribe(sub Subscriber, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[ch] == nil {
		h.channels[ch] = make(map[Subscriber]struct{})
	}
	h.channels[ch][sub] = struct{}{}

	if h.memberships[sub] == nil {
		h.memberships[sub] = make(map[Channel]struct{})
	}
	h.memberships[sub][ch] = struct{}{}

	log.Debug().
		Str("subscriber_id", sub.ID()).
		Str("channel", string(ch)).
		Int("channel_subscribers", len(h.channels[ch])).
		Msg("subscribed")
}

// Unsubscribe removes sub from ch
func (h *Hub) Unsubscribe(sub Subscriber, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub, ch)
}

// UnsubscribeAll removes sub from every channel it belongs to
func (h *Hub) UnsubscribeAll(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.memberships[sub] {
		h.removeLocked(sub, ch)
	}
	delete(h.memberships, sub)
}

func (h *Hub) removeLocked(sub Subscriber, ch Channel) {
	if subs, ok := h.channels[ch]; ok {
		delete(subs, sub)
		// Clean up empty channels
		if len(subs) == 0 {
			delete(h.channels, ch)
		}
	}
	if chans, ok := h.memberships[sub]; ok {
		delete(chans, ch)
		if len(chans) == 0 {
			delete(h.memberships, sub)
		}
	}
}

// Publish delivers payload to every current subscriber of ch. It never blocks on
// a subscriber.
func (h *Hub) Publish(ch Channel, eventType events.Type, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event payload")
		return
	}

	event := &events.Event{
		ID:        uuid.New().String(),
		Channel:   string(ch),
		Type:      eventType,
		Timestamp: h.now(),
		Data:      data,
	}

	// Marshal the envelope once
	raw, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event for broadcast")
		return
	}

	// Snapshot subscribers to avoid holding the lock during delivery
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.channels[ch]))
	for sub := range h.channels[ch] {
		targets = append(targets, sub)
	}
	observers := h.observers
	h.mu.RUnlock()

	msg := Message{Event: event, Raw: raw}
	for _, sub := range targets {
		if !sub.Deliver(msg) {
			// Subscriber is slow or gone, drop it
			log.Warn().
				Str("subscriber_id", sub.ID()).
				Str("channel", string(ch)).
				Str("event_type", string(eventType)).
				Msg("subscriber queue full, dropping subscriber")
			h.UnsubscribeAll(sub)
			sub.Close()
		}
	}

	for _, o := range observers {
		o.Observe(event)
	}

	log.Debug().
		Str("event_type", string(eventType)).
		Str("channel", string(ch)).
		Int("subscribers", len(targets)).
		Msg("event published")
}

// Stats returns statistics about current subscriptions
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[string]int, len(h.channels))
	for ch, subs := range h.channels {
		counts[string(ch)] = len(subs)
	}
	return Stats{
		Channels:           len(h.channels),
		Subscribers:        len(h.memberships),
		ChannelSubscribers: counts,
	}
}
