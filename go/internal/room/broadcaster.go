package room

import (
	"github.com/mcdev12/quizarena/go/internal/contest/events"
)

// Channel names a broadcast group
type Channel string

// SessionChannel returns the channel every member of a quiz session listens on
func SessionChannel(sessionID string) Channel {
	return Channel("session:" + sessionID)
}

// UserChannel returns the private channel of a single user
func UserChannel(userID string) Channel {
	return Channel("user:" + userID)
}

// Message is what a subscriber receives: the envelope plus its encoded form,
// marshalled once per publish
type Message struct {
	Event *events.Event
	Raw   []byte
}

// Subscriber is a transport-side endpoint (a websocket connection, a test recorder, ...)
type Subscriber interface {
	ID() string
	// Deliver must not block. Returning false means the message could not be queued.
	Deliver(msg Message) bool
	Close()
}

// Observer sees every event published on any channel
type Observer interface {
	Observe(event *events.Event)
}

// Broadcaster is the publish/subscribe surface used by the contest core and the gateway
type Broadcaster interface {
	Subscribe(sub Subscriber, ch Channel)
	Unsubscribe(sub Subscriber, ch Channel)
	UnsubscribeAll(sub Subscriber)
	Publish(ch Channel, eventType events.Type, payload interface{})
}
