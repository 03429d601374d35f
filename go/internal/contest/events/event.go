package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type represents the type of a published event
type Type string

const (
	TypeParticipantReady   Type = "participantReady"
	TypeParticipantUnready Type = "participantUnready"
	TypeParticipantJoined  Type = "participantJoined"
	TypeParticipantLeft    Type = "participantLeft"
	TypeTimerStarted       Type = "timerStarted"
	TypeTimerUpdate        Type = "timerUpdate"
	TypeTimerEnded         Type = "timerEnded"
	TypeTimerCancelled     Type = "timerCancelled"
	TypeSessionClosed      Type = "sessionClosed"
	TypeInvitationAccepted Type = "invitationAccepted"
)

// Event is the envelope delivered to every subscriber of a channel
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	Channel   string          `json:"channel"`   // e.g. session:{id} or user:{id}
	Type      Type            `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Publish time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// Decode unmarshals the event data into the payload struct matching its type
func Decode(event *Event) (interface{}, error) {
	var payload interface{}
	switch event.Type {
	case TypeParticipantReady, TypeParticipantUnready, TypeParticipantJoined, TypeParticipantLeft:
		payload = &ParticipantReadyPayload{}
	case TypeTimerStarted:
		payload = &TimerStartedPayload{}
	case TypeTimerUpdate:
		payload = &TimerUpdatePayload{}
	case TypeTimerEnded:
		payload = &TimerEndedPayload{}
	case TypeTimerCancelled:
		payload = &TimerCancelledPayload{}
	case TypeSessionClosed:
		payload = &SessionClosedPayload{}
	case TypeInvitationAccepted:
		payload = &InvitationAcceptedPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}

	if err := json.Unmarshal(event.Data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
