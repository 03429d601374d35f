package contest

import (
	"fmt"

	"github.com/mcdev12/quizarena/go/internal/contest/events"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/rs/zerolog/log"
)

// Publisher is the slice of the room broadcaster the contest core needs
type Publisher interface {
	Publish(ch room.Channel, eventType events.Type, payload interface{})
}

// Snapshot is the readiness state of a session at one instant
type Snapshot struct {
	AllReady     bool                     `json:"allReady"`
	Participants []events.ParticipantView `json:"participants"`
}

// AllReady reports whether quorum is met: at least one participant and every
// participant ready.
func AllReady(participants []events.ParticipantView) bool {
	if len(participants) == 0 {
		return false
	}
	for _, p := range participants {
		if !p.Ready {
			return false
		}
	}
	return true
}

func allReady(participants map[string]*Participant) bool {
	if len(participants) == 0 {
		return false
	}
	for _, p := range participants {
		if !p.Ready {
			return false
		}
	}
	return true
}

// Aggregator applies readiness changes and publishes the resulting snapshot
type Aggregator struct {
	registry  *Registry
	publisher Publisher
}

// NewAggregator creates a readiness aggregator over registry
func NewAggregator(registry *Registry, publisher Publisher) *Aggregator {
	return &Aggregator{registry: registry, publisher: publisher}
}

// SetReady marks participantID ready. Marking an already-ready participant leaves
// the state unchanged but still republishes the snapshot.
func (a *Aggregator) SetReady(sessionKey, participantID string) (Snapshot, error) {
	return a.set(sessionKey, participantID, true)
}

// SetNotReady clears participantID's ready flag. It never touches a running timer.
func (a *Aggregator) SetNotReady(sessionKey, participantID string) (Snapshot, error) {
	return a.set(sessionKey, participantID, false)
}

func (a *Aggregator) set(sessionKey, participantID string, ready bool) (Snapshot, error) {
	sess, err := a.registry.Get(sessionKey)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return Snapshot{}, fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
	}
	p, ok := sess.participants[participantID]
	if !ok {
		return Snapshot{}, fmt.Errorf("user %s in session %s: %w", participantID, sessionKey, ErrNotAParticipant)
	}

	p.Ready = ready
	snap := sess.snapshotLocked()

	eventType := events.TypeParticipantReady
	if !ready {
		eventType = events.TypeParticipantUnready
	}
	a.publisher.Publish(room.SessionChannel(sessionKey), eventType, sess.readyPayloadLocked(p, snap))

	log.Debug().
		Str("session_id", sessionKey).
		Str("user_id", participantID).
		Bool("ready", ready).
		Bool("all_ready", snap.AllReady).
		Msg("readiness changed")
	return snap, nil
}
