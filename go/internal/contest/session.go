package contest

import (
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/contest/events"
)

// Participant is one registered member of a session
type Participant struct {
	ID          string
	Name        string
	Ready       bool
	JoinedAt    time.Time
	Completed   bool
	CompletedAt *time.Time
}

func (p *Participant) view() events.ParticipantView {
	v := events.ParticipantView{
		UserID:    p.ID,
		UserName:  p.Name,
		Ready:     p.Ready,
		JoinedAt:  p.JoinedAt,
		Completed: p.Completed,
	}
	if p.CompletedAt != nil {
		at := *p.CompletedAt
		v.CompletedAt = &at
	}
	return v
}

// Session is one live quiz competition. All mutable state is guarded by mu, which
// is also held while publishing so that a session's events form a single ordered
// sequence.
type Session struct {
	Key       string
	OwnerID   string
	TimeLimit time.Duration
	CreatedAt time.Time

	mu           sync.Mutex
	participants map[string]*Participant
	timer        *TimerHandle
	ended        bool // a countdown has run to zero
	closed       bool
}

func newSession(key, ownerID string, timeLimit time.Duration, now time.Time) *Session {
	return &Session{
		Key:          key,
		OwnerID:      ownerID,
		TimeLimit:    timeLimit,
		CreatedAt:    now,
		participants: make(map[string]*Participant),
	}
}

// canControl reports whether who may cancel the timer or tear the session down
func (s *Session) canControl(who auth.Identity) bool {
	return who.IsAdmin() || (s.OwnerID != "" && who.UserID == s.OwnerID)
}

// Participants returns a copy of the participant list ordered by join time
func (s *Session) Participants() []events.ParticipantView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewsLocked()
}

// viewsLocked must be called with mu held
func (s *Session) viewsLocked() []events.ParticipantView {
	views := make([]events.ParticipantView, 0, len(s.participants))
	for _, p := range s.participants {
		views = append(views, p.view())
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].JoinedAt.Equal(views[j].JoinedAt) {
			return views[i].UserID < views[j].UserID
		}
		return views[i].JoinedAt.Before(views[j].JoinedAt)
	})
	return views
}

// snapshotLocked must be called with mu held
func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		AllReady:     allReady(s.participants),
		Participants: s.viewsLocked(),
	}
}

// readyPayloadLocked builds the payload shared by the participant* events
func (s *Session) readyPayloadLocked(actor *Participant, snap Snapshot) events.ParticipantReadyPayload {
	return events.ParticipantReadyPayload{
		UserID:       actor.ID,
		UserName:     actor.Name,
		AllReady:     snap.AllReady,
		Participants: snap.Participants,
	}
}
