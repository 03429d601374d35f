package events

import (
	"time"
)

// Event payload types shared between the contest core, the gateway and the relay

// ParticipantView is one entry of a session's participant list as sent to clients
type ParticipantView struct {
	UserID      string     `json:"userId"`
	UserName    string     `json:"userName"`
	Ready       bool       `json:"ready"`
	JoinedAt    time.Time  `json:"joinedAt"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ParticipantReadyPayload is the payload for participantReady, participantUnready,
// participantJoined and participantLeft events
type ParticipantReadyPayload struct {
	UserID       string            `json:"userId"`
	UserName     string            `json:"userName"`
	AllReady     bool              `json:"allReady"`
	Participants []ParticipantView `json:"participants"`
}

// TimerStartedPayload is the payload for a timerStarted event
type TimerStartedPayload struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	TimeLimit int       `json:"timeLimit"` // seconds
}

// TimerUpdatePayload is the payload for a timerUpdate event
type TimerUpdatePayload struct {
	RemainingTime int       `json:"remainingTime"` // seconds
	EndTime       time.Time `json:"endTime"`
}

// TimerEndedPayload is the payload for a timerEnded event
type TimerEndedPayload struct {
	CanStartQuiz bool `json:"canStartQuiz"`
}

// TimerCancelledPayload is the payload for a timerCancelled event
type TimerCancelledPayload struct {
	CancelledBy string `json:"cancelledBy"`
}

// SessionClosedPayload is the payload for a sessionClosed event
type SessionClosedPayload struct {
	ClosedBy string `json:"closedBy"`
}

// InvitationAcceptedPayload is published on the accepting user's private channel
type InvitationAcceptedPayload struct {
	QuizID string `json:"quizId"`
	UserID string `json:"userId"`
}
