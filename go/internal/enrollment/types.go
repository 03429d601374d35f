package enrollment

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/quizarena/go/internal/contest"
)

var (
	ErrQuizNotFound    = errors.New("quiz not found")
	ErrNotEnrolled     = errors.New("user is not enrolled in this quiz")
	ErrInvalidJoinCode = errors.New("invalid join code")
)

// Status is the state of a quiz enrollment
type Status string

const (
	StatusInvited  Status = "invited"
	StatusAccepted Status = "accepted"
)

// Settings is stored as JSONB on the quiz row
type Settings struct {
	ShuffleQuestions bool `json:"shuffleQuestions"`
	ShowLeaderboard  bool `json:"showLeaderboard"`
}

// Quiz is the subset of a quiz the live coordinator needs
type Quiz struct {
	ID        uuid.UUID
	OwnerID   string
	Title     string
	TimeLimit time.Duration
	JoinCode  string
	Settings  Settings
}

// Enrollment links a user to a quiz
type Enrollment struct {
	QuizID     uuid.UUID
	UserID     string
	UserName   string
	Status     Status
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

// JoinResult is returned by every join path
type JoinResult struct {
	SessionID string           `json:"sessionId"`
	Joined    bool             `json:"joined"`
	Snapshot  contest.Snapshot `json:"snapshot"`
}
