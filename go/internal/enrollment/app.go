package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/contest"
	"github.com/mcdev12/quizarena/go/internal/contest/events"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/rs/zerolog/log"
)

// EnrollmentRepository defines what the app layer needs from the repository
type EnrollmentRepository interface {
	GetQuiz(ctx context.Context, id uuid.UUID) (*Quiz, error)
	GetEnrollment(ctx context.Context, quizID uuid.UUID, userID string) (*Enrollment, error)
	AcceptInvitation(ctx context.Context, quizID uuid.UUID, userID string) (*Enrollment, error)
	JoinByCode(ctx context.Context, code, userID, userName string) (*Quiz, *Enrollment, error)
}

// Roster is the part of the coordinator enrollment drives
type Roster interface {
	Register(ctx context.Context, reg contest.Registration, who auth.Identity) (contest.Snapshot, bool, error)
	Leave(ctx context.Context, sessionKey string, who auth.Identity) (contest.Snapshot, error)
}

// App admits enrolled users into live quiz sessions
type App struct {
	repo      EnrollmentRepository
	roster    Roster
	publisher contest.Publisher
}

// NewApp creates a new enrollment App
func NewApp(repo EnrollmentRepository, roster Roster, publisher contest.Publisher) *App {
	return &App{
		repo:      repo,
		roster:    roster,
		publisher: publisher,
	}
}

// Join admits who into the quiz session. The quiz owner and administrators are
// always admitted; everybody else needs an accepted enrollment.
func (a *App) Join(ctx context.Context, quizID string, who auth.Identity) (*JoinResult, error) {
	id, err := parseQuizID(quizID)
	if err != nil {
		return nil, err
	}

	quiz, err := a.repo.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}

	if !who.IsAdmin() && who.UserID != quiz.OwnerID {
		enrollment, err := a.repo.GetEnrollment(ctx, id, who.UserID)
		if err != nil {
			return nil, err
		}
		if enrollment.Status != StatusAccepted {
			return nil, fmt.Errorf("user %s has status %s in quiz %s: %w", who.UserID, enrollment.Status, quizID, ErrNotEnrolled)
		}
	}

	return a.register(ctx, quiz, who)
}

// AcceptInvitation accepts who's pending invitation and admits them
func (a *App) AcceptInvitation(ctx context.Context, quizID string, who auth.Identity) (*JoinResult, error) {
	id, err := parseQuizID(quizID)
	if err != nil {
		return nil, err
	}

	quiz, err := a.repo.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := a.repo.AcceptInvitation(ctx, id, who.UserID); err != nil {
		return nil, err
	}

	a.publisher.Publish(room.UserChannel(who.UserID), events.TypeInvitationAccepted, events.InvitationAcceptedPayload{
		QuizID: quiz.ID.String(),
		UserID: who.UserID,
	})

	return a.register(ctx, quiz, who)
}

// JoinByCode enrolls who in the quiz behind code and admits them
func (a *App) JoinByCode(ctx context.Context, code string, who auth.Identity) (*JoinResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("join code is required: %w", ErrInvalidJoinCode)
	}

	quiz, _, err := a.repo.JoinByCode(ctx, code, who.UserID, who.Name)
	if err != nil {
		return nil, err
	}
	return a.register(ctx, quiz, who)
}

// Admit registers a participant the database already accepted. It is the entry
// point for enrollment notifications.
func (a *App) Admit(ctx context.Context, quizID string, who auth.Identity) (*JoinResult, error) {
	id, err := parseQuizID(quizID)
	if err != nil {
		return nil, err
	}
	quiz, err := a.repo.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.register(ctx, quiz, who)
}

// Remove takes who out of the live session. Users that never made it into the
// session are ignored.
func (a *App) Remove(ctx context.Context, quizID string, who auth.Identity) error {
	_, err := a.roster.Leave(ctx, quizID, who)
	if errors.Is(err, contest.ErrNotAParticipant) || errors.Is(err, contest.ErrSessionNotFound) {
		return nil
	}
	return err
}

func (a *App) register(ctx context.Context, quiz *Quiz, who auth.Identity) (*JoinResult, error) {
	key := quiz.ID.String()
	snap, joined, err := a.roster.Register(ctx, contest.Registration{
		SessionKey: key,
		OwnerID:    quiz.OwnerID,
		TimeLimit:  quiz.TimeLimit,
	}, who)
	if err != nil {
		return nil, fmt.Errorf("failed to register participant: %w", err)
	}

	if joined {
		log.Info().
			Str("session_id", key).
			Str("user_id", who.UserID).
			Str("quiz_title", quiz.Title).
			Msg("participant admitted")
	}

	return &JoinResult{SessionID: key, Joined: joined, Snapshot: snap}, nil
}

func parseQuizID(quizID string) (uuid.UUID, error) {
	id, err := uuid.Parse(quizID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid quiz id %q: %w", quizID, ErrQuizNotFound)
	}
	return id, nil
}
