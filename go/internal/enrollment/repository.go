package enrollment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/quizarena/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const (
	getQuizSQL = `
SELECT id, owner_id, title, time_limit_sec, join_code, settings
FROM quizzes
WHERE id = $1`

	getQuizByJoinCodeSQL = `
SELECT id, owner_id, title, time_limit_sec, join_code, settings
FROM quizzes
WHERE join_code = $1
FOR SHARE`

	getEnrollmentSQL = `
SELECT quiz_id, user_id, user_name, status, created_at, accepted_at
FROM quiz_enrollments
WHERE quiz_id = $1 AND user_id = $2`

	acceptInvitationSQL = `
UPDATE quiz_enrollments
SET status = 'accepted', accepted_at = $3
WHERE quiz_id = $1 AND user_id = $2 AND status = 'invited'
RETURNING quiz_id, user_id, user_name, status, created_at, accepted_at`

	upsertAcceptedSQL = `
INSERT INTO quiz_enrollments (quiz_id, user_id, user_name, status, created_at, accepted_at)
VALUES ($1, $2, $3, 'accepted', $4, $4)
ON CONFLICT (quiz_id, user_id) DO UPDATE
SET status = 'accepted',
    user_name = COALESCE(EXCLUDED.user_name, quiz_enrollments.user_name),
    accepted_at = COALESCE(quiz_enrollments.accepted_at, EXCLUDED.accepted_at)
RETURNING quiz_id, user_id, user_name, status, created_at, accepted_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

// Repository implements enrollment data access on Postgres
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new enrollment repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:  db,
		now: time.Now,
	}
}

// GetQuiz retrieves a quiz by ID
func (r *Repository) GetQuiz(ctx context.Context, id uuid.UUID) (*Quiz, error) {
	quiz, err := scanQuiz(r.db.QueryRowContext(ctx, getQuizSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quiz %s: %w", id, ErrQuizNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

// GetEnrollment retrieves the enrollment of userID in quizID
func (r *Repository) GetEnrollment(ctx context.Context, quizID uuid.UUID, userID string) (*Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRowContext(ctx, getEnrollmentSQL, quizID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s in quiz %s: %w", userID, quizID, ErrNotEnrolled)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return e, nil
}

// AcceptInvitation moves an invited enrollment to accepted
func (r *Repository) AcceptInvitation(ctx context.Context, quizID uuid.UUID, userID string) (*Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRowContext(ctx, acceptInvitationSQL, quizID, userID, r.now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no pending invitation for user %s in quiz %s: %w", userID, quizID, ErrNotEnrolled)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}
	return e, nil
}

// JoinByCode resolves the quiz behind code and records an accepted enrollment
// for the user, in one transaction
func (r *Repository) JoinByCode(ctx context.Context, code, userID, userName string) (*Quiz, *Enrollment, error) {
	var (
		quiz       *Quiz
		enrollment *Enrollment
	)
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		quiz, err = scanQuiz(tx.QueryRowContext(ctx, getQuizByJoinCodeSQL, strings.ToUpper(code)))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("code %q: %w", code, ErrInvalidJoinCode)
		}
		if err != nil {
			return fmt.Errorf("failed to get quiz by join code: %w", err)
		}

		enrollment, err = scanEnrollment(tx.QueryRowContext(ctx, upsertAcceptedSQL,
			quiz.ID, userID, sqlutil.NullString(userName), r.now().UTC()))
		if err != nil {
			return fmt.Errorf("failed to upsert enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return quiz, enrollment, nil
}

func scanQuiz(row rowScanner) (*Quiz, error) {
	var (
		q        Quiz
		limitSec sql.NullInt32
		joinCode sql.NullString
		settings pqtype.NullRawMessage
	)
	if err := row.Scan(&q.ID, &q.OwnerID, &q.Title, &limitSec, &joinCode, &settings); err != nil {
		return nil, err
	}

	q.TimeLimit = sqlutil.Seconds(limitSec)
	q.JoinCode = joinCode.String
	if settings.Valid && len(settings.RawMessage) > 0 {
		if err := json.Unmarshal(settings.RawMessage, &q.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode quiz settings: %w", err)
		}
	}
	return &q, nil
}

func scanEnrollment(row rowScanner) (*Enrollment, error) {
	var (
		e          Enrollment
		userName   sql.NullString
		status     string
		acceptedAt sql.NullTime
	)
	if err := row.Scan(&e.QuizID, &e.UserID, &userName, &status, &e.CreatedAt, &acceptedAt); err != nil {
		return nil, err
	}
	e.UserName = userName.String
	e.Status = Status(status)
	e.AcceptedAt = sqlutil.TimePtr(acceptedAt)
	return &e, nil
}

// EncodeSettings prepares settings for the JSONB column
func EncodeSettings(s Settings) (pqtype.NullRawMessage, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to encode quiz settings: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
