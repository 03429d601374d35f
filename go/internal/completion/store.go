package completion

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/quizarena/go/internal/contest"
)

const insertCompletionsSQL = `
INSERT INTO quiz_session_completions (quiz_id, user_id, user_name, completed_at)
SELECT $1, u.user_id, NULLIF(u.user_name, ''), $2
FROM unnest($3::text[], $4::text[]) AS u(user_id, user_name)
ON CONFLICT DO NOTHING`

// PostgresStore writes completions to quiz_session_completions
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RecordCompletions inserts one expiry's completions. Re-inserting the same
// batch is a no-op.
func (s *PostgresStore) RecordCompletions(ctx context.Context, completions []contest.Completion) error {
	if len(completions) == 0 {
		return nil
	}

	quizID, err := uuid.Parse(completions[0].SessionKey)
	if err != nil {
		return fmt.Errorf("session %s is not a quiz id: %w", completions[0].SessionKey, err)
	}

	userIDs := make([]string, len(completions))
	userNames := make([]string, len(completions))
	for i, c := range completions {
		userIDs[i] = c.UserID
		userNames[i] = c.UserName
	}

	_, err = s.db.ExecContext(ctx, insertCompletionsSQL,
		quizID, completions[0].CompletedAt.UTC(), pq.Array(userIDs), pq.Array(userNames))
	if err != nil {
		return fmt.Errorf("failed to insert completions: %w", err)
	}
	return nil
}
