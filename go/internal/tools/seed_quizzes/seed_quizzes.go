package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/quizarena/go/internal/dbconfig"
	"github.com/mcdev12/quizarena/go/internal/enrollment"
)

// Quiz mirrors the JSON fixture
type Quiz struct {
	ID           string              `json:"id"`
	OwnerID      string              `json:"owner_id"`
	Title        string              `json:"title"`
	TimeLimitSec int                 `json:"time_limit_sec"`
	JoinCode     string              `json:"join_code"`
	Settings     enrollment.Settings `json:"settings"`
	Enrollments  []Enrollment        `json:"enrollments"`
}

type Enrollment struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Status   string `json:"status"`
}

func main() {
	path := "go/internal/assets/quizzes.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON fixture
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var quizzes []Quiz
	if err := json.Unmarshal(data, &quizzes); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert each quiz with its enrollments in one transaction
	var (
		total       = len(quizzes)
		inserted    int
		skipped     int
		enrollments int
		errs        int
	)

	for _, q := range quizzes {
		created, n, err := seedQuiz(ctx, pool, q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error seeding quiz %s: %v\n", q.ID, err)
			errs++
			continue
		}
		if created {
			inserted++
		} else {
			skipped++
		}
		enrollments += n
	}

	// 4) Print summary
	fmt.Printf(
		"Quizzes seed complete: %d total, %d inserted, %d skipped, %d enrollments, %d errors\n",
		total, inserted, skipped, enrollments, errs,
	)
}

func seedQuiz(ctx context.Context, pool *pgxpool.Pool, q Quiz) (bool, int, error) {
	settings, err := enrollment.EncodeSettings(q.Settings)
	if err != nil {
		return false, 0, err
	}

	var timeLimit *int
	if q.TimeLimitSec > 0 {
		timeLimit = &q.TimeLimitSec
	}
	var joinCode *string
	if q.JoinCode != "" {
		joinCode = &q.JoinCode
	}

	var (
		created bool
		count   int
	)
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO quizzes (id, owner_id, title, time_limit_sec, join_code, settings)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (id) DO NOTHING
        `, q.ID, q.OwnerID, q.Title, timeLimit, joinCode, string(settings.RawMessage))
		if err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		created = tag.RowsAffected() == 1

		for _, e := range q.Enrollments {
			status := e.Status
			if status == "" {
				status = string(enrollment.StatusInvited)
			}
			tag, err := tx.Exec(ctx, `
                INSERT INTO quiz_enrollments (quiz_id, user_id, user_name, status, accepted_at)
                VALUES ($1, $2, $3, $4, CASE WHEN $4 = 'accepted' THEN now() END)
                ON CONFLICT (quiz_id, user_id) DO NOTHING
            `, q.ID, e.UserID, e.UserName, status)
			if err != nil {
				return fmt.Errorf("insert enrollment %s: %w", e.UserID, err)
			}
			count += int(tag.RowsAffected())
		}
		return nil
	})
	return created, count, err
}
