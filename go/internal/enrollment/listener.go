package enrollment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/rs/zerolog/log"
)

// Notification actions sent by the enrollment triggers
const (
	ActionAccepted = "accepted"
	ActionRemoved  = "removed"
)

type ListenerConfig struct {
	DatabaseURL   string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string        // Channel name to LISTEN on
	PingInterval  time.Duration // How often to check the connection
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		DatabaseURL:   "",
		NotifyChannel: "quiz_enrollment_events",
		PingInterval:  90 * time.Second,
	}
}

// Notification is the JSON payload of a quiz_enrollment_events notification
type Notification struct {
	QuizID   string    `json:"quizId"`
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	Role     auth.Role `json:"role,omitempty"`
	Action   string    `json:"action"`
}

// Admitter is the part of App the listener drives
type Admitter interface {
	Admit(ctx context.Context, quizID string, who auth.Identity) (*JoinResult, error)
	Remove(ctx context.Context, quizID string, who auth.Identity) error
}

// Listener admits participants accepted outside this process (the quiz CRUD
// app) by listening to Postgres notifications
type Listener struct {
	listener *pq.Listener
	app      Admitter
	cfg      ListenerConfig
}

func NewListener(app Admitter, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for enrollment notifications")

	return &Listener{
		listener: l,
		app:      app,
		cfg:      cfg,
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("enrollment listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("enrollment listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle enrollment notification")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

// handleNotification applies one notification. Extra is the payload on the note.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	var n Notification
	if err := json.Unmarshal([]byte(extra), &n); err != nil {
		return fmt.Errorf("invalid enrollment notification: %w", err)
	}
	if n.QuizID == "" || n.UserID == "" {
		return fmt.Errorf("enrollment notification missing quizId or userId")
	}

	role := n.Role
	if !role.Valid() {
		role = auth.RoleStudent
	}
	who := auth.Identity{UserID: n.UserID, Name: n.UserName, Role: role}

	switch n.Action {
	case ActionAccepted:
		if _, err := l.app.Admit(ctx, n.QuizID, who); err != nil {
			return fmt.Errorf("failed to admit user %s: %w", n.UserID, err)
		}
	case ActionRemoved:
		if err := l.app.Remove(ctx, n.QuizID, who); err != nil {
			return fmt.Errorf("failed to remove user %s: %w", n.UserID, err)
		}
	default:
		log.Debug().
			Str("action", n.Action).
			Str("session_id", n.QuizID).
			Msg("ignoring enrollment notification")
		return nil
	}

	log.Info().
		Str("action", n.Action).
		Str("session_id", n.QuizID).
		Str("user_id", n.UserID).
		Msg("applied enrollment notification")
	return nil
}
