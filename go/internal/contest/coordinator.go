package contest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/contest/events"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/rs/zerolog/log"
)

// Config holds the coordinator settings
type Config struct {
	DefaultTimeLimit time.Duration
	TickInterval     time.Duration
}

// Registration admits a participant into a session, creating the session on
// first use
type Registration struct {
	SessionKey string
	OwnerID    string
	// TimeLimit applies only when the session is created; zero means the default
	TimeLimit time.Duration
}

// ParticipantsView is the reconciliation read for clients that missed events
type ParticipantsView struct {
	SessionID    string                   `json:"sessionId"`
	AllReady     bool                     `json:"allReady"`
	Participants []events.ParticipantView `json:"participants"`
	Timer        *TimerInfo               `json:"timer,omitempty"`
	// Ended is set once the countdown has run to zero. Readiness no longer
	// starts a timer after that.
	Ended bool `json:"ended"`
}

// TimerStatus is the lightweight timer poll
type TimerStatus struct {
	TimerActive bool       `json:"timerActive"`
	TimerData   *TimerInfo `json:"timerData,omitempty"`
}

// Stats summarises the live sessions
type Stats struct {
	Sessions      int `json:"sessions"`
	RunningTimers int `json:"runningTimers"`
	Participants  int `json:"participants"`
}

// Coordinator is the control surface of the live quiz core. It composes the
// registry, the readiness aggregator and the timer scheduler over one publisher.
type Coordinator struct {
	cfg        Config
	clock      clockwork.Clock
	publisher  Publisher
	registry   *Registry
	aggregator *Aggregator
	scheduler  *Scheduler
}

// NewCoordinator wires a coordinator. hook may be nil.
func NewCoordinator(cfg Config, clock clockwork.Clock, publisher Publisher, hook CompletionHook) *Coordinator {
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = 60 * time.Second
	}
	registry := NewRegistry(clock)
	return &Coordinator{
		cfg:        cfg,
		clock:      clock,
		publisher:  publisher,
		registry:   registry,
		aggregator: NewAggregator(registry, publisher),
		scheduler: NewScheduler(registry, publisher, clock, SchedulerConfig{
			TickInterval: cfg.TickInterval,
			Hook:         hook,
		}),
	}
}

// Register adds who to the session, creating the session if needed. It reports
// whether who was newly added; registering twice only refreshes the display name.
func (c *Coordinator) Register(ctx context.Context, reg Registration, who auth.Identity) (Snapshot, bool, error) {
	if reg.SessionKey == "" || who.UserID == "" {
		return Snapshot{}, false, fmt.Errorf("session key and user id are required")
	}
	limit := reg.TimeLimit
	if limit <= 0 {
		limit = c.cfg.DefaultTimeLimit
	}

	for {
		sess, _ := c.registry.GetOrCreate(reg.SessionKey, reg.OwnerID, limit)

		sess.mu.Lock()
		if sess.closed {
			// lost a race with CloseSession; the next GetOrCreate sees a fresh session
			sess.mu.Unlock()
			continue
		}

		p, exists := sess.participants[who.UserID]
		if exists {
			if who.Name != "" {
				p.Name = who.Name
			}
			snap := sess.snapshotLocked()
			sess.mu.Unlock()
			return snap, false, nil
		}

		p = &Participant{
			ID:       who.UserID,
			Name:     who.Name,
			JoinedAt: c.clock.Now(),
		}
		sess.participants[who.UserID] = p
		snap := sess.snapshotLocked()
		c.publisher.Publish(room.SessionChannel(reg.SessionKey), events.TypeParticipantJoined, sess.readyPayloadLocked(p, snap))
		sess.mu.Unlock()

		log.Info().
			Str("session_id", reg.SessionKey).
			Str("user_id", who.UserID).
			Int("participants", len(snap.Participants)).
			Msg("participant registered")
		return snap, true, nil
	}
}

// MarkReady marks who ready and starts the session timer once everybody is ready.
// A session whose countdown already ended is not started again.
func (c *Coordinator) MarkReady(ctx context.Context, sessionKey string, who auth.Identity) (Snapshot, error) {
	sess, err := c.registry.Get(sessionKey)
	if err != nil {
		return Snapshot{}, err
	}
	if c.scheduler.isStopped() {
		return Snapshot{}, ErrSchedulerStopped
	}

	snap, err := c.aggregator.SetReady(sessionKey, who.UserID)
	if err != nil {
		return Snapshot{}, err
	}
	if snap.AllReady {
		if err := c.startTimer(sess); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

// MarkNotReady clears who's ready flag. A running timer keeps running.
func (c *Coordinator) MarkNotReady(ctx context.Context, sessionKey string, who auth.Identity) (Snapshot, error) {
	return c.aggregator.SetNotReady(sessionKey, who.UserID)
}

// Leave removes who from the session. The remaining participants may now all be
// ready, in which case the timer starts.
func (c *Coordinator) Leave(ctx context.Context, sessionKey string, who auth.Identity) (Snapshot, error) {
	sess, err := c.registry.Get(sessionKey)
	if err != nil {
		return Snapshot{}, err
	}
	if c.scheduler.isStopped() {
		return Snapshot{}, ErrSchedulerStopped
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return Snapshot{}, fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
	}
	p, ok := sess.participants[who.UserID]
	if !ok {
		sess.mu.Unlock()
		return Snapshot{}, fmt.Errorf("user %s in session %s: %w", who.UserID, sessionKey, ErrNotAParticipant)
	}
	delete(sess.participants, who.UserID)
	snap := sess.snapshotLocked()
	c.publisher.Publish(room.SessionChannel(sessionKey), events.TypeParticipantLeft, sess.readyPayloadLocked(p, snap))
	sess.mu.Unlock()

	log.Info().
		Str("session_id", sessionKey).
		Str("user_id", who.UserID).
		Msg("participant left")

	if snap.AllReady {
		if err := c.startTimer(sess); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

func (c *Coordinator) startTimer(sess *Session) error {
	_, started, err := c.scheduler.startOnQuorum(sess.Key, sess.TimeLimit)
	if errors.Is(err, ErrSchedulerStopped) {
		// Shutdown won the race after the readiness change was applied
		log.Warn().Str("session_id", sess.Key).Msg("quorum reached during shutdown, timer not started")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to start timer: %w", err)
	}
	if started {
		log.Debug().Str("session_id", sess.Key).Msg("quorum reached")
	}
	return nil
}

// GetParticipants returns the participant list and the running timer, if any
func (c *Coordinator) GetParticipants(ctx context.Context, sessionKey string) (*ParticipantsView, error) {
	sess, err := c.registry.Get(sessionKey)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return nil, fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
	}
	snap := sess.snapshotLocked()
	view := &ParticipantsView{
		SessionID:    sessionKey,
		AllReady:     snap.AllReady,
		Participants: snap.Participants,
		Ended:        sess.ended,
	}
	if sess.timer != nil {
		view.Timer = sess.timer.Info(c.clock.Now())
	}
	return view, nil
}

// GetTimerStatus reports whether the session timer is running
func (c *Coordinator) GetTimerStatus(ctx context.Context, sessionKey string) (*TimerStatus, error) {
	info, err := c.scheduler.Status(sessionKey)
	if err != nil {
		return nil, err
	}
	return &TimerStatus{TimerActive: info != nil, TimerData: info}, nil
}

// CancelTimer stops the running timer on behalf of who
func (c *Coordinator) CancelTimer(ctx context.Context, sessionKey string, who auth.Identity) error {
	return c.scheduler.Cancel(sessionKey, who)
}

// CloseSession tears a session down: the timer is stopped, sessionClosed is
// published and the key is released.
func (c *Coordinator) CloseSession(ctx context.Context, sessionKey string, who auth.Identity) error {
	sess, err := c.registry.Get(sessionKey)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
	}
	if !sess.canControl(who) {
		return fmt.Errorf("user %s closing session %s: %w", who.UserID, sessionKey, ErrUnauthorized)
	}

	c.scheduler.stopLocked(sess)
	sess.closed = true
	c.registry.remove(sessionKey, sess)
	c.publisher.Publish(room.SessionChannel(sessionKey), events.TypeSessionClosed, events.SessionClosedPayload{
		ClosedBy: who.UserID,
	})

	log.Info().
		Str("session_id", sessionKey).
		Str("closed_by", who.UserID).
		Msg("session closed")
	return nil
}

// Stats reports live session counts
func (c *Coordinator) Stats() Stats {
	var stats Stats
	for _, sess := range c.registry.List() {
		sess.mu.Lock()
		stats.Sessions++
		stats.Participants += len(sess.participants)
		if sess.timer != nil {
			stats.RunningTimers++
		}
		sess.mu.Unlock()
	}
	return stats
}

// Shutdown stops every running timer
func (c *Coordinator) Shutdown(ctx context.Context) error {
	return c.scheduler.Shutdown(ctx)
}
