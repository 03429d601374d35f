package contest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/contest/events"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is the period of timerUpdate events
const DefaultTickInterval = time.Second

// Completion records that a participant was in a session when its timer expired
type Completion struct {
	SessionKey  string
	UserID      string
	UserName    string
	CompletedAt time.Time
}

// CompletionHook is told about participants marked completed at expiry.
// Implementations must not block.
type CompletionHook interface {
	SessionCompleted(completions []Completion)
}

// SchedulerConfig configures the timer scheduler
type SchedulerConfig struct {
	TickInterval time.Duration
	Hook         CompletionHook
}

// Scheduler owns the countdown of every session. Each running timer has one
// driver goroutine fed by a clock ticker; everything it does to the session
// happens under the session lock and only while the session still holds the
// same handle, so a cancelled or replaced timer can never publish again.
type Scheduler struct {
	registry     *Registry
	publisher    Publisher
	clock        clockwork.Clock
	tickInterval time.Duration
	hook         CompletionHook

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler over registry
func NewScheduler(registry *Registry, publisher Publisher, clock clockwork.Clock, cfg SchedulerConfig) *Scheduler {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{
		registry:     registry,
		publisher:    publisher,
		clock:        clock,
		tickInterval: interval,
		hook:         cfg.Hook,
		done:         make(chan struct{}),
	}
}

// StartIfAbsent starts a countdown of limit for the session unless one is already
// running. It reports whether a new timer was created; concurrent callers for the
// same session observe exactly one creation.
func (s *Scheduler) StartIfAbsent(sessionKey string, limit time.Duration) (*TimerInfo, bool, error) {
	return s.start(sessionKey, limit, false)
}

// startOnQuorum is StartIfAbsent for the readiness path: a session whose
// countdown already ended is never started again.
func (s *Scheduler) startOnQuorum(sessionKey string, limit time.Duration) (*TimerInfo, bool, error) {
	return s.start(sessionKey, limit, true)
}

func (s *Scheduler) start(sessionKey string, limit time.Duration, onQuorum bool) (*TimerInfo, bool, error) {
	sess, err := s.registry.Get(sessionKey)
	if err != nil {
		return nil, false, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return nil, false, fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
	}
	now := s.clock.Now()
	if sess.timer != nil {
		return sess.timer.Info(now), false, nil
	}
	if onQuorum && sess.ended {
		return nil, false, nil
	}
	if limit <= 0 {
		return nil, false, fmt.Errorf("invalid time limit %s", limit)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, false, ErrSchedulerStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()

	h := newTimerHandle(now, limit)
	sess.timer = h
	ticker := s.clock.NewTicker(s.tickInterval)

	s.publisher.Publish(room.SessionChannel(sessionKey), events.TypeTimerStarted, events.TimerStartedPayload{
		StartTime: h.StartTime,
		EndTime:   h.EndTime,
		TimeLimit: int(limit / time.Second),
	})

	go s.run(sess, h, ticker)

	log.Info().
		Str("session_id", sessionKey).
		Time("end_time", h.EndTime).
		Dur("time_limit", limit).
		Msg("session timer started")
	return h.Info(now), true, nil
}

func (s *Scheduler) run(sess *Session, h *TimerHandle, ticker clockwork.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-s.done:
			return
		case <-ticker.Chan():
			if finished := s.tick(sess, h); finished {
				return
			}
		}
	}
}

// tick publishes the remaining time and expires the timer once it reaches zero.
// It returns true when the driver should exit.
func (s *Scheduler) tick(sess *Session, h *TimerHandle) bool {
	sess.mu.Lock()

	if sess.timer != h {
		sess.mu.Unlock()
		return true
	}

	now := s.clock.Now()
	remaining := h.RemainingSeconds(now)
	s.publisher.Publish(room.SessionChannel(sess.Key), events.TypeTimerUpdate, events.TimerUpdatePayload{
		RemainingTime: remaining,
		EndTime:       h.EndTime,
	})
	if remaining > 0 {
		sess.mu.Unlock()
		return false
	}

	completions := s.expireLocked(sess, h, now)
	sess.mu.Unlock()

	if s.hook != nil && len(completions) > 0 {
		s.hook.SessionCompleted(completions)
	}
	return true
}

// expireLocked must be called with the session lock held. It is a no-op unless h
// is still the session's timer.
func (s *Scheduler) expireLocked(sess *Session, h *TimerHandle, now time.Time) []Completion {
	if sess.timer != h {
		return nil
	}
	sess.timer = nil
	sess.ended = true
	h.halt()

	var completions []Completion
	for _, p := range sess.participants {
		if p.Completed {
			continue
		}
		at := now
		p.Completed = true
		p.CompletedAt = &at
		completions = append(completions, Completion{
			SessionKey:  sess.Key,
			UserID:      p.ID,
			UserName:    p.Name,
			CompletedAt: at,
		})
	}

	s.publisher.Publish(room.SessionChannel(sess.Key), events.TypeTimerEnded, events.TimerEndedPayload{
		CanStartQuiz: true,
	})

	log.Info().
		Str("session_id", sess.Key).
		Int("completed", len(completions)).
		Msg("session timer ended")
	return completions
}

// Cancel stops the session's running timer. Only the session owner or an
// administrator may cancel; authorization is checked before timer state.
func (s *Scheduler) Cancel(sessionKey string, requester auth.Identity) error {
	sess, err := s.registry.Get(sessionKey)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
	}
	if !sess.canControl(requester) {
		return fmt.Errorf("user %s cancelling timer of session %s: %w", requester.UserID, sessionKey, ErrUnauthorized)
	}
	if sess.timer == nil {
		return fmt.Errorf("session %s: %w", sessionKey, ErrNoActiveTimer)
	}

	s.stopLocked(sess)
	s.publisher.Publish(room.SessionChannel(sessionKey), events.TypeTimerCancelled, events.TimerCancelledPayload{
		CancelledBy: requester.UserID,
	})

	log.Info().
		Str("session_id", sessionKey).
		Str("cancelled_by", requester.UserID).
		Msg("session timer cancelled")
	return nil
}

// Status returns the running timer of a session, or nil when idle
func (s *Scheduler) Status(sessionKey string) (*TimerInfo, error) {
	sess, err := s.registry.Get(sessionKey)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return nil, fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
	}
	if sess.timer == nil {
		return nil, nil
	}
	return sess.timer.Info(s.clock.Now()), nil
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// stopLocked must be called with the session lock held
func (s *Scheduler) stopLocked(sess *Session) {
	if sess.timer == nil {
		return
	}
	sess.timer.halt()
	sess.timer = nil
}

// Shutdown stops every driver and waits for them to exit. No events are
// published after it returns.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
	s.mu.Unlock()

	for _, sess := range s.registry.List() {
		sess.mu.Lock()
		s.stopLocked(sess)
		sess.mu.Unlock()
	}

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		log.Info().Msg("timer scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for timer drivers: %w", ctx.Err())
	}
}
