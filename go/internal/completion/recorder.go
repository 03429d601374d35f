package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/quizarena/go/internal/contest"
	"github.com/rs/zerolog/log"
)

// Store persists session completions
type Store interface {
	RecordCompletions(ctx context.Context, completions []contest.Completion) error
}

type Config struct {
	QueueSize    int
	MaxRetries   int
	RetryDelay   time.Duration
	DrainTimeout time.Duration // How long Run keeps flushing the queue after shutdown
}

func DefaultConfig() Config {
	return Config{
		QueueSize:    256,
		MaxRetries:   5,
		RetryDelay:   200 * time.Millisecond,
		DrainTimeout: 5 * time.Second,
	}
}

// Recorder is the timer scheduler's completion hook. It queues completions and
// a single worker writes them to the store, so expiry never waits on the database.
type Recorder struct {
	store Store
	queue chan []contest.Completion
	cfg   Config
}

var _ contest.CompletionHook = (*Recorder)(nil)

func NewRecorder(store Store, cfg Config) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Recorder{
		store: store,
		queue: make(chan []contest.Completion, cfg.QueueSize),
		cfg:   cfg,
	}
}

// SessionCompleted enqueues completions. It never blocks; a full queue drops the batch.
func (r *Recorder) SessionCompleted(completions []contest.Completion) {
	if len(completions) == 0 {
		return
	}
	select {
	case r.queue <- completions:
	default:
		log.Warn().
			Str("session_id", completions[0].SessionKey).
			Int("completions", len(completions)).
			Msg("completion queue full, dropping batch")
	}
}

// Run writes queued completions until ctx is cancelled, then flushes what is
// left within DrainTimeout
func (r *Recorder) Run(ctx context.Context) error {
	log.Info().Int("queue_size", cap(r.queue)).Msg("completion recorder started")

	for {
		select {
		case <-ctx.Done():
			r.drain()
			log.Info().Msg("completion recorder stopped")
			return nil
		case batch := <-r.queue:
			if err := r.recordWithRetry(ctx, batch); err != nil {
				log.Error().
					Err(err).
					Str("session_id", batch[0].SessionKey).
					Msg("failed to record completions")
			}
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.DrainTimeout)
	defer cancel()

	for {
		select {
		case batch := <-r.queue:
			if err := r.recordWithRetry(ctx, batch); err != nil {
				log.Error().Err(err).Str("session_id", batch[0].SessionKey).Msg("failed to flush completions")
			}
		default:
			return
		}
	}
}

// recordWithRetry attempts to store a batch with a linear backoff and max retries.
func (r *Recorder) recordWithRetry(ctx context.Context, batch []contest.Completion) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := r.store.RecordCompletions(ctx, batch); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("session_id", batch[0].SessionKey).
				Msg("failed to record completions, retrying")
			continue
		}

		log.Info().
			Int("attempt", attempt+1).
			Str("session_id", batch[0].SessionKey).
			Int("completions", len(batch)).
			Msg("recorded session completions")
		return nil
	}

	return fmt.Errorf("record failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
