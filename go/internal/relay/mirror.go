package relay

import (
	"context"
	"strings"

	"github.com/mcdev12/quizarena/go/internal/contest/events"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/rs/zerolog/log"
)

// EventPublisher sends an event to an external bus
type EventPublisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

type MirrorConfig struct {
	QueueSize int
	// SkipTypes are not forwarded. timerUpdate fires every second per session
	// and carries nothing the report service needs.
	SkipTypes []events.Type
}

func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		QueueSize: 1024,
		SkipTypes: []events.Type{events.TypeTimerUpdate},
	}
}

// Mirror observes the hub and forwards session events to the bus from a single
// worker. Observe never blocks the publishing session.
type Mirror struct {
	publisher EventPublisher
	queue     chan *events.Event
	skip      map[events.Type]struct{}
}

var _ room.Observer = (*Mirror)(nil)

func NewMirror(publisher EventPublisher, cfg MirrorConfig) *Mirror {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultMirrorConfig().QueueSize
	}
	skip := make(map[events.Type]struct{}, len(cfg.SkipTypes))
	for _, t := range cfg.SkipTypes {
		skip[t] = struct{}{}
	}
	return &Mirror{
		publisher: publisher,
		queue:     make(chan *events.Event, cfg.QueueSize),
		skip:      skip,
	}
}

// Observe queues session-channel events
func (m *Mirror) Observe(event *events.Event) {
	if !strings.HasPrefix(event.Channel, "session:") {
		return
	}
	if _, ok := m.skip[event.Type]; ok {
		return
	}

	select {
	case m.queue <- event:
	default:
		log.Warn().
			Str("event_type", string(event.Type)).
			Str("event_id", event.ID).
			Msg("relay queue full, dropping event")
	}
}

// Run publishes queued events until ctx is cancelled
func (m *Mirror) Run(ctx context.Context) error {
	log.Info().Int("queue_size", cap(m.queue)).Msg("event relay started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Int("pending", len(m.queue)).Msg("event relay stopped")
			return nil
		case event := <-m.queue:
			if err := m.publisher.Publish(ctx, event); err != nil {
				log.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Str("event_id", event.ID).
					Msg("failed to relay event")
			}
		}
	}
}
