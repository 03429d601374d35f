package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/completion"
	"github.com/mcdev12/quizarena/go/internal/config"
	"github.com/mcdev12/quizarena/go/internal/contest"
	"github.com/mcdev12/quizarena/go/internal/dbconfig"
	"github.com/mcdev12/quizarena/go/internal/enrollment"
	"github.com/mcdev12/quizarena/go/internal/gateway"
	"github.com/mcdev12/quizarena/go/internal/relay"
	"github.com/mcdev12/quizarena/go/internal/room"
)

type Services struct {
	Hub         *room.Hub
	Coordinator *contest.Coordinator
	Enrollment  *enrollment.App
	Auth        *auth.Service
	Connections *gateway.ConnectionManager

	// Optional background workers, nil when disabled
	Recorder  *completion.Recorder
	Listener  *enrollment.Listener
	Mirror    *relay.Mirror
	publisher *relay.JetStreamPublisher
}

func setupServices(cfg *config.Config, database *sql.DB) (*Services, error) {
	// Wire up dependency injection chain
	// Broadcaster → Completion hook → Coordinator → Enrollment → Transport
	s := &Services{}

	s.Hub = room.NewHub()

	var hook contest.CompletionHook
	if cfg.Completion.Enabled {
		recCfg := completion.DefaultConfig()
		recCfg.QueueSize = cfg.Completion.QueueSize
		recCfg.MaxRetries = cfg.Completion.MaxRetries
		recCfg.RetryDelay = cfg.Completion.RetryDelay
		s.Recorder = completion.NewRecorder(completion.NewPostgresStore(database), recCfg)
		hook = s.Recorder
	}

	s.Coordinator = contest.NewCoordinator(contest.Config{
		DefaultTimeLimit: cfg.Contest.TimeLimit(),
		TickInterval:     cfg.Contest.TickInterval,
	}, clockwork.NewRealClock(), s.Hub, hook)

	enrollRepo := enrollment.NewRepository(database)
	s.Enrollment = enrollment.NewApp(enrollRepo, s.Coordinator, s.Hub)

	if cfg.Enrollment.ListenerEnabled {
		listenerCfg := enrollment.DefaultListenerConfig()
		listenerCfg.DatabaseURL = dbconfig.NewConfigFromEnv().DSN()
		listenerCfg.NotifyChannel = cfg.Enrollment.NotifyChannel
		listenerCfg.PingInterval = cfg.Enrollment.PingInterval

		listener, err := enrollment.NewListener(s.Enrollment, listenerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create enrollment listener: %w", err)
		}
		s.Listener = listener
	}

	if cfg.NATS.Enabled {
		jsCfg := relay.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.StreamName
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

		publisher, err := relay.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create event relay: %w", err)
		}
		mirrorCfg := relay.DefaultMirrorConfig()
		mirrorCfg.QueueSize = cfg.NATS.QueueSize

		s.publisher = publisher
		s.Mirror = relay.NewMirror(publisher, mirrorCfg)
		s.Hub.AddObserver(s.Mirror)
	} else {
		log.Info().Msg("NATS relay disabled")
	}

	s.Auth = auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	wsCfg := gateway.DefaultConnectionConfig()
	wsCfg.ReadTimeout = cfg.WebSocket.ReadTimeout
	wsCfg.WriteTimeout = cfg.WebSocket.WriteTimeout
	wsCfg.PingInterval = cfg.WebSocket.PingInterval
	wsCfg.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	wsCfg.SendBufferSize = cfg.WebSocket.SendBufferSize
	s.Connections = gateway.NewConnectionManager(s.Hub, wsCfg)

	return s, nil
}

// Shutdown stops request intake, then every timer, then the workers consuming
// timer output. Completions from a timer expiring during shutdown are queued
// before the recorder starts draining. server may be nil.
func (s *Services) Shutdown(ctx context.Context, server *http.Server, stopWorkers context.CancelFunc) {
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
	}
	// Stop timers before closing sockets so no event is half delivered
	if err := s.Coordinator.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Coordinator shutdown incomplete")
	}
	if s.Connections != nil {
		s.Connections.CloseAll()
	}
	stopWorkers()
}

// Close releases connections held by optional workers
func (s *Services) Close() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close NATS connection")
		}
	}
}
