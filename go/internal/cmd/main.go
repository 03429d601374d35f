package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/quizarena/go/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Set up pretty logging for development
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file found")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	database, err := setupDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(cfg, database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up services")
	}

	server := setupServer(cfg, services, database)

	g, gctx := errgroup.WithContext(ctx)

	// Workers that consume timer output outlive the coordinator, they are
	// stopped by Shutdown once the last timer has finished
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("Starting quiz coordinator")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if services.Recorder != nil {
		g.Go(func() error { return services.Recorder.Run(workerCtx) })
	}
	if services.Listener != nil {
		g.Go(func() error { return services.Listener.Start(gctx) })
	}
	if services.Mirror != nil {
		g.Go(func() error { return services.Mirror.Run(workerCtx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down quiz coordinator...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		services.Shutdown(shutdownCtx, server, stopWorkers)
		return nil
	})

	err = g.Wait()
	services.Close()
	if err != nil {
		log.Error().Err(err).Msg("Quiz coordinator exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Quiz coordinator exited")
}
