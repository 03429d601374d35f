package main

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/config"
	"github.com/mcdev12/quizarena/go/internal/gateway"
)

func setupServer(cfg *config.Config, services *Services, database *sql.DB) *http.Server {
	stats := gateway.NewStatsSource(services.Hub, services.Coordinator)
	sessions := gateway.NewSessionHandler(services.Coordinator, services.Enrollment)
	ws := gateway.NewWebSocketHandler(services.Connections, stats)
	router := gateway.NewRouter(sessions, ws, auth.NewMiddleware(services.Auth))

	// Readiness check, /health stays a plain liveness probe
	var natsCheck gateway.ConnChecker
	if services.publisher != nil {
		natsCheck = services.publisher
	}
	router.Handle("/health/ready", gateway.NewHealthChecker(database, natsCheck, stats)).Methods(http.MethodGet)

	// Wrap with CORS
	handler := gateway.NewCORS(cfg.Server.AllowedOrigins).Handler(router)

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
