package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConnChecker is satisfied by the NATS relay publisher
type ConnChecker interface {
	IsConnected() bool
}

type HealthStatus struct {
	Healthy           bool     `json:"healthy"`
	DatabaseConnected bool     `json:"database_connected"`
	NATSConnected     *bool    `json:"nats_connected,omitempty"` // nil when the relay is disabled
	ActiveSessions    int      `json:"active_sessions"`
	RunningTimers     int      `json:"running_timers"`
	Subscribers       int      `json:"subscribers"`
	Errors            []string `json:"errors"`
}

// HealthChecker reports whether the coordinator can serve traffic
type HealthChecker struct {
	db    Pinger
	nats  ConnChecker
	stats StatsSource
}

// NewHealthChecker creates a readiness checker. nats may be nil.
func NewHealthChecker(db Pinger, nats ConnChecker, stats StatsSource) *HealthChecker {
	return &HealthChecker{db: db, nats: nats, stats: stats}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	// Check database connection
	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	// Check NATS connection
	if h.nats != nil {
		connected := h.nats.IsConnected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if h.stats != nil {
		cs := h.stats.ContestStats()
		status.ActiveSessions = cs.Sessions
		status.RunningTimers = cs.RunningTimers
		status.Subscribers = h.stats.HubStats().Subscribers
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
