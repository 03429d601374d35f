package gateway

import (
	"net/http"
	"strings"

	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/contest"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/rs/zerolog/log"
)

// StatsSource reports broadcaster and coordinator counters
type StatsSource interface {
	HubStats() room.Stats
	ContestStats() contest.Stats
}

// WebSocketHandler handles WebSocket upgrade requests
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stats             StatsSource
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, stats StatsSource) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stats:             stats,
	}
}

// HandleConnection upgrades an authenticated request. The optional session_id
// query parameter subscribes the socket to that session right away.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	who, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization")
		return
	}
	sessionID := r.URL.Query().Get("session_id")

	// On failure the upgrader has already replied to the client
	if err := h.connectionManager.UpgradeConnection(w, r, who, sessionID); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("user_id", who.UserID).
			Msg("failed to upgrade WebSocket connection")
	}
}

type statsResponse struct {
	ConnectionStats
	Channels       int            `json:"channels"`
	Subscriptions  int            `json:"subscriptions"`
	ChannelSizes   map[string]int `json:"channel_subscribers"`
	ActiveSessions int            `json:"active_sessions"`
	RunningTimers  int            `json:"running_timers"`
	SessionMembers int            `json:"session_participants"`
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{ConnectionStats: h.connectionManager.GetConnectionStats()}
	if h.stats != nil {
		hub := h.stats.HubStats()
		resp.Channels = hub.Channels
		resp.Subscriptions = hub.Subscribers
		resp.ChannelSizes = sessionChannels(hub.ChannelSubscribers)

		cs := h.stats.ContestStats()
		resp.ActiveSessions = cs.Sessions
		resp.RunningTimers = cs.RunningTimers
		resp.SessionMembers = cs.Participants
	}
	writeJSON(w, http.StatusOK, resp)
}

// sessionChannels keeps only session channels; user channel names carry user ids
func sessionChannels(sizes map[string]int) map[string]int {
	prefix := string(room.SessionChannel(""))
	out := make(map[string]int, len(sizes))
	for name, n := range sizes {
		if strings.HasPrefix(name, prefix) {
			out[name] = n
		}
	}
	return out
}

type liveStats struct {
	hub   *room.Hub
	coord *contest.Coordinator
}

// NewStatsSource reads counters from the live hub and coordinator
func NewStatsSource(hub *room.Hub, coord *contest.Coordinator) StatsSource {
	return liveStats{hub: hub, coord: coord}
}

func (s liveStats) HubStats() room.Stats        { return s.hub.Stats() }
func (s liveStats) ContestStats() contest.Stats { return s.coord.Stats() }
