package gateway

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mcdev12/quizarena/go/internal/auth"
)

// NewRouter creates the HTTP router with all endpoints
func NewRouter(sessions *SessionHandler, ws *WebSocketHandler, authMW *auth.Middleware) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.Handle("/ws/stats", authMW.RequireIdentity(http.HandlerFunc(ws.HandleConnectionStats))).Methods(http.MethodGet)
	// Browsers cannot set headers on the upgrade request, so the token may come as ?token=
	r.Handle("/ws", authMW.RequireIdentity(http.HandlerFunc(ws.HandleConnection))).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMW.RequireIdentity)

	api.HandleFunc("/sessions/join", sessions.JoinByCode).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", sessions.CloseSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/join", sessions.Join).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/invitation/accept", sessions.AcceptInvitation).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/ready", sessions.MarkReady).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/ready", sessions.MarkNotReady).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/participants", sessions.GetParticipants).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/participants/me", sessions.Leave).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/timer", sessions.GetTimerStatus).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/timer", sessions.CancelTimer).Methods(http.MethodDelete)

	return r
}
