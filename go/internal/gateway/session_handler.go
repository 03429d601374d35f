package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/contest"
	"github.com/mcdev12/quizarena/go/internal/enrollment"
)

// Coordinator is what the REST surface needs from the contest core
type Coordinator interface {
	MarkReady(ctx context.Context, sessionKey string, who auth.Identity) (contest.Snapshot, error)
	MarkNotReady(ctx context.Context, sessionKey string, who auth.Identity) (contest.Snapshot, error)
	Leave(ctx context.Context, sessionKey string, who auth.Identity) (contest.Snapshot, error)
	GetParticipants(ctx context.Context, sessionKey string) (*contest.ParticipantsView, error)
	GetTimerStatus(ctx context.Context, sessionKey string) (*contest.TimerStatus, error)
	CancelTimer(ctx context.Context, sessionKey string, who auth.Identity) error
	CloseSession(ctx context.Context, sessionKey string, who auth.Identity) error
}

// Enroller admits users into sessions
type Enroller interface {
	Join(ctx context.Context, quizID string, who auth.Identity) (*enrollment.JoinResult, error)
	AcceptInvitation(ctx context.Context, quizID string, who auth.Identity) (*enrollment.JoinResult, error)
	JoinByCode(ctx context.Context, code string, who auth.Identity) (*enrollment.JoinResult, error)
}

// SessionHandler serves the session REST endpoints
type SessionHandler struct {
	coord  Coordinator
	enroll Enroller
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(coord Coordinator, enroll Enroller) *SessionHandler {
	return &SessionHandler{
		coord:  coord,
		enroll: enroll,
	}
}

// JoinByCodeRequest is the request body for joining with a code
type JoinByCodeRequest struct {
	Code string `json:"code"`
}

type cancelResponse struct {
	SessionID string `json:"sessionId"`
	Cancelled bool   `json:"cancelled"`
}

type closeResponse struct {
	SessionID string `json:"sessionId"`
	Closed    bool   `json:"closed"`
}

// requestContext pulls the caller and the {id} path variable
func requestContext(w http.ResponseWriter, r *http.Request) (auth.Identity, string, bool) {
	who, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization")
		return auth.Identity{}, "", false
	}
	sessionID := mux.Vars(r)["id"]
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return auth.Identity{}, "", false
	}
	return who, sessionID, true
}

// MarkReady handles POST /api/sessions/{id}/ready
func (h *SessionHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := requestContext(w, r)
	if !ok {
		return
	}

	snap, err := h.coord.MarkReady(r.Context(), sessionID, who)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// MarkNotReady handles DELETE /api/sessions/{id}/ready
func (h *SessionHandler) MarkNotReady(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := requestContext(w, r)
	if !ok {
		return
	}

	snap, err := h.coord.MarkNotReady(r.Context(), sessionID, who)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetParticipants handles GET /api/sessions/{id}/participants
func (h *SessionHandler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := requestContext(w, r)
	if !ok {
		return
	}

	view, err := h.coord.GetParticipants(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetTimerStatus handles GET /api/sessions/{id}/timer
func (h *SessionHandler) GetTimerStatus(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := requestContext(w, r)
	if !ok {
		return
	}

	status, err := h.coord.GetTimerStatus(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// CancelTimer handles DELETE /api/sessions/{id}/timer
func (h *SessionHandler) CancelTimer(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := requestContext(w, r)
	if !ok {
		return
	}

	if err := h.coord.CancelTimer(r.Context(), sessionID, who); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{SessionID: sessionID, Cancelled: true})
}

// Leave handles DELETE /api/sessions/{id}/participants/me
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := requestContext(w, r)
	if !ok {
		return
	}

	snap, err := h.coord.Leave(r.Context(), sessionID, who)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CloseSession handles DELETE /api/sessions/{id}
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := requestContext(w, r)
	if !ok {
		return
	}

	if err := h.coord.CloseSession(r.Context(), sessionID, who); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closeResponse{SessionID: sessionID, Closed: true})
}

// Join handles POST /api/sessions/{id}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := requestContext(w, r)
	if !ok {
		return
	}

	res, err := h.enroll.Join(r.Context(), sessionID, who)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AcceptInvitation handles POST /api/sessions/{id}/invitation/accept
func (h *SessionHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := requestContext(w, r)
	if !ok {
		return
	}

	res, err := h.enroll.AcceptInvitation(r.Context(), sessionID, who)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// JoinByCode handles POST /api/sessions/join
func (h *SessionHandler) JoinByCode(w http.ResponseWriter, r *http.Request) {
	who, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization")
		return
	}

	var req JoinByCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	res, err := h.enroll.JoinByCode(r.Context(), req.Code, who)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
