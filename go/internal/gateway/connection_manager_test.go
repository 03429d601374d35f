package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/quizarena/go/internal/contest"
	"github.com/mcdev12/quizarena/go/internal/contest/events"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, token, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	if sessionID != "" {
		url += "&session_id=" + sessionID
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of the wanted type arrives
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var frame map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &frame))
		var typ string
		require.NoError(t, json.Unmarshal(frame["type"], &typ))
		if typ == wantType {
			return frame
		}
	}
}

func TestWebSocketReceivesSessionEvents(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	conn := dial(t, srv, ts.token(alice), "quiz-1")
	require.Eventually(t, func() bool {
		return ts.hub.Stats().ChannelSubscribers[string(room.SessionChannel("quiz-1"))] == 1
	}, time.Second, 5*time.Millisecond)

	_, _, err := ts.coord.Register(t.Context(), contest.Registration{SessionKey: "quiz-1", OwnerID: owner.UserID}, alice)
	require.NoError(t, err)

	frame := readUntil(t, conn, string(events.TypeParticipantJoined))
	var payload events.ParticipantReadyPayload
	require.NoError(t, json.Unmarshal(frame["data"], &payload))
	assert.Equal(t, alice.UserID, payload.UserID)
	assert.Len(t, payload.Participants, 1)
}

func TestWebSocketJoinAndLeaveFrames(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	conn := dial(t, srv, ts.token(bob), "")

	require.NoError(t, conn.WriteJSON(map[string]string{"action": ActionJoinSession, "sessionId": "quiz-9"}))
	ack := readUntil(t, conn, "ack")
	assert.JSONEq(t, `"quiz-9"`, string(ack["sessionId"]))

	ts.hub.Publish(room.SessionChannel("quiz-9"), events.TypeTimerEnded, events.TimerEndedPayload{CanStartQuiz: true})
	readUntil(t, conn, string(events.TypeTimerEnded))

	require.NoError(t, conn.WriteJSON(map[string]string{"action": ActionLeaveSession, "sessionId": "quiz-9"}))
	readUntil(t, conn, "ack")
	assert.Zero(t, ts.hub.Stats().ChannelSubscribers[string(room.SessionChannel("quiz-9"))])

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "dance"}))
	readUntil(t, conn, "error")
}

func TestWebSocketUserChannel(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	conn := dial(t, srv, ts.token(alice), "")
	require.Eventually(t, func() bool {
		return ts.hub.Stats().ChannelSubscribers[string(room.UserChannel(alice.UserID))] == 1
	}, time.Second, 5*time.Millisecond)

	ts.hub.Publish(room.UserChannel(alice.UserID), events.TypeInvitationAccepted, events.InvitationAcceptedPayload{QuizID: "quiz-1", UserID: alice.UserID})
	readUntil(t, conn, string(events.TypeInvitationAccepted))
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDisconnectUnsubscribes(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	conn := dial(t, srv, ts.token(alice), "quiz-1")
	require.Eventually(t, func() bool {
		return ts.cm.GetConnectionStats().TotalConnections == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return ts.cm.GetConnectionStats().TotalConnections == 0 && ts.hub.Stats().Subscribers == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnectionStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	_, _, err := ts.coord.Register(t.Context(), contest.Registration{SessionKey: "quiz-1"}, alice)
	require.NoError(t, err)
	conn := dial(t, srv, ts.token(alice), "quiz-1")
	defer conn.Close()
	require.Eventually(t, func() bool {
		return ts.hub.Stats().ChannelSubscribers[string(room.SessionChannel("quiz-1"))] == 1
	}, time.Second, 5*time.Millisecond)

	rec := ts.do(http.MethodGet, "/ws/stats", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/ws/stats", &bob, "")
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decode[statsResponse](t, rec)
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.SessionMembers)
	assert.Equal(t, map[string]int{string(room.SessionChannel("quiz-1")): 1}, stats.ChannelSizes)
	assert.NotContains(t, rec.Body.String(), string(room.UserChannel(alice.UserID)))
}
