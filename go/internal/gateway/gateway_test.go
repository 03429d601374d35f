package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/contest"
	"github.com/mcdev12/quizarena/go/internal/enrollment"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/stretchr/testify/require"
)

// fakeEnroller admits everybody except the users listed in denied
type fakeEnroller struct {
	coord  *contest.Coordinator
	owner  string
	denied map[string]bool
}

func (f *fakeEnroller) Join(ctx context.Context, quizID string, who auth.Identity) (*enrollment.JoinResult, error) {
	if f.denied[who.UserID] {
		return nil, enrollment.ErrNotEnrolled
	}
	snap, joined, err := f.coord.Register(ctx, contest.Registration{SessionKey: quizID, OwnerID: f.owner}, who)
	if err != nil {
		return nil, err
	}
	return &enrollment.JoinResult{SessionID: quizID, Joined: joined, Snapshot: snap}, nil
}

func (f *fakeEnroller) AcceptInvitation(ctx context.Context, quizID string, who auth.Identity) (*enrollment.JoinResult, error) {
	return f.Join(ctx, quizID, who)
}

func (f *fakeEnroller) JoinByCode(ctx context.Context, code string, who auth.Identity) (*enrollment.JoinResult, error) {
	if code != "ABC123" {
		return nil, enrollment.ErrInvalidJoinCode
	}
	return f.Join(ctx, "quiz-1", who)
}

var (
	owner   = auth.Identity{UserID: "owner", Name: "Owner", Role: auth.RoleTeacher}
	alice   = auth.Identity{UserID: "alice", Name: "Alice", Role: auth.RoleStudent}
	bob     = auth.Identity{UserID: "bob", Name: "Bob", Role: auth.RoleStudent}
	mallory = auth.Identity{UserID: "mallory", Name: "Mallory", Role: auth.RoleStudent}
)

type testServer struct {
	t       *testing.T
	clock   *clockwork.FakeClock
	hub     *room.Hub
	coord   *contest.Coordinator
	authSvc *auth.Service
	cm      *ConnectionManager
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		t:       t,
		clock:   clockwork.NewFakeClock(),
		hub:     room.NewHub(),
		authSvc: auth.NewService("test-secret", time.Hour),
	}
	ts.coord = contest.NewCoordinator(contest.Config{DefaultTimeLimit: 10 * time.Second}, ts.clock, ts.hub, nil)
	t.Cleanup(func() { _ = ts.coord.Shutdown(context.Background()) })

	enroller := &fakeEnroller{coord: ts.coord, owner: owner.UserID, denied: map[string]bool{mallory.UserID: true}}
	ts.cm = NewConnectionManager(ts.hub, DefaultConnectionConfig())
	t.Cleanup(ts.cm.CloseAll)

	router := NewRouter(
		NewSessionHandler(ts.coord, enroller),
		NewWebSocketHandler(ts.cm, NewStatsSource(ts.hub, ts.coord)),
		auth.NewMiddleware(ts.authSvc),
	)
	ts.handler = NewCORS(nil).Handler(router)
	return ts
}

func (ts *testServer) token(who auth.Identity) string {
	tok, err := ts.authSvc.IssueToken(who)
	require.NoError(ts.t, err)
	return tok
}

func (ts *testServer) do(method, path string, who *auth.Identity, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+ts.token(*who))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
