package enrollment

import (
	"testing"

	"github.com/mcdev12/quizarena/go/internal/contest/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleNotification(t *testing.T) {
	env := newTestEnv(t)
	l := &Listener{app: env.app, cfg: DefaultListenerConfig()}
	key := env.quiz.ID.String()

	accepted := `{"quizId":"` + key + `","userId":"s-1","userName":"Student One","action":"accepted"}`
	require.NoError(t, l.handleNotification(t.Context(), accepted))

	view, err := env.coord.GetParticipants(t.Context(), key)
	require.NoError(t, err)
	require.Len(t, view.Participants, 1)
	assert.Equal(t, "Student One", view.Participants[0].UserName)

	// duplicate delivery is harmless
	require.NoError(t, l.handleNotification(t.Context(), accepted))
	assert.Len(t, env.pub.ofType(events.TypeParticipantJoined), 1)

	removed := `{"quizId":"` + key + `","userId":"s-1","action":"removed"}`
	require.NoError(t, l.handleNotification(t.Context(), removed))
	view, err = env.coord.GetParticipants(t.Context(), key)
	require.NoError(t, err)
	assert.Empty(t, view.Participants)
}

func TestHandleNotificationRejects(t *testing.T) {
	env := newTestEnv(t)
	l := &Listener{app: env.app, cfg: DefaultListenerConfig()}

	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "nope"},
		{name: "missing user", payload: `{"quizId":"` + env.quiz.ID.String() + `","action":"accepted"}`},
		{name: "unknown quiz", payload: `{"quizId":"7b0b6f0e-4b8e-4d4c-9a51-2f4f2b0f9d11","userId":"s-1","action":"accepted"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, l.handleNotification(t.Context(), tt.payload))
		})
	}

	assert.NoError(t, l.handleNotification(t.Context(), `{"quizId":"x","userId":"y","action":"invited"}`))
}
