package contest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/contest/events"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuorumStartsTimerAndExpires(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "Q1", 10*time.Second, alice, bob)

	snap, err := f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)
	assert.False(t, snap.AllReady)
	assert.Zero(t, f.pub.count(events.TypeTimerStarted))

	snap, err = f.coord.MarkReady(ctx, "Q1", bob)
	require.NoError(t, err)
	assert.True(t, snap.AllReady)

	e, ok := f.pub.last(events.TypeTimerStarted)
	require.True(t, ok)
	assert.Equal(t, room.SessionChannel("Q1"), e.Channel)
	started := e.Payload.(events.TimerStartedPayload)
	assert.Equal(t, 10*time.Second, started.EndTime.Sub(started.StartTime))
	assert.Equal(t, 10, started.TimeLimit)

	for i := 1; i <= 10; i++ {
		f.tick(t, i)
	}
	require.Eventually(t, func() bool {
		return f.pub.count(events.TypeTimerEnded) == 1
	}, timeout, time.Millisecond)

	status, err := f.coord.GetTimerStatus(ctx, "Q1")
	require.NoError(t, err)
	assert.False(t, status.TimerActive)
	assert.Nil(t, status.TimerData)

	assert.Equal(t, []events.Type{
		events.TypeParticipantJoined,
		events.TypeParticipantJoined,
		events.TypeParticipantReady,
		events.TypeParticipantReady,
		events.TypeTimerStarted,
	}, f.pub.types()[:5])
}

func TestUnauthorizedCancelKeepsTimerRunning(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "Q1", 10*time.Second, alice, bob)

	_, err := f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)
	_, err = f.coord.MarkReady(ctx, "Q1", bob)
	require.NoError(t, err)

	err = f.coord.CancelTimer(ctx, "Q1", alice)
	assert.ErrorIs(t, err, ErrUnauthorized)

	status, err := f.coord.GetTimerStatus(ctx, "Q1")
	require.NoError(t, err)
	assert.True(t, status.TimerActive)

	f.tick(t, 1)
	e, _ := f.pub.last(events.TypeTimerUpdate)
	assert.Equal(t, 9, e.Payload.(events.TimerUpdatePayload).RemainingTime)
	assert.Zero(t, f.pub.count(events.TypeTimerCancelled))
}

func TestMarkReadyNotAParticipant(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Q1", 0, alice)

	_, err := f.coord.MarkReady(t.Context(), "Q1", carol)
	assert.ErrorIs(t, err, ErrNotAParticipant)

	_, err = f.coord.MarkReady(t.Context(), "nope", alice)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLateJoinerDoesNotRestartTimer(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "Q1", 0, alice, bob)

	_, err := f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)
	_, err = f.coord.MarkReady(ctx, "Q1", bob)
	require.NoError(t, err)

	before, err := f.coord.GetTimerStatus(ctx, "Q1")
	require.NoError(t, err)
	require.True(t, before.TimerActive)

	f.tick(t, 1)

	snap, joined, err := f.coord.Register(ctx, Registration{SessionKey: "Q1"}, carol)
	require.NoError(t, err)
	assert.True(t, joined)
	assert.False(t, snap.AllReady)

	snap, err = f.coord.MarkReady(ctx, "Q1", carol)
	require.NoError(t, err)
	assert.True(t, snap.AllReady)

	after, err := f.coord.GetTimerStatus(ctx, "Q1")
	require.NoError(t, err)
	require.True(t, after.TimerActive)
	assert.Equal(t, before.TimerData.EndTime, after.TimerData.EndTime)
	assert.Equal(t, 1, f.pub.count(events.TypeTimerStarted))
}

func TestMarkNotReadyKeepsTimer(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "Q1", 0, alice)

	_, err := f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)

	snap, err := f.coord.MarkNotReady(ctx, "Q1", alice)
	require.NoError(t, err)
	assert.False(t, snap.AllReady)

	status, err := f.coord.GetTimerStatus(ctx, "Q1")
	require.NoError(t, err)
	assert.True(t, status.TimerActive)
}

func TestLeaveCanCompleteQuorum(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "Q1", 0, alice, bob)

	_, err := f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)

	snap, err := f.coord.Leave(ctx, "Q1", bob)
	require.NoError(t, err)
	assert.True(t, snap.AllReady)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, alice.UserID, snap.Participants[0].UserID)

	assert.Equal(t, 1, f.pub.count(events.TypeParticipantLeft))
	assert.Equal(t, 1, f.pub.count(events.TypeTimerStarted))

	_, err = f.coord.Leave(ctx, "Q1", bob)
	assert.ErrorIs(t, err, ErrNotAParticipant)
}

func TestLastParticipantLeaving(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Q1", 0, alice)

	snap, err := f.coord.Leave(t.Context(), "Q1", alice)
	require.NoError(t, err)
	assert.False(t, snap.AllReady)
	assert.Zero(t, f.pub.count(events.TypeTimerStarted))
}

func TestRegisterTwice(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	_, joined, err := f.coord.Register(ctx, Registration{SessionKey: "Q1", OwnerID: owner.UserID}, alice)
	require.NoError(t, err)
	assert.True(t, joined)

	renamed := alice
	renamed.Name = "Alice L."
	snap, joined, err := f.coord.Register(ctx, Registration{SessionKey: "Q1"}, renamed)
	require.NoError(t, err)
	assert.False(t, joined)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "Alice L.", snap.Participants[0].UserName)
	assert.Equal(t, 1, f.pub.count(events.TypeParticipantJoined))

	_, _, err = f.coord.Register(ctx, Registration{}, alice)
	assert.Error(t, err)
}

func TestSessionTimeLimitDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "Q1", 0, alice)

	_, err := f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)

	view, err := f.coord.GetParticipants(ctx, "Q1")
	require.NoError(t, err)
	require.NotNil(t, view.Timer)
	assert.Equal(t, 10, view.Timer.TimeLimit)
	assert.Equal(t, 10, view.Timer.Remaining)
	assert.True(t, view.AllReady)
}

func TestCloseSession(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "Q1", 0, alice, bob)

	_, err := f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)
	_, err = f.coord.MarkReady(ctx, "Q1", bob)
	require.NoError(t, err)

	assert.ErrorIs(t, f.coord.CloseSession(ctx, "Q1", alice), ErrUnauthorized)
	require.NoError(t, f.coord.CloseSession(ctx, "Q1", owner))

	e, ok := f.pub.last(events.TypeSessionClosed)
	require.True(t, ok)
	assert.Equal(t, owner.UserID, e.Payload.(events.SessionClosedPayload).ClosedBy)

	_, err = f.coord.GetParticipants(ctx, "Q1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.coord.CloseSession(ctx, "Q1", owner), ErrSessionNotFound)

	f.clock.Advance(DefaultTickInterval)
	assert.Never(t, func() bool {
		return f.pub.count(events.TypeTimerUpdate) > 0
	}, 20*time.Millisecond, time.Millisecond)

	// the key can be reused
	snap, joined, err := f.coord.Register(ctx, Registration{SessionKey: "Q1"}, alice)
	require.NoError(t, err)
	assert.True(t, joined)
	assert.Len(t, snap.Participants, 1)
	assert.False(t, snap.Participants[0].Ready)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Q1", 0, alice, bob)
	f.register(t, "Q2", 0, carol)

	_, err := f.coord.MarkReady(t.Context(), "Q2", carol)
	require.NoError(t, err)

	assert.Equal(t, Stats{Sessions: 2, RunningTimers: 1, Participants: 3}, f.coord.Stats())
}

func TestEndedSessionIsNotRestarted(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "Q1", 10*time.Second, alice, bob, carol)

	for _, who := range []auth.Identity{alice, bob, carol} {
		_, err := f.coord.MarkReady(ctx, "Q1", who)
		require.NoError(t, err)
	}
	for i := 1; i <= 10; i++ {
		f.tick(t, i)
	}
	require.Eventually(t, func() bool {
		return f.pub.count(events.TypeTimerEnded) == 1
	}, timeout, time.Millisecond)

	// everybody left is still ready, but the quiz already finished
	snap, err := f.coord.Leave(ctx, "Q1", carol)
	require.NoError(t, err)
	assert.True(t, snap.AllReady)

	_, err = f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)

	status, err := f.coord.GetTimerStatus(ctx, "Q1")
	require.NoError(t, err)
	assert.False(t, status.TimerActive)
	assert.Equal(t, 1, f.pub.count(events.TypeTimerStarted))
	assert.Equal(t, 1, f.pub.count(events.TypeTimerEnded))

	view, err := f.coord.GetParticipants(ctx, "Q1")
	require.NoError(t, err)
	assert.True(t, view.Ended)
	assert.Nil(t, view.Timer)
}

func TestCancelledSessionCanRestart(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "Q1", 10*time.Second, alice)

	_, err := f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)
	require.NoError(t, f.coord.CancelTimer(ctx, "Q1", owner))

	_, err = f.coord.MarkNotReady(ctx, "Q1", alice)
	require.NoError(t, err)
	_, err = f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)

	assert.Equal(t, 2, f.pub.count(events.TypeTimerStarted))
	view, err := f.coord.GetParticipants(ctx, "Q1")
	require.NoError(t, err)
	assert.False(t, view.Ended)
	assert.NotNil(t, view.Timer)
}

func TestOperationsAfterShutdownLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "Q1", 10*time.Second, alice, bob)

	_, err := f.coord.MarkReady(ctx, "Q1", alice)
	require.NoError(t, err)
	require.NoError(t, f.coord.Shutdown(context.Background()))

	_, err = f.coord.MarkReady(ctx, "Q1", bob)
	require.ErrorIs(t, err, ErrSchedulerStopped)
	_, err = f.coord.Leave(ctx, "Q1", bob)
	require.ErrorIs(t, err, ErrSchedulerStopped)

	view, err := f.coord.GetParticipants(ctx, "Q1")
	require.NoError(t, err)
	require.Len(t, view.Participants, 2)
	for _, p := range view.Participants {
		if p.UserID == bob.UserID {
			assert.False(t, p.Ready)
		}
	}
	assert.Equal(t, 1, f.pub.count(events.TypeParticipantReady))
	assert.Zero(t, f.pub.count(events.TypeParticipantLeft))
	assert.Zero(t, f.pub.count(events.TypeTimerStarted))
}

func TestConcurrentLastReadyStartsOneTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const rounds = 50

	for i := 0; i < rounds; i++ {
		key := fmt.Sprintf("race-%d", i)
		f.register(t, key, 10*time.Second, alice, bob)

		var (
			wg       sync.WaitGroup
			gate     = make(chan struct{})
			mu       sync.Mutex
			allReady int
		)
		for _, who := range []auth.Identity{alice, bob} {
			wg.Add(1)
			go func(who auth.Identity) {
				defer wg.Done()
				<-gate
				snap, err := f.coord.MarkReady(ctx, key, who)
				if !assert.NoError(t, err) {
					return
				}
				if snap.AllReady {
					mu.Lock()
					allReady++
					mu.Unlock()
				}
			}(who)
		}
		close(gate)
		wg.Wait()

		assert.GreaterOrEqual(t, allReady, 1, key)
		status, err := f.coord.GetTimerStatus(ctx, key)
		require.NoError(t, err)
		assert.True(t, status.TimerActive, key)
	}

	assert.Equal(t, rounds, f.pub.count(events.TypeTimerStarted))
}
