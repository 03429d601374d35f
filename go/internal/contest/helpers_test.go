package contest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/contest/events"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/stretchr/testify/require"
)

type published struct {
	Channel room.Channel
	Type    events.Type
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ch room.Channel, eventType events.Type, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Channel: ch, Type: eventType, Payload: payload})
}

func (p *recordingPublisher) count(eventType events.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) last(eventType events.Type) (published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == eventType {
			return p.events[i], true
		}
	}
	return published{}, false
}

type recordingHook struct {
	mu    sync.Mutex
	calls [][]Completion
}

func (h *recordingHook) SessionCompleted(completions []Completion) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, completions)
}

func (h *recordingHook) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

var (
	owner   = auth.Identity{UserID: "owner", Name: "Owner", Role: auth.RoleTeacher}
	alice   = auth.Identity{UserID: "alice", Name: "Alice", Role: auth.RoleStudent}
	bob     = auth.Identity{UserID: "bob", Name: "Bob", Role: auth.RoleStudent}
	carol   = auth.Identity{UserID: "carol", Name: "Carol", Role: auth.RoleStudent}
	admin   = auth.Identity{UserID: "root", Name: "Root", Role: auth.RoleAdmin}
	timeout = time.Second
)

type fixture struct {
	clock *clockwork.FakeClock
	pub   *recordingPublisher
	hook  *recordingHook
	coord *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock: clockwork.NewFakeClock(),
		pub:   &recordingPublisher{},
		hook:  &recordingHook{},
	}
	f.coord = NewCoordinator(Config{DefaultTimeLimit: 10 * time.Second}, f.clock, f.pub, f.hook)
	t.Cleanup(func() {
		_ = f.coord.Shutdown(context.Background())
	})
	return f
}

// register adds participants to a session owned by owner
func (f *fixture) register(t *testing.T, key string, limit time.Duration, who ...auth.Identity) {
	t.Helper()
	for _, id := range who {
		_, _, err := f.coord.Register(t.Context(), Registration{SessionKey: key, OwnerID: owner.UserID, TimeLimit: limit}, id)
		require.NoError(t, err)
	}
}

// tick advances the clock by one interval and waits until the driver has
// published the expected number of timerUpdate events
func (f *fixture) tick(t *testing.T, wantUpdates int) {
	t.Helper()
	f.clock.Advance(DefaultTickInterval)
	require.Eventually(t, func() bool {
		return f.pub.count(events.TypeTimerUpdate) >= wantUpdates
	}, timeout, time.Millisecond)
}
