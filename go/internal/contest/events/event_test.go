package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		data string
		want interface{}
	}{
		{name: "timer update", typ: TypeTimerUpdate, data: `{"remainingTime":4}`, want: &TimerUpdatePayload{RemainingTime: 4}},
		{name: "timer cancelled", typ: TypeTimerCancelled, data: `{"cancelledBy":"owner"}`, want: &TimerCancelledPayload{CancelledBy: "owner"}},
		{name: "session closed", typ: TypeSessionClosed, data: `{"closedBy":"root"}`, want: &SessionClosedPayload{ClosedBy: "root"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(&Event{Type: tt.typ, Data: json.RawMessage(tt.data)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(&Event{Type: "scoreboardUpdated", Data: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "unknown event type")

	_, err = Decode(&Event{Type: TypeTimerEnded, Data: json.RawMessage(`{`)})
	assert.Error(t, err)
}
