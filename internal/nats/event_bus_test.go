package nats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askatlas/navigation-assistant/internal/model"
)

func TestEventSubjectRoundTrip(t *testing.T) {
	subject := EventSubject("0192f0c1-7a4e-7b3c-9d2e-1f2a3b4c5d6e")
	assert.Equal(t, "askatlas.session.0192f0c1-7a4e-7b3c-9d2e-1f2a3b4c5d6e.events", subject)

	id, ok := SessionFromSubject(subject)
	require.True(t, ok)
	assert.Equal(t, "0192f0c1-7a4e-7b3c-9d2e-1f2a3b4c5d6e", id)

	for _, bad := range []string{"other.abc.events", "askatlas.session..events", "askatlas.session.a.b.events", "askatlas.session.abc"} {
		_, ok := SessionFromSubject(bad)
		assert.False(t, ok, bad)
	}
}

func TestDecodeEvent(t *testing.T) {
	data, err := json.Marshal(model.SessionEvent{
		Type:      model.EventMessageReplaced,
		SessionID: "s1",
		Message:   &model.Message{ID: "m1", Role: model.RoleAssistant, Content: "Turn left"},
		Index:     2,
		State:     "ready",
		ScrollTo:  2,
	})
	require.NoError(t, err)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, model.EventMessageReplaced, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "Turn left", ev.Message.Content)

	_, err = DecodeEvent([]byte(`{"type":"state_changed"}`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeMessageChecksSubject(t *testing.T) {
	data, err := json.Marshal(model.SessionEvent{Type: model.EventStateChanged, SessionID: "s1", State: "ready"})
	require.NoError(t, err)

	ev, err := decodeMessage(EventSubject("s1"), data)
	require.NoError(t, err)
	assert.Equal(t, "s1", ev.SessionID)

	_, err = decodeMessage(EventSubject("s2"), data)
	assert.Error(t, err)

	_, err = decodeMessage("askatlas.other", data)
	assert.Error(t, err)
}
