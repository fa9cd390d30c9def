package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
)

func TestHubDeliversPerSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewHub(4)
	a, cancelA := h.Subscribe("a")
	b, cancelB := h.Subscribe("b")
	defer cancelA()
	defer cancelB()

	h.Publish(chat.Event{Type: chat.EventDelta, SessionID: "a", Delta: "x"})

	ev := <-a
	assert.Equal(t, "x", ev.Delta)
	assert.Empty(t, b)
}

func TestHubDropsWhenBacklogFull(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("s")
	defer cancel()

	h.Publish(chat.Event{Type: chat.EventDelta, SessionID: "s", Delta: "1"})
	h.Publish(chat.Event{Type: chat.EventDelta, SessionID: "s", Delta: "2"})

	assert.Len(t, ch, 1)
	assert.Equal(t, "1", (<-ch).Delta)
}

func TestHubCancelClosesAndForgets(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("s")
	assert.Len(t, h.subs["s"], 1)

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.NotContains(t, h.subs, "s")

	h.Publish(chat.Event{Type: chat.EventDelta, SessionID: "s", Delta: "late"})
}
