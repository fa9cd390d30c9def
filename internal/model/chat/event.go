package chat

// EventType distinguishes pushed session notifications.
type EventType string

const (
	// EventTurn is published after a turn has been appended.
	EventTurn EventType = "turn"
	// EventStatus is published whenever the responding flag changes.
	EventStatus EventType = "status"
	// EventDelta carries one streamed token of an in-flight reply.
	EventDelta EventType = "delta"
)

// Event is pushed to subscribers of a session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Turn      *ChatTurn `json:"turn,omitempty"`
	Status    *Status   `json:"status,omitempty"`
	Delta     string    `json:"delta,omitempty"`
}
