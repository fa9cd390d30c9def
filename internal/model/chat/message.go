package chat

// Sender identifies who produced a turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// TimestampLayout 对话气泡上显示的时间格式（时:分:秒）。
const TimestampLayout = "15:04:05"

// ChatTurn is one immutable entry of a session transcript.
type ChatTurn struct {
	Sender    Sender `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
