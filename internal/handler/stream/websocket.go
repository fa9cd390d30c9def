package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
	chatService "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/relay"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Message types of the websocket protocol.
const (
	TypeMessage = "message"
	TypeError   = "error"
)

// WebSocketHandler WebSocket推送处理器：下行推送会话事件，上行接收用户消息
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	relay    *relay.Relay
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatService.Service, relaySvc *relay.Relay) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		relay:   relaySvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

// InboundMessage is a frame sent by the presentation.
type InboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// OutgoingMessage wraps every frame pushed to the presentation.
type OutgoingMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func newOutgoing(typ, sessionID string, data any) OutgoingMessage {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = nil
	}
	return OutgoingMessage{Type: typ, SessionID: sessionID, Data: raw, Timestamp: time.Now().Unix()}
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	events, unsubscribe, err := h.chatSvc.Subscribe(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer unsubscribe()

	status, err := h.chatSvc.Status(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("component", "websocket").Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("component", "websocket").Str("session", sessionID).Logger()
	logger.Debug().Msg("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	out := make(chan OutgoingMessage, 16)
	writerDone := make(chan struct{})
	go h.writeLoop(ctx, conn, events, out, writerDone, logger)
	defer func() {
		cancel()
		<-writerDone
		logger.Debug().Msg("connection closed")
	}()

	initial := chat.Event{Type: chat.EventStatus, SessionID: sessionID, Status: &status}
	enqueue(ctx, out, newOutgoing(string(initial.Type), sessionID, initial))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		h.handleMessage(ctx, sessionID, msg, out, logger)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, sessionID string, msg InboundMessage, out chan<- OutgoingMessage, logger zerolog.Logger) {
	switch msg.Type {
	case TypeMessage:
		if err := h.chatSvc.AddUserMessage(ctx, sessionID, msg.Text); err != nil {
			enqueue(ctx, out, newOutgoing(TypeError, sessionID, map[string]string{"message": err.Error()}))
			return
		}
		// The reply arrives through the event subscription; processing outlives the socket.
		go func() {
			if _, err := h.relay.Process(context.WithoutCancel(ctx), sessionID); err != nil {
				logger.Warn().Err(err).Msg("process failed")
				enqueue(ctx, out, newOutgoing(TypeError, sessionID, map[string]string{"message": err.Error()}))
			}
		}()
	default:
		enqueue(ctx, out, newOutgoing(TypeError, sessionID, map[string]string{"message": "unsupported message type: " + msg.Type}))
	}
}

// writeLoop is the only goroutine writing to conn. Closing conn on exit
// unblocks the reader after a failed write.
func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan chat.Event, out <-chan OutgoingMessage, done chan<- struct{}, logger zerolog.Logger) {
	defer close(done)
	defer conn.Close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(msg OutgoingMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug().Err(err).Msg("write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !write(newOutgoing(string(ev.Type), ev.SessionID, ev)) {
				return
			}
		case msg := <-out:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func enqueue(ctx context.Context, out chan<- OutgoingMessage, msg OutgoingMessage) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}
