package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
	chatservice "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/relay"
)

type echoReplier struct{}

func (echoReplier) StreamReply(_ context.Context, turns []chat.ChatTurn) (*schema.StreamReader[*schema.Message], error) {
	last := turns[len(turns)-1].Message
	return schema.StreamReaderFromArray([]*schema.Message{
		schema.AssistantMessage("收到", nil),
		schema.AssistantMessage(last, nil),
	}), nil
}

func newWSServer(t *testing.T) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	chatSvc := chatservice.NewService()
	r := chi.NewRouter()
	NewWebSocketHandler(chatSvc, relay.New(chatSvc, echoReplier{})).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, chatSvc
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readFrame(t *testing.T, conn *websocket.Conn) (OutgoingMessage, chat.Event) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg OutgoingMessage
	require.NoError(t, conn.ReadJSON(&msg))

	var ev chat.Event
	if msg.Type != TypeError {
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
	}
	return msg, ev
}

func TestWebSocketUnknownSession(t *testing.T) {
	srv, _ := newWSServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/missing"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketMessageRoundTrip(t *testing.T) {
	srv, chatSvc := newWSServer(t)
	chatSvc.Init(context.Background(), "s1")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/s1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	msg, ev := readFrame(t, conn)
	assert.Equal(t, string(chat.EventStatus), msg.Type)
	assert.False(t, ev.Status.IsResponding)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: TypeMessage, Text: "你好"}))

	var deltas []string
	for {
		msg, ev = readFrame(t, conn)
		if ev.Type == chat.EventDelta {
			deltas = append(deltas, ev.Delta)
		}
		if ev.Type == chat.EventTurn && ev.Turn.Sender == chat.SenderAI {
			assert.Equal(t, "收到你好", ev.Turn.Message)
			break
		}
	}
	assert.Equal(t, []string{"收到", "你好"}, deltas)

	turns, err := chatSvc.Conversation(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestWebSocketUnsupportedType(t *testing.T) {
	srv, chatSvc := newWSServer(t)
	chatSvc.Init(context.Background(), "s1")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/s1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame(t, conn)
	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "audio"}))

	msg, _ := readFrame(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, string(msg.Data), "unsupported message type")
}

func TestWebSocketRejectsSecondPromptWhileResponding(t *testing.T) {
	srv, chatSvc := newWSServer(t)
	ctx := context.Background()
	chatSvc.Init(ctx, "s1")
	require.NoError(t, chatSvc.AddUserMessage(ctx, "s1", "pending"))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/s1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, ev := readFrame(t, conn)
	assert.True(t, ev.Status.IsResponding)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: TypeMessage, Text: "again"}))
	msg, _ := readFrame(t, conn)
	assert.Equal(t, TypeError, msg.Type)
}
