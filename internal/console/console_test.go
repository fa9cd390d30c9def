package console

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenhua-ai/xiaowen/backend/internal/client"
	"github.com/wenhua-ai/xiaowen/backend/internal/handler"
	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/model/persona"
	chatservice "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/relay"
)

type scriptedReplier struct {
	chunks []string
	err    error
}

func (s scriptedReplier) StreamReply(context.Context, []chat.ChatTurn) (*schema.StreamReader[*schema.Message], error) {
	if s.err != nil {
		return nil, s.err
	}
	msgs := make([]*schema.Message, 0, len(s.chunks))
	for _, c := range s.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func newLocal(r relay.Replier) (*Local, *chatservice.Service) {
	store := chatservice.NewService()
	return NewLocal(store, relay.New(store, r)), store
}

func runConsole(t *testing.T, backend Backend, input string, opts ...Option) (string, *Console) {
	t.Helper()
	var out bytes.Buffer
	c := New(backend, persona.Default(), strings.NewReader(input), &out, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))
	return out.String(), c
}

func TestConsoleGreetsAndStreamsReply(t *testing.T) {
	backend, store := newLocal(scriptedReplier{chunks: []string{"您好，", "请讲"}})

	out, c := runConsole(t, backend, "你好\n/quit\n")

	assert.Contains(t, out, persona.Default().OpeningLine)
	assert.Contains(t, out, "您好，请讲")
	assert.Contains(t, out, "小文思考完成啦！希望您满意！")

	turns, err := store.Conversation(context.Background(), c.SessionID())
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "您好，请讲", turns[1].Message)
}

func TestConsoleShowsErrorTurn(t *testing.T) {
	backend, _ := newLocal(scriptedReplier{err: errors.New("boom")})

	out, _ := runConsole(t, backend, "你好\n")

	assert.Contains(t, out, relay.ErrorReplyPrefix+"boom")
}

func TestConsoleShowsErrorTurnThroughBackend(t *testing.T) {
	store := chatservice.NewService()
	router := handler.NewRouter(store, relay.New(store, scriptedReplier{err: errors.New("boom")}), persona.Default(), []string{"*"})
	srv := httptest.NewServer(router)
	defer srv.Close()

	out, _ := runConsole(t, client.New(srv.URL), "你好\n")

	assert.Contains(t, out, relay.ErrorReplyPrefix+"boom")
	assert.Contains(t, out, "小文思考完成啦！希望您满意！")
	assert.NotContains(t, out, "处理AI响应时出错")
}

func TestConsoleResumesPendingPrompt(t *testing.T) {
	backend, store := newLocal(scriptedReplier{chunks: []string{"补上回复"}})
	ctx := context.Background()
	store.Init(ctx, "s1")
	require.NoError(t, store.AddUserMessage(ctx, "s1", "之前的问题"))

	out, _ := runConsole(t, backend, "", WithSessionID("s1"))

	assert.Contains(t, out, "之前的问题")
	assert.Contains(t, out, "补上回复")
	assert.NotContains(t, out, persona.Default().OpeningLine)

	st, err := store.Status(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, st.IsResponding)
}

func TestConsoleHistoryCommand(t *testing.T) {
	backend, _ := newLocal(scriptedReplier{chunks: []string{"好的"}})

	out, _ := runConsole(t, backend, "问题\n/history\n")

	assert.Contains(t, out, "您: 问题")
	assert.Contains(t, out, "小文: 好的")
}

// stubBackend never pushes events and reports a fixed status.
type stubBackend struct {
	responding bool
	reply      string
	added      []string
}

func (s *stubBackend) Init(_ context.Context, id string) (string, error) { return id, nil }
func (s *stubBackend) Conversation(context.Context, string) ([]chat.ChatTurn, error) {
	return nil, nil
}
func (s *stubBackend) Status(context.Context, string) (chat.Status, error) {
	return chat.Status{IsResponding: s.responding}, nil
}
func (s *stubBackend) AddUserMessage(_ context.Context, _ string, text string) error {
	s.added = append(s.added, text)
	return nil
}
func (s *stubBackend) Process(context.Context, string) (string, error) { return s.reply, nil }
func (s *stubBackend) Watch(context.Context, string) (<-chan chat.Event, error) {
	return make(chan chat.Event), nil
}

func TestConsoleRefusesInputWhileResponding(t *testing.T) {
	backend := &stubBackend{responding: true}

	out, _ := runConsole(t, backend, "插话\n")

	assert.Contains(t, out, "AI 正在生成回复")
	assert.Empty(t, backend.added)
}

func TestConsoleFallsBackToProcessResult(t *testing.T) {
	backend := &stubBackend{reply: "直接结果"}

	out, _ := runConsole(t, backend, "你好\n", WithGrace(10*time.Millisecond))

	assert.Equal(t, []string{"你好"}, backend.added)
	assert.Contains(t, out, "直接结果")
}
