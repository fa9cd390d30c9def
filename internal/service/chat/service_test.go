package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
	chat "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 1, 9, 30, 15, 0, time.Local)
}

func newService() *chat.Service {
	return chat.NewService(chat.WithClock(fixedClock))
}

func TestServiceInitIsIdempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	assert.Equal(t, "s1", svc.Init(ctx, "s1"))
	require.NoError(t, svc.AddUserMessage(ctx, "s1", "你好"))

	svc.Init(ctx, "s1")

	turns, err := svc.Conversation(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	status, err := svc.Status(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, status.IsResponding)
}

func TestServiceInitGeneratesID(t *testing.T) {
	svc := newService()
	id := svc.Init(context.Background(), "")
	assert.NotEmpty(t, id)

	_, err := svc.Conversation(context.Background(), id)
	assert.NoError(t, err)
}

func TestServiceUnknownSession(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Conversation(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	_, err = svc.Status(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	assert.ErrorIs(t, svc.AddUserMessage(ctx, "missing", "hi"), chat.ErrSessionNotFound)
	assert.ErrorIs(t, svc.Complete(ctx, "missing", "hi"), chat.ErrSessionNotFound)

	_, err = svc.Claim(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	_, _, err = svc.Subscribe(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestServiceTurnLifecycle(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	svc.Init(ctx, "s1")

	require.NoError(t, svc.AddUserMessage(ctx, "s1", "你好"))

	status, err := svc.Status(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, status.IsResponding)
	require.NotNil(t, status.PromptToProcess)
	assert.Equal(t, "你好", *status.PromptToProcess)

	require.NoError(t, svc.Complete(ctx, "s1", "您好"))

	status, err = svc.Status(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, status.IsResponding)
	assert.Nil(t, status.PromptToProcess)

	turns, err := svc.Conversation(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []model.ChatTurn{
		{Sender: model.SenderUser, Message: "你好", Timestamp: "09:30:15"},
		{Sender: model.SenderAI, Message: "您好", Timestamp: "09:30:15"},
	}, turns)
}

func TestServiceAcceptsEmptyPrompt(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	svc.Init(ctx, "s1")

	require.NoError(t, svc.AddUserMessage(ctx, "s1", ""))

	pending, err := svc.Claim(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "", pending.Prompt)
}

func TestServiceRejectsPromptWhileResponding(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	svc.Init(ctx, "s1")

	require.NoError(t, svc.AddUserMessage(ctx, "s1", "first"))
	assert.ErrorIs(t, svc.AddUserMessage(ctx, "s1", "second"), chat.ErrResponding)

	turns, err := svc.Conversation(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestServiceCompleteWithoutPrompt(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	svc.Init(ctx, "s1")

	assert.ErrorIs(t, svc.Complete(ctx, "s1", "orphan"), chat.ErrNoPendingPrompt)

	turns, err := svc.Conversation(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestServiceClaimOnce(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	svc.Init(ctx, "s1")

	_, err := svc.Claim(ctx, "s1")
	assert.ErrorIs(t, err, chat.ErrNoPendingPrompt)

	require.NoError(t, svc.AddUserMessage(ctx, "s1", "行情"))

	pending, err := svc.Claim(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "行情", pending.Prompt)
	assert.Len(t, pending.Conversation, 1)

	_, err = svc.Claim(ctx, "s1")
	assert.ErrorIs(t, err, chat.ErrAlreadyProcessing)

	require.NoError(t, svc.Complete(ctx, "s1", "ok"))
	_, err = svc.Claim(ctx, "s1")
	assert.ErrorIs(t, err, chat.ErrNoPendingPrompt)
}

func TestServiceConversationIsACopy(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	svc.Init(ctx, "s1")
	require.NoError(t, svc.AddUserMessage(ctx, "s1", "原文"))

	turns, err := svc.Conversation(ctx, "s1")
	require.NoError(t, err)
	turns[0].Message = "改写"

	again, err := svc.Conversation(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "原文", again[0].Message)
}

func TestServiceAlternatingSequence(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	svc.Init(ctx, "s1")

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AddUserMessage(ctx, "s1", "q"))
		status, _ := svc.Status(ctx, "s1")
		assert.True(t, status.IsResponding)

		require.NoError(t, svc.Complete(ctx, "s1", "a"))
		status, _ = svc.Status(ctx, "s1")
		assert.False(t, status.IsResponding)
	}

	turns, err := svc.Conversation(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 10)
	for i, turn := range turns {
		if i%2 == 0 {
			assert.Equal(t, model.SenderUser, turn.Sender)
		} else {
			assert.Equal(t, model.SenderAI, turn.Sender)
		}
	}
}

func TestServiceConcurrentPromptsOnOneSession(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	svc.Init(ctx, "s1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.AddUserMessage(ctx, "s1", "race"); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	turns, err := svc.Conversation(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestServiceSubscribeReceivesEvents(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	svc.Init(ctx, "s1")

	events, cancel, err := svc.Subscribe(ctx, "s1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, svc.AddUserMessage(ctx, "s1", "你好"))
	svc.PublishDelta("s1", "您")
	svc.PublishDelta("s1", "")
	require.NoError(t, svc.Complete(ctx, "s1", "您好"))

	var got []model.EventType
	for i := 0; i < 5; i++ {
		ev := <-events
		got = append(got, ev.Type)
	}
	assert.Equal(t, []model.EventType{
		model.EventTurn, model.EventStatus, model.EventDelta, model.EventTurn, model.EventStatus,
	}, got)
}
