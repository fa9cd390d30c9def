// Package console is the line-oriented terminal presentation of the chat.
package console

import (
	"context"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
	chatservice "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/relay"
)

// Backend is what the presentation needs from the session store and relay,
// either in-process or over the network.
type Backend interface {
	Init(ctx context.Context, sessionID string) (string, error)
	Conversation(ctx context.Context, sessionID string) ([]chat.ChatTurn, error)
	Status(ctx context.Context, sessionID string) (chat.Status, error)
	AddUserMessage(ctx context.Context, sessionID, text string) error
	Process(ctx context.Context, sessionID string) (string, error)
	Watch(ctx context.Context, sessionID string) (<-chan chat.Event, error)
}

// Local drives the store and relay of the current process.
type Local struct {
	store *chatservice.Service
	relay *relay.Relay
}

// NewLocal creates an in-process backend.
func NewLocal(store *chatservice.Service, relaySvc *relay.Relay) *Local {
	return &Local{store: store, relay: relaySvc}
}

func (l *Local) Init(ctx context.Context, sessionID string) (string, error) {
	return l.store.Init(ctx, sessionID), nil
}

func (l *Local) Conversation(ctx context.Context, sessionID string) ([]chat.ChatTurn, error) {
	return l.store.Conversation(ctx, sessionID)
}

func (l *Local) Status(ctx context.Context, sessionID string) (chat.Status, error) {
	return l.store.Status(ctx, sessionID)
}

func (l *Local) AddUserMessage(ctx context.Context, sessionID, text string) error {
	return l.store.AddUserMessage(ctx, sessionID, text)
}

func (l *Local) Process(ctx context.Context, sessionID string) (string, error) {
	out, err := l.relay.Process(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// Watch subscribes to the session; the channel closes once ctx is done.
func (l *Local) Watch(ctx context.Context, sessionID string) (<-chan chat.Event, error) {
	events, cancel, err := l.store.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return events, nil
}
