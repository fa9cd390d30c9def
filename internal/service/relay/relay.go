package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/ai"
	chatservice "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
)

// ErrorReplyPrefix starts every AI turn that reports a failed generation.
const ErrorReplyPrefix = "抱歉，发生错误: "

// Store is the part of the session store the relay drives.
type Store interface {
	Claim(ctx context.Context, sessionID string) (chatservice.Pending, error)
	Complete(ctx context.Context, sessionID, message string) error
	PublishDelta(sessionID, delta string)
}

// Replier streams a reply for a transcript.
type Replier interface {
	StreamReply(ctx context.Context, turns []chat.ChatTurn) (*schema.StreamReader[*schema.Message], error)
}

// Outcome is the AI turn produced for a processed prompt.
type Outcome struct {
	Reply  string
	Failed bool
}

// Relay turns a session's pending prompt into exactly one AI turn.
type Relay struct {
	store   Store
	replier Replier
}

// New creates a relay.
func New(store Store, replier Replier) *Relay {
	return &Relay{store: store, replier: replier}
}

// Process answers the pending prompt of sessionID. Generation failures are
// stored as an error turn and reported through Outcome.Failed, never as err;
// err is reserved for an unknown session or a prompt that cannot be claimed.
//
// The upstream call ignores cancellation of ctx: once issued it runs to
// completion, the sentinel or the provider timeout.
func (r *Relay) Process(ctx context.Context, sessionID string) (Outcome, error) {
	pending, err := r.store.Claim(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}

	ctx = context.WithoutCancel(ctx)
	logger := log.With().Str("component", "relay").Str("session", sessionID).Logger()

	var out Outcome
	reply, genErr := r.generate(ctx, sessionID, pending.Conversation)
	if genErr != nil {
		logger.Warn().Err(genErr).Msg("generation failed, storing error reply")
		out = Outcome{Reply: ErrorReplyPrefix + errorDetail(genErr), Failed: true}
	} else {
		out = Outcome{Reply: reply}
	}

	if err := r.store.Complete(ctx, sessionID, out.Reply); err != nil {
		return out, fmt.Errorf("complete session %s: %w", sessionID, err)
	}

	logger.Info().Bool("failed", out.Failed).Int("length", len([]rune(out.Reply))).Msg("response completed")
	return out, nil
}

func (r *Relay) generate(ctx context.Context, sessionID string, turns []chat.ChatTurn) (reply string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("internal error: %v", rec)
		}
	}()

	stream, err := r.replier.StreamReply(ctx, turns)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 32)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		r.store.PublishDelta(sessionID, chunk.Content)
	}

	if len(chunks) == 0 {
		return "", nil
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("concat streamed chunks: %w", err)
	}
	return response.Content, nil
}

// errorDetail prefers the provider error text over any wrapping added on the way up.
func errorDetail(err error) string {
	var apiErr *ai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}
