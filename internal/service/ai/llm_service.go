package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
)

// Service turns a transcript into a streamed reply through the configured chat model.
type Service struct {
	system string
	chain  compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the system-prompt + history chain in front of chatModel.
func NewService(ctx context.Context, chatModel model.ChatModel, systemPrompt string) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		system: systemPrompt,
		chain:  runnable,
	}, nil
}

// StreamReply streams the answer to the last user turn of turns.
func (s *Service) StreamReply(ctx context.Context, turns []chat.ChatTurn) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, s.buildChainInput(turns))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

func (s *Service) buildChainInput(turns []chat.ChatTurn) map[string]any {
	return map[string]any{
		"system":  s.system,
		"history": buildHistoryMessages(turns),
	}
}
