package ai

import (
	"context"

	"github.com/cloudwego/eino/components/model"

	"github.com/wenhua-ai/xiaowen/backend/internal/config"
)

// NewChatModel selects the upstream model for the configured provider.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ChatModel, error) {
	if cfg.Provider.Backend == config.ProviderArk {
		return cfg.AI.NewChatModel(ctx)
	}
	return NewWenhuaModel(cfg.Provider.URL, cfg.Provider.Timeout), nil
}
