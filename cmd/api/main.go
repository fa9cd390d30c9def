package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/wenhua-ai/xiaowen/backend/internal/config"
	"github.com/wenhua-ai/xiaowen/backend/internal/handler"
	"github.com/wenhua-ai/xiaowen/backend/internal/logger"
	"github.com/wenhua-ai/xiaowen/backend/internal/model/persona"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/ai"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Setup(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	assistant, err := persona.LoadFile(cfg.Provider.PersonaFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load persona")
	}

	systemPrompt := cfg.Provider.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = ai.BuildSystemPrompt(assistant)
	}

	chatModel, err := ai.NewChatModel(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create chat model")
	}

	aiService, err := ai.NewService(ctx, chatModel, systemPrompt)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize AI service")
	}
	log.Info().Str("provider", cfg.Provider.Backend).Msg("AI service initialized successfully")

	chatService := chat.NewService()
	relayService := relay.New(chatService, aiService)

	router := handler.NewRouter(chatService, relayService, assistant, cfg.Server.AllowedOrigins)

	startServer(ctx, cfg.Server, router)
}


func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	// WriteTimeout stays unset: event streams and websockets are long-lived.
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("xiaowen backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
