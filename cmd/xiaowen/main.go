package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wenhua-ai/xiaowen/backend/internal/client"
	"github.com/wenhua-ai/xiaowen/backend/internal/config"
	"github.com/wenhua-ai/xiaowen/backend/internal/console"
	"github.com/wenhua-ai/xiaowen/backend/internal/logger"
	"github.com/wenhua-ai/xiaowen/backend/internal/model/persona"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/ai"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/relay"
)

var (
	sessionID  string
	backendURL string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "xiaowen",
	Short: "文华财经AI智能客服助手 terminal client",
	Long: `Chat with the 小文 customer-service assistant from a terminal.

Available subcommands:
  chat   - run the session store and relay in this process
  client - connect to a running backend (cmd/api)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		} else if level == "info" {
			// Relay logs would interleave with the transcript.
			level = "warn"
		}
		logger.Setup(logger.Config{Level: level, Pretty: true, Out: os.Stderr})
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in single-process mode",
	RunE:  runChat,
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Chat through a running backend",
	RunE:  runClient,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "Session id to attach to (default: new session)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	clientCmd.Flags().StringVar(&backendURL, "backend", "", "Backend URL (or set BACKEND_URL env)")

	rootCmd.AddCommand(chatCmd, clientCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assistant, err := persona.LoadFile(cfg.Provider.PersonaFile)
	if err != nil {
		return err
	}

	systemPrompt := cfg.Provider.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = ai.BuildSystemPrompt(assistant)
	}

	chatModel, err := ai.NewChatModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create chat model: %w", err)
	}
	aiService, err := ai.NewService(ctx, chatModel, systemPrompt)
	if err != nil {
		return fmt.Errorf("initialize AI service: %w", err)
	}

	store := chat.NewService()
	backend := console.NewLocal(store, relay.New(store, aiService))

	return runConsole(ctx, cmd, backend, assistant)
}

func runClient(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := backendURL
	if url == "" {
		url = cfg.Client.BackendURL
	}
	c := client.New(url)

	assistant, err := c.Persona(ctx)
	if err != nil {
		log.Warn().Err(err).Str("backend", url).Msg("persona unavailable, using built-in profile")
		assistant = persona.Default()
	}

	return runConsole(ctx, cmd, c, assistant)
}

func runConsole(ctx context.Context, cmd *cobra.Command, backend console.Backend, assistant persona.Persona) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "文华财经AI智能客服助手")
	fmt.Fprintf(out, "输入 %s 查看对话记录，%s 退出\n", console.CommandHistory, console.CommandQuit)

	con := console.New(backend, assistant, cmd.InOrStdin(), out, console.WithSessionID(sessionID))
	err := con.Run(ctx)
	log.Debug().Str("session", con.SessionID()).Msg("console closed")
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
