package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/model/persona"
	chatservice "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
)

// Commands understood besides plain prompts.
const (
	CommandQuit    = "/quit"
	CommandHistory = "/history"
)

const defaultGrace = 2 * time.Second

// Console renders one session in a terminal.
type Console struct {
	backend   Backend
	assistant persona.Persona
	in        io.Reader
	out       io.Writer
	sessionID string
	// grace bounds the wait for the AI turn event after Process returned.
	grace  time.Duration
	logger zerolog.Logger
}

// Option customizes a Console.
type Option func(*Console)

// WithSessionID attaches the console to an existing session.
func WithSessionID(id string) Option {
	return func(c *Console) { c.sessionID = id }
}

// WithGrace overrides how long to wait for the pushed AI turn.
func WithGrace(d time.Duration) Option {
	return func(c *Console) { c.grace = d }
}

// New creates a console reading prompts from in and writing to out.
func New(backend Backend, assistant persona.Persona, in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{
		backend:   backend,
		assistant: assistant,
		in:        in,
		out:       out,
		grace:     defaultGrace,
		logger:    log.With().Str("component", "console").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	return c
}

// SessionID returns the session the console is attached to.
func (c *Console) SessionID() string {
	return c.sessionID
}

// Run shows the transcript and serves prompts until input ends, /quit, or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	id, err := c.backend.Init(ctx, c.sessionID)
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	c.sessionID = id

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := c.backend.Watch(ctx, c.sessionID)
	if err != nil {
		return fmt.Errorf("watch session: %w", err)
	}

	if err := c.showHistory(ctx, true); err != nil {
		return err
	}

	// A prompt left pending by an earlier presentation is answered first.
	st, err := c.backend.Status(ctx, c.sessionID)
	if err != nil {
		return err
	}
	if st.IsResponding && st.PromptToProcess != nil {
		c.respond(ctx, events)
	}

	lines := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "您: ")
		if !lines.Scan() {
			fmt.Fprintln(c.out)
			return lines.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		text := strings.TrimSpace(lines.Text())
		switch text {
		case "":
			continue
		case CommandQuit:
			return nil
		case CommandHistory:
			if err := c.showHistory(ctx, false); err != nil {
				c.printError(err)
			}
			continue
		}

		st, err := c.backend.Status(ctx, c.sessionID)
		if err != nil {
			c.printError(err)
			continue
		}
		if st.IsResponding {
			fmt.Fprintln(c.out, "AI 正在生成回复，请在回复完成后再提新问题...")
			continue
		}

		if err := c.backend.AddUserMessage(ctx, c.sessionID, text); err != nil {
			if errors.Is(err, chatservice.ErrResponding) {
				fmt.Fprintln(c.out, "AI 正在生成回复，请在回复完成后再提新问题...")
				continue
			}
			c.printError(err)
			continue
		}
		c.respond(ctx, events)
	}
}

type processResult struct {
	reply string
	err   error
}

// respond processes the pending prompt and prints deltas as they are pushed.
func (c *Console) respond(ctx context.Context, events <-chan chat.Event) {
	done := make(chan processResult, 1)
	go func() {
		reply, err := c.backend.Process(ctx, c.sessionID)
		done <- processResult{reply: reply, err: err}
	}()

	fmt.Fprintf(c.out, "%s【深度思考中】", c.assistant.Name)

	var streamed strings.Builder
	var result *processResult
	var grace <-chan time.Time
	pending := done

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch {
			case ev.Type == chat.EventDelta:
				if streamed.Len() == 0 {
					fmt.Fprint(c.out, "\n")
				}
				streamed.WriteString(ev.Delta)
				fmt.Fprint(c.out, ev.Delta)
			case ev.Type == chat.EventTurn && ev.Turn != nil && ev.Turn.Sender == chat.SenderAI:
				if result == nil {
					r := <-pending
					if r.err != nil {
						c.printError(r.err)
						return
					}
				}
				c.finish(streamed.String(), ev.Turn.Message)
				return
			}
		case r := <-pending:
			if r.err != nil {
				fmt.Fprintln(c.out)
				c.printError(r.err)
				return
			}
			result = &r
			pending = nil
			grace = time.After(c.grace)
		case <-grace:
			c.logger.Debug().Str("session", c.sessionID).Msg("AI turn not pushed, using process result")
			c.finish(streamed.String(), result.reply)
			return
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return
		}
	}
}

// finish prints whatever part of the stored reply the stream did not show.
func (c *Console) finish(streamed, reply string) {
	switch {
	case streamed == reply:
		fmt.Fprintln(c.out)
	case streamed == "":
		fmt.Fprintf(c.out, "\n%s\n", reply)
	default:
		fmt.Fprintf(c.out, "\n%s: %s\n", c.assistant.Name, reply)
	}
	fmt.Fprintf(c.out, "%s思考完成啦！希望您满意！\n", c.assistant.Name)
}

func (c *Console) showHistory(ctx context.Context, greet bool) error {
	turns, err := c.backend.Conversation(ctx, c.sessionID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if len(turns) == 0 && greet {
		fmt.Fprintf(c.out, "[%s] %s: %s\n", time.Now().Format(chat.TimestampLayout), c.assistant.Name, c.assistant.OpeningLine)
		return nil
	}
	for _, t := range turns {
		fmt.Fprintf(c.out, "[%s] %s: %s\n", t.Timestamp, c.speaker(t.Sender), t.Message)
	}
	return nil
}

func (c *Console) speaker(s chat.Sender) string {
	if s == chat.SenderAI {
		return c.assistant.Name
	}
	return "您"
}

func (c *Console) printError(err error) {
	c.logger.Warn().Err(err).Str("session", c.sessionID).Msg("request failed")
	fmt.Fprintf(c.out, "处理AI响应时出错: %v\n", err)
}
