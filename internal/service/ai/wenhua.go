package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

// Context line prefixes understood by the provider.
const (
	systemLinePrefix    = "系统设定: "
	userLinePrefix      = "用户: "
	assistantLinePrefix = "AI: "
)

// WenhuaModel adapts the single-field {"content": ...} streaming endpoint to
// eino's chat model interface. The whole message list is flattened into one
// plain-text context per request.
type WenhuaModel struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// WenhuaOption customises a WenhuaModel.
type WenhuaOption func(*WenhuaModel)

// WithHTTPClient replaces the transport, mostly for tests.
func WithHTTPClient(c *http.Client) WenhuaOption {
	return func(m *WenhuaModel) { m.client = c }
}

// NewWenhuaModel creates a provider client. timeout bounds connecting, waiting
// for response headers and the gap between two streamed lines; the stream as a
// whole has no deadline.
func NewWenhuaModel(url string, timeout time.Duration, opts ...WenhuaOption) *WenhuaModel {
	m := &WenhuaModel{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Transport: newTransport(timeout)},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = timeout
	t.ResponseHeaderTimeout = timeout
	return t
}

var _ model.ChatModel = (*WenhuaModel)(nil)

// Generate drains Stream into a single message.
func (m *WenhuaModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	stream, err := m.Stream(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var content strings.Builder
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if msg != nil {
			content.WriteString(msg.Content)
		}
	}
	return schema.AssistantMessage(content.String(), nil), nil
}

// Stream posts the flattened context and yields one assistant message per
// content delta until the [DONE] sentinel or end of body.
func (m *WenhuaModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	payload, err := json.Marshal(map[string]string{"content": BuildContext(input)})
	if err != nil {
		return nil, fmt.Errorf("marshal provider payload: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		cancel()
		return nil, &APIError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxErrorBodyChars))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       truncateChars(string(body), maxErrorBodyChars),
		}
	}

	sr, sw := schema.Pipe[*schema.Message](16)
	go m.pump(resp.Body, sw, cancel)
	return sr, nil
}

// BindTools is not supported: the endpoint only accepts plain text.
func (m *WenhuaModel) BindTools(_ []*schema.ToolInfo) error {
	return ErrToolsUnsupported
}

func (m *WenhuaModel) pump(body io.ReadCloser, sw *schema.StreamWriter[*schema.Message], cancel context.CancelFunc) {
	defer sw.Close()
	defer cancel()
	defer body.Close()

	var idle atomic.Bool
	watchdog := time.AfterFunc(m.timeout, func() {
		idle.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	reader := bufio.NewReader(body)

	skipped := 0
	defer func() {
		if skipped > 0 {
			log.Debug().Str("component", "wenhua").Int("skipped", skipped).Msg("skipped unparsable stream lines")
		}
	}()

	for {
		// ReadString grows as needed, so a line of any length is accepted.
		raw, readErr := reader.ReadString('\n')
		if raw != "" {
			watchdog.Reset(m.timeout)

			line := strings.TrimRight(raw, "\r\n")
			delta, result := ParseLine(line)
			switch result {
			case LineDone:
				return
			case LineSkip:
				if line != "" {
					skipped++
				}
			case LineDelta:
				if delta != "" {
					if closed := sw.Send(schema.AssistantMessage(delta, nil), nil); closed {
						return
					}
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			return
		}
		if readErr != nil {
			if idle.Load() {
				readErr = fmt.Errorf("%w after %s", ErrStreamIdle, m.timeout)
			}
			sw.Send(nil, &APIError{Err: readErr})
			return
		}
	}
}

// BuildContext flattens messages into the provider's plain-text context:
// the system instruction first, then one "用户:" / "AI:" line per turn.
func BuildContext(messages []*schema.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			b.WriteString(systemLinePrefix)
		case schema.User:
			b.WriteString(userLinePrefix)
		case schema.Assistant:
			b.WriteString(assistantLinePrefix)
		default:
			continue
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}
