// Package client talks to the relay backend over HTTP and websocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/model/persona"
	chatservice "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
)

// Client is a thin presentation-side client of the backend routes.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// process_ai_response blocks for the whole upstream stream.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// noPromptMessage is the backend's message for a session with nothing pending.
const noPromptMessage = "No prompt to process"

type processResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
	Message  string `json:"message"`
}

// Init creates the session on the backend and returns its id.
func (c *Client) Init(ctx context.Context, sessionID string) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/init_session", map[string]string{"session_id": sessionID}, &out, nil); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// Conversation fetches the full transcript.
func (c *Client) Conversation(ctx context.Context, sessionID string) ([]chat.ChatTurn, error) {
	var turns []chat.ChatTurn
	err := c.do(ctx, http.MethodGet, "/get_conversation/"+url.PathEscape(sessionID), nil, &turns, nil)
	return turns, err
}

// Status fetches the responding flag and the pending prompt.
func (c *Client) Status(ctx context.Context, sessionID string) (chat.Status, error) {
	var st chat.Status
	err := c.do(ctx, http.MethodGet, "/get_session_state/"+url.PathEscape(sessionID), nil, &st, nil)
	return st, err
}

// AddUserMessage submits a prompt.
func (c *Client) AddUserMessage(ctx context.Context, sessionID, text string) error {
	body := map[string]string{"session_id": sessionID, "content_text": text}
	return c.do(ctx, http.MethodPost, "/add_user_message", body, nil, chatservice.ErrResponding)
}

// Process asks the backend to answer the pending prompt and returns the stored reply.
func (c *Client) Process(ctx context.Context, sessionID string) (string, error) {
	var out processResponse
	if err := c.do(ctx, http.MethodPost, "/process_ai_response", map[string]string{"session_id": sessionID}, &out, chatservice.ErrAlreadyProcessing); err != nil {
		return "", err
	}
	switch {
	case out.Status == "success":
		return out.Response, nil
	case out.Message == noPromptMessage:
		return "", chatservice.ErrNoPendingPrompt
	default:
		// A failed generation is still stored as the AI turn; its text is the reply.
		return out.Message, nil
	}
}

// Persona fetches the assistant profile.
func (c *Client) Persona(ctx context.Context) (persona.Persona, error) {
	var p persona.Persona
	err := c.do(ctx, http.MethodGet, "/persona", nil, &p, nil)
	return p, err
}

// do sends a JSON request. A 404 maps to ErrSessionNotFound and a 409 to conflict.
func (c *Client) do(ctx context.Context, method, path string, body, out any, conflict error) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return chatservice.ErrSessionNotFound
	case resp.StatusCode == http.StatusConflict && conflict != nil:
		return conflict
	case resp.StatusCode != http.StatusOK:
		var e struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
