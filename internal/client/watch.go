package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Watch opens the session's websocket and returns its events. The channel is
// closed when ctx is done or the connection drops.
func (c *Client) Watch(ctx context.Context, sessionID string) (<-chan chat.Event, error) {
	wsURL, err := c.websocketURL(sessionID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("watch %s: session not found", sessionID)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	logger := log.With().Str("component", "client").Str("session", sessionID).Logger()
	events := make(chan chat.Event, 64)

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopped:
		}
	}()

	go func() {
		defer close(events)
		defer close(stopped)
		defer conn.Close()
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				logger.Debug().Err(err).Msg("watch stopped")
				return
			}
			if f.Type == "error" {
				logger.Warn().RawJSON("data", f.Data).Msg("backend reported error")
				continue
			}

			var ev chat.Event
			if err := json.Unmarshal(f.Data, &ev); err != nil {
				logger.Debug().Err(err).Msg("skipping undecodable frame")
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func (c *Client) websocketURL(sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	rawBase := strings.TrimRight(u.EscapedPath(), "/")
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + sessionID
	u.RawPath = rawBase + "/ws/" + url.PathEscape(sessionID)
	return u.String(), nil
}
