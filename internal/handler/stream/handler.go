package stream

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
	chatService "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
	"github.com/wenhua-ai/xiaowen/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler pushes session events to the presentation via Server-Sent Events,
// replacing status polling.
type Handler struct {
	chatSvc   *chatService.Service
	heartbeat time.Duration
}

// New creates a new stream handler
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc, heartbeat: heartbeatInterval}
}

// RegisterRoutes 注册事件推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events/{sessionID}", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	events, unsubscribe, err := h.chatSvc.Subscribe(ctx, sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unsubscribe()

	status, err := h.chatSvc.Status(ctx, sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := log.With().Str("component", "sse").Str("session", sessionID).Logger()
	logger.Debug().Msg("event stream opened")
	defer logger.Debug().Msg("event stream closed")

	initial := chat.Event{Type: chat.EventStatus, SessionID: sessionID, Status: &status}
	if err := utils.SendSSEEvent(w, flusher, string(initial.Type), initial); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
