package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	chatService "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/relay"
	"github.com/wenhua-ai/xiaowen/backend/pkg/utils"
)

// Handler 会话存储与回复中继的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	relay   *relay.Relay
}

// New 创建会话处理器
func New(chatSvc *chatService.Service, relaySvc *relay.Relay) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		relay:   relaySvc,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/init_session", h.handleInitSession)
	r.Get("/get_conversation/{sessionID}", h.handleGetConversation)
	r.Get("/get_session_state/{sessionID}", h.handleGetSessionState)
	r.Post("/add_user_message", h.handleAddUserMessage)
	r.Post("/process_ai_response", h.handleProcessAIResponse)
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type messageRequest struct {
	SessionID   string  `json:"session_id"`
	ContentText *string `json:"content_text"`
}

// handleInitSession 初始化会话，重复调用不会清空已有记录
func (h *Handler) handleInitSession(w http.ResponseWriter, r *http.Request) {
	var payload sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := h.chatSvc.Init(r.Context(), payload.SessionID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":     "success",
		"session_id": sessionID,
	})
}

// handleGetConversation 返回完整对话记录
func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	turns, err := h.chatSvc.Conversation(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, turns)
}

// handleGetSessionState 返回是否正在回复以及待处理的问题
func (h *Handler) handleGetSessionState(w http.ResponseWriter, r *http.Request) {
	status, err := h.chatSvc.Status(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, status)
}

// handleAddUserMessage 追加用户消息并进入回复中状态
func (h *Handler) handleAddUserMessage(w http.ResponseWriter, r *http.Request) {
	var payload messageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ContentText == nil {
		utils.RespondError(w, http.StatusBadRequest, "content_text is required")
		return
	}

	if err := h.chatSvc.AddUserMessage(r.Context(), payload.SessionID, *payload.ContentText); err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleProcessAIResponse 调用上游接口生成回复，失败时同样写入一条AI消息
func (h *Handler) handleProcessAIResponse(w http.ResponseWriter, r *http.Request) {
	var payload sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.relay.Process(r.Context(), payload.SessionID)
	switch {
	case errors.Is(err, chatService.ErrNoPendingPrompt):
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "No prompt to process"})
		return
	case err != nil:
		respondServiceError(w, err)
		return
	}

	if out.Failed {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "error", "message": out.Reply})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "success", "response": out.Reply})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, chatService.ErrResponding), errors.Is(err, chatService.ErrAlreadyProcessing):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Str("component", "handler").Err(err).Msg("unexpected session error")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
