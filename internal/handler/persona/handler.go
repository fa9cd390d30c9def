package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/persona"
	"github.com/wenhua-ai/xiaowen/backend/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	assistant persona.Persona
}

// New 创建persona处理器
func New(assistant persona.Persona) *Handler {
	return &Handler{assistant: assistant}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/persona", h.handleGetPersona)
}

// handleGetPersona 返回客服助手的展示信息（名称、开场白等）
func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.assistant)
}
