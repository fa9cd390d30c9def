package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wenhua-ai/xiaowen/backend/internal/handler/chat"
	personaHandler "github.com/wenhua-ai/xiaowen/backend/internal/handler/persona"
	"github.com/wenhua-ai/xiaowen/backend/internal/handler/stream"
	middlewarePkg "github.com/wenhua-ai/xiaowen/backend/internal/middleware"
	"github.com/wenhua-ai/xiaowen/backend/internal/model/persona"
	chatService "github.com/wenhua-ai/xiaowen/backend/internal/service/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/service/relay"
	"github.com/wenhua-ai/xiaowen/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, relaySvc *relay.Relay, assistant persona.Persona, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// 会话接口保持原有路径，前端无需改动
	chat.New(chatSvc, relaySvc).RegisterRoutes(r)
	personaHandler.New(assistant).RegisterRoutes(r)

	// 推送通道
	stream.New(chatSvc).RegisterRoutes(r)
	stream.NewWebSocketHandler(chatSvc, relaySvc).RegisterRoutes(r)

	return r
}
