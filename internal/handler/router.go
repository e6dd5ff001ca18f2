package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/janvani/backend/internal/handler/casework"
	"github.com/zhouzirui/janvani/backend/internal/handler/chat"
	"github.com/zhouzirui/janvani/backend/internal/handler/language"
	"github.com/zhouzirui/janvani/backend/internal/handler/speech"
	middlewarePkg "github.com/zhouzirui/janvani/backend/internal/middleware"
	languageModel "github.com/zhouzirui/janvani/backend/internal/model/language"
	caseworkService "github.com/zhouzirui/janvani/backend/internal/service/casework"
	"github.com/zhouzirui/janvani/backend/internal/service/conversation"
	"github.com/zhouzirui/janvani/backend/internal/session"
	"github.com/zhouzirui/janvani/backend/pkg/utils"
)

// Deps 汇总路由需要的服务。Speech 与 Casework 为 nil 时不注册对应路由。
type Deps struct {
	Catalog        languageModel.Store
	Conversation   *conversation.Orchestrator
	Translator     chat.Translator
	Speech         speech.SpeechService
	Casework       *caseworkService.Service
	Sessions       *session.Manager
	AllowedOrigins []string
	RateLimiter    *middlewarePkg.RateLimiter
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	language.New(deps.Catalog).RegisterRoutes(r)

	r.Group(func(api chi.Router) {
		// 只对会调用上游 provider 或写存储的接口限流
		if deps.RateLimiter != nil {
			api.Use(deps.RateLimiter.Middleware)
		}

		chat.New(deps.Conversation, deps.Translator, deps.Catalog, deps.Sessions).RegisterRoutes(api)

		if deps.Speech != nil {
			speech.New(deps.Speech).RegisterRoutes(api)
			speech.NewWebSocketHandler(deps.Speech, deps.Conversation, deps.Sessions, middlewarePkg.OriginAllowed(deps.AllowedOrigins)).
				RegisterWebSocketRoutes(api)
		}

		if deps.Casework != nil {
			casework.New(deps.Casework).RegisterRoutes(api)
		}
	})

	return r
}
