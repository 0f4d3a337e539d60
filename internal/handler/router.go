package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/pac-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/handler/idea"
	"github.com/zhouzirui/pac-chat/backend/internal/handler/session"
	"github.com/zhouzirui/pac-chat/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/pac-chat/backend/internal/middleware"
	ideaModel "github.com/zhouzirui/pac-chat/backend/internal/model/idea"
	chatService "github.com/zhouzirui/pac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pac-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(manager *chatService.Manager, resolver chatService.Resolver, ideas ideaModel.Store, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))
	r.Use(middlewarePkg.Identity)

	// Create handlers
	chatHandler := chat.New(manager, resolver)
	sessionHandler := session.New(manager)
	streamHandler := stream.New(manager)
	ideaHandler := idea.New(ideas)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		ideaHandler.RegisterRoutes(api)
	})

	return r
}
