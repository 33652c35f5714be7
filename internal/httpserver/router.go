package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"chatcore/internal/config"
	"chatcore/internal/security"
	"chatcore/internal/service"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config        *config.Config
	Log           zerolog.Logger
	Verifier      security.Verifier
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Users         *service.UserService
	// Realtime serves the WebSocket endpoint; Events re-emits REST changes to it.
	Realtime http.Handler
	Events   Emitter
	// Uploads serves locally stored attachments. Nil when blobs live elsewhere.
	Uploads http.Handler
	// Health reports readiness of the backing stores.
	Health func(ctx context.Context) error
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(d.Log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": d.Config.AppName + " messaging API",
			"version": "1.0.0",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health(r.Context()); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "healthy"})
	})

	r.Handle("/metrics", promhttp.Handler())

	if d.Uploads != nil {
		r.Handle("/uploads/*", http.StripPrefix("/uploads", d.Uploads))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(AuthMiddleware(d.Verifier, d.Users))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", handleCreateConversation(d.Conversations))
			r.Get("/", handleListConversations(d.Conversations))
			r.Get("/{conversationID}", handleGetConversation(d.Conversations))
			r.Post("/{conversationID}/mark-read", handleMarkConversationRead(d.Messages, d.Events))
			r.Get("/{conversationID}/messages", handleListMessages(d.Messages))
			r.Post("/{conversationID}/messages", handleCreateMessage(d.Messages, d.Events))
			r.Post("/{conversationID}/messages/attachment", handleUploadAttachment(d.Messages, d.Events))
		})

		r.Route("/messages", func(r chi.Router) {
			r.Put("/{messageID}", handleUpdateMessage(d.Messages, d.Events))
			r.Delete("/{messageID}", handleDeleteMessage(d.Messages, d.Events))
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", handleListUsers(d.Users))
			r.Get("/search", handleSearchUsers(d.Users))
		})
	})

	// WebSocket endpoint
	if d.Realtime != nil {
		r.Get("/ws/chat", d.Realtime.ServeHTTP)
	}

	return r
}
