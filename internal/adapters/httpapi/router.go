package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/tokonoko12/playdeck/internal/app"
	"github.com/tokonoko12/playdeck/internal/ports"
)

type Server struct {
	logger   zerolog.Logger
	sessions *app.SessionService
	bus      ports.EventBus
	// cast est optionnel: sans plateforme, /devices renvoie une liste vide.
	cast ports.CastPlatform
}

func NewServer(logger zerolog.Logger, sessions *app.SessionService, bus ports.EventBus, cast ports.CastPlatform) *Server {
	return &Server{logger: logger, sessions: sessions, bus: bus, cast: cast}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// Pas de middleware.Timeout global: /events est un flux SSE longue durée.
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/openapi.json", s.handleOpenAPI)
		r.Get("/events", s.handleEvents)
		r.Get("/devices", s.handleDevices)

		if s.sessions != nil {
			NewSessionsHandler(s.sessions).Routes(r)
		}
	})

	return r
}
