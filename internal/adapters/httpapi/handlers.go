package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/tokonoko12/playdeck/internal/buildinfo"
	"github.com/tokonoko12/playdeck/internal/httpjson"
)

const deviceDiscoveryTimeout = 5 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

// handleDevices liste les récepteurs cast visibles sur le réseau local.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if s.cast == nil {
		httpjson.Write(w, http.StatusOK, []any{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), deviceDiscoveryTimeout)
	defer cancel()
	devices, err := s.cast.Devices(ctx)
	if err != nil {
		httpjson.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, devices)
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}
