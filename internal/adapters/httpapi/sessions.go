package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tokonoko12/playdeck/internal/app"
	"github.com/tokonoko12/playdeck/internal/httpjson"
	"github.com/tokonoko12/playdeck/internal/ports"
)

type SessionsHandler struct {
	sessions *app.SessionService
}

func NewSessionsHandler(sessions *app.SessionService) *SessionsHandler {
	return &SessionsHandler{sessions: sessions}
}

func (h *SessionsHandler) Routes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/capacity", h.getCapacity)
		r.Put("/capacity", h.setCapacity)
		r.Get("/{id}", h.get)
		r.Delete("/{id}", h.close)

		r.Post("/{id}/play-pause", h.playPause)
		r.Post("/{id}/scrub", h.scrub)
		r.Post("/{id}/scrub/commit", h.scrubCommit)
		r.Post("/{id}/skip", h.skip)
		r.Post("/{id}/audio", h.setAudio)
		r.Post("/{id}/quality", h.setQuality)
		r.Post("/{id}/text-track", h.setTextTrack)
		r.Post("/{id}/volume", h.setVolume)
		r.Post("/{id}/mute", h.toggleMute)
		r.Post("/{id}/rate", h.setRate)
		r.Post("/{id}/replay", h.replay)
		r.Post("/{id}/next", h.playNext)
		r.Post("/{id}/cast", h.startCast)
		r.Delete("/{id}/cast", h.stopCast)
	})
}

func (h *SessionsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req app.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}

	dto, err := h.sessions.Create(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, app.ErrTooManySessions) {
			status = http.StatusTooManyRequests
		} else if errors.Is(err, ports.ErrNotFound) {
			status = http.StatusNotFound
		}
		httpjson.WriteError(w, status, err.Error())
		return
	}
	httpjson.Write(w, http.StatusCreated, dto)
}

func (h *SessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, h.sessions.List())
}

func (h *SessionsHandler) getCapacity(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]int{"limit": h.sessions.Capacity()})
}

// setCapacity ajuste à chaud le plafond de sessions concurrentes.
func (h *SessionsHandler) setCapacity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Limit <= 0 {
		httpjson.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]int{"limit": h.sessions.SetCapacity(body.Limit)})
}

func (h *SessionsHandler) get(w http.ResponseWriter, r *http.Request) {
	dto, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	httpjson.Write(w, http.StatusOK, dto)
}

func (h *SessionsHandler) close(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// controller résout la session ou répond 404. Retourne nil si déjà répondu.
func (h *SessionsHandler) controller(w http.ResponseWriter, r *http.Request) *app.Controller {
	ctrl, err := h.sessions.Controller(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.WriteError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return ctrl
}

func (h *SessionsHandler) playPause(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	h.respondAfter(w, ctrl, ctrl.PlayPause())
}

func (h *SessionsHandler) scrub(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	var body struct {
		Progress float64 `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctrl.BeginScrub(body.Progress)
	h.respondAfter(w, ctrl, nil)
}

func (h *SessionsHandler) scrubCommit(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	h.respondAfter(w, ctrl, ctrl.CommitScrub())
}

func (h *SessionsHandler) skip(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	var body struct {
		Forward bool `json:"forward"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.respondAfter(w, ctrl, ctrl.Skip(body.Forward))
}

func (h *SessionsHandler) setAudio(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	var body struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Language == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "missing language")
		return
	}
	h.respondAfter(w, ctrl, ctrl.SetAudioLanguage(body.Language))
}

func (h *SessionsHandler) setQuality(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	var body struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.respondAfter(w, ctrl, ctrl.SetQuality(body.Index))
}

func (h *SessionsHandler) setTextTrack(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	var body struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.respondAfter(w, ctrl, ctrl.SetTextTrack(body.Index))
}

func (h *SessionsHandler) setVolume(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	var body struct {
		Volume float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.respondAfter(w, ctrl, ctrl.SetVolume(body.Volume))
}

func (h *SessionsHandler) toggleMute(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	h.respondAfter(w, ctrl, ctrl.ToggleMute())
}

func (h *SessionsHandler) setRate(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	var body struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.respondAfter(w, ctrl, ctrl.SetPlaybackRate(body.Rate))
}

func (h *SessionsHandler) replay(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	h.respondAfter(w, ctrl, ctrl.Replay())
}

func (h *SessionsHandler) playNext(w http.ResponseWriter, r *http.Request) {
	dto, err := h.sessions.PlayNext(chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ports.ErrNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, app.ErrTooManySessions) {
			status = http.StatusTooManyRequests
		}
		httpjson.WriteError(w, status, err.Error())
		return
	}
	httpjson.Write(w, http.StatusCreated, dto)
}

func (h *SessionsHandler) startCast(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	var body struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DeviceID == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "missing deviceId")
		return
	}
	if err := ctrl.StartCast(r.Context(), body.DeviceID); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, app.ErrCastUnavailable) {
			status = http.StatusServiceUnavailable
		}
		httpjson.WriteError(w, status, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, ctrl.State())
}

func (h *SessionsHandler) stopCast(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	h.respondAfter(w, ctrl, ctrl.StopCast())
}

// respondAfter renvoie l'état courant après une commande, ou l'erreur.
func (h *SessionsHandler) respondAfter(w http.ResponseWriter, ctrl *app.Controller, err error) {
	if err != nil {
		httpjson.WriteError(w, http.StatusConflict, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, ctrl.State())
}
