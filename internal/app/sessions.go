package app

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/tokonoko12/playdeck/internal/domain"
	"github.com/tokonoko12/playdeck/internal/ports"
)

var ErrTooManySessions = errors.New("too many active playback sessions")

// SessionService owns the live controllers. It is the only creator and
// destroyer of sessions; "play next episode" goes through here because it
// is a brand-new session, not a mutation of the old one.
type SessionService struct {
	logger  zerolog.Logger
	deps    ControllerDeps
	catalog ports.Catalog
	limiter *DynamicLimiter

	mu       sync.Mutex
	sessions map[string]*Controller
}

func NewSessionService(logger zerolog.Logger, deps ControllerDeps, catalog ports.Catalog, limiter *DynamicLimiter) *SessionService {
	deps.Logger = logger
	return &SessionService{
		logger:   logger,
		deps:     deps,
		catalog:  catalog,
		limiter:  limiter,
		sessions: make(map[string]*Controller),
	}
}

type CreateSessionRequest struct {
	// InternalID + MediaKind may be given instead of ExternalID; the
	// catalog bridges the identifier spaces.
	InternalID int               `json:"internalId,omitempty"`
	ExternalID string            `json:"externalId,omitempty"`
	MediaKind  domain.MediaKind  `json:"mediaKind"`
	Season     int               `json:"season,omitempty"`
	Episode    int               `json:"episode,omitempty"`
	Title      string            `json:"title,omitempty"`
	Source     *domain.SourceRef `json:"source,omitempty"`
}

type SessionDTO struct {
	ID     string                `json:"id"`
	Target domain.PlaybackTarget `json:"target"`
	State  domain.PlaybackState  `json:"state"`
}

func toSessionDTO(c *Controller) SessionDTO {
	return SessionDTO{ID: c.ID(), Target: c.Target(), State: c.State()}
}

// Create registers a new session and kicks off its initialization in the
// background; the caller gets the id immediately and follows progress over
// the event stream.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (SessionDTO, error) {
	if !req.MediaKind.Valid() {
		return SessionDTO{}, errors.New("invalid media kind")
	}

	externalID := req.ExternalID
	if externalID == "" {
		if s.catalog == nil || req.InternalID == 0 {
			return SessionDTO{}, errors.New("missing external id")
		}
		id, err := s.catalog.ExternalID(ctx, req.InternalID, req.MediaKind)
		if err != nil {
			return SessionDTO{}, err
		}
		externalID = id
	}
	if req.MediaKind == domain.MediaSeries && (req.Season <= 0 || req.Episode <= 0) {
		return SessionDTO{}, errors.New("series playback requires season and episode")
	}

	target := domain.PlaybackTarget{
		ExternalID:    externalID,
		MediaKind:     req.MediaKind,
		Season:        req.Season,
		Episode:       req.Episode,
		Title:         req.Title,
		InitialSource: req.Source,
	}
	return s.startSession(target)
}

func (s *SessionService) startSession(target domain.PlaybackTarget) (SessionDTO, error) {
	if s.limiter != nil && !s.limiter.TryAcquire() {
		return SessionDTO{}, ErrTooManySessions
	}

	ctrl := NewController(xid.New().String(), target, s.deps)

	s.mu.Lock()
	s.sessions[ctrl.ID()] = ctrl
	s.mu.Unlock()

	go func() {
		if err := ctrl.Start(context.Background()); err != nil {
			s.logger.Warn().Err(err).Str("session_id", ctrl.ID()).Msg("session initialization failed")
		}
	}()
	if target.MediaKind == domain.MediaSeries {
		go s.prefetchUpNext(ctrl)
	}

	s.logger.Info().Str("session_id", ctrl.ID()).Str("target", target.Key()).Msg("session created")
	return toSessionDTO(ctrl), nil
}

// prefetchUpNext resolves the next-episode prompt while playback runs, so
// the overlay is ready the moment the episode finishes.
func (s *SessionService) prefetchUpNext(ctrl *Controller) {
	if s.catalog == nil {
		return
	}
	target := ctrl.Target()
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	ref, info, err := s.catalog.NextEpisode(ctx, target.ExternalID, target.Season, target.Episode)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			s.logger.Warn().Err(err).Str("session_id", ctrl.ID()).Msg("next episode lookup failed")
		}
		return
	}
	ctrl.SetUpNext(ref, info)
}

func (s *SessionService) Get(id string) (SessionDTO, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return SessionDTO{}, err
	}
	return toSessionDTO(ctrl), nil
}

func (s *SessionService) Controller(id string) (*Controller, error) {
	return s.controller(id)
}

func (s *SessionService) controller(id string) (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctrl, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ctrl, nil
}

// PlayNext closes the finished session and opens a fresh one on the next
// episode, with no preselected source: resolution starts over.
func (s *SessionService) PlayNext(id string) (SessionDTO, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return SessionDTO{}, err
	}
	next, ok := ctrl.NextEpisode()
	if !ok {
		return SessionDTO{}, ports.ErrNotFound
	}

	old := ctrl.Target()
	target := domain.PlaybackTarget{
		ExternalID: old.ExternalID,
		MediaKind:  old.MediaKind,
		Season:     next.Season,
		Episode:    next.Episode,
		Title:      old.Title,
	}
	s.Close(id)
	return s.startSession(target)
}

// Close tears a session down and releases its capacity slot.
func (s *SessionService) Close(id string) {
	s.mu.Lock()
	ctrl, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	ctrl.Close()
	if s.limiter != nil {
		s.limiter.Release()
	}
}

// CloseAll is called on shutdown so every session flushes its progress.
func (s *SessionService) CloseAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Close(id)
	}
}

// SetCapacity adjusts the concurrent-session ceiling at runtime and returns
// the effective limit. Running sessions are never evicted; a lowered limit
// only applies to new ones. Returns 0 when the service is unbounded.
func (s *SessionService) SetCapacity(limit int) int {
	if s.limiter == nil {
		return 0
	}
	s.limiter.SetLimit(limit)
	return s.limiter.Limit()
}

// Capacity reports the current ceiling, 0 when unbounded.
func (s *SessionService) Capacity() int {
	if s.limiter == nil {
		return 0
	}
	return s.limiter.Limit()
}

func (s *SessionService) List() []SessionDTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionDTO, 0, len(s.sessions))
	for _, ctrl := range s.sessions {
		out = append(out, toSessionDTO(ctrl))
	}
	return out
}
