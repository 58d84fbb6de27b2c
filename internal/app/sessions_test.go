package app

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tokonoko12/playdeck/internal/domain"
	"github.com/tokonoko12/playdeck/internal/ports"
)

type fakeCatalog struct {
	externalID string
	next       domain.EpisodeRef
	nextInfo   domain.UpNextInfo
	nextErr    error
}

func (f *fakeCatalog) ExternalID(ctx context.Context, internalID int, kind domain.MediaKind) (string, error) {
	if f.externalID == "" {
		return "", ports.ErrNotFound
	}
	return f.externalID, nil
}

func (f *fakeCatalog) NextEpisode(ctx context.Context, externalID string, season, episode int) (domain.EpisodeRef, domain.UpNextInfo, error) {
	if f.nextErr != nil {
		return domain.EpisodeRef{}, domain.UpNextInfo{}, f.nextErr
	}
	return f.next, f.nextInfo, nil
}

func newTestService(t *testing.T, catalog ports.Catalog, limit int) (*SessionService, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	deps := ControllerDeps{
		Resolver: &fakeResolver{
			candidates: domain.SourceCollection{
				{Quality: "1080p", Sources: []domain.SourceRef{{Title: "hd", LocatorURL: "u-hd"}}},
			},
			stream: defaultStream(),
		},
		Progress: newFakeProgress(),
		Engines:  factory,
	}
	var limiter *DynamicLimiter
	if limit > 0 {
		limiter = NewDynamicLimiter(limit)
	}
	svc := NewSessionService(zerolog.Nop(), deps, catalog, limiter)
	t.Cleanup(svc.CloseAll)
	return svc, factory
}

func TestSessionService_CreateValidates(t *testing.T) {
	svc, _ := newTestService(t, nil, 0)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateSessionRequest{MediaKind: "episode"}); err == nil {
		t.Fatalf("invalid media kind must be rejected")
	}
	if _, err := svc.Create(ctx, CreateSessionRequest{MediaKind: domain.MediaMovie}); err == nil {
		t.Fatalf("missing external id must be rejected without a catalog")
	}
	if _, err := svc.Create(ctx, CreateSessionRequest{MediaKind: domain.MediaSeries, ExternalID: "tt1"}); err == nil {
		t.Fatalf("series without season/episode must be rejected")
	}
}

func TestSessionService_CreateBridgesInternalID(t *testing.T) {
	svc, _ := newTestService(t, &fakeCatalog{externalID: "tt0111161"}, 0)

	dto, err := svc.Create(context.Background(), CreateSessionRequest{
		InternalID: 278,
		MediaKind:  domain.MediaMovie,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if dto.Target.ExternalID != "tt0111161" {
		t.Fatalf("ExternalID = %q", dto.Target.ExternalID)
	}
	if dto.ID == "" {
		t.Fatalf("expected a session id")
	}

	got, err := svc.Get(dto.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != dto.ID {
		t.Fatalf("Get returned a different session")
	}
}

func TestSessionService_LimiterBoundsConcurrentSessions(t *testing.T) {
	svc, _ := newTestService(t, nil, 1)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateSessionRequest{MediaKind: domain.MediaMovie, ExternalID: "tt1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.Create(ctx, CreateSessionRequest{MediaKind: domain.MediaMovie, ExternalID: "tt2"})
	if !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("expected ErrTooManySessions, got %v", err)
	}

	// La fermeture libère le slot.
	svc.Close(first.ID)
	if _, err := svc.Create(ctx, CreateSessionRequest{MediaKind: domain.MediaMovie, ExternalID: "tt3"}); err != nil {
		t.Fatalf("Create after close: %v", err)
	}
}

func TestSessionService_SetCapacityTakesEffectImmediately(t *testing.T) {
	svc, _ := newTestService(t, nil, 1)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateSessionRequest{MediaKind: domain.MediaMovie, ExternalID: "tt1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateSessionRequest{MediaKind: domain.MediaMovie, ExternalID: "tt2"}); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("expected ErrTooManySessions, got %v", err)
	}

	if got := svc.SetCapacity(2); got != 2 {
		t.Fatalf("SetCapacity = %d, want 2", got)
	}
	if _, err := svc.Create(ctx, CreateSessionRequest{MediaKind: domain.MediaMovie, ExternalID: "tt2"}); err != nil {
		t.Fatalf("Create after raising capacity: %v", err)
	}

	// Sans limiteur, la capacité est illimitée et l'ajustement est un no-op.
	unbounded, _ := newTestService(t, nil, 0)
	if got := unbounded.SetCapacity(5); got != 0 {
		t.Fatalf("SetCapacity without limiter = %d, want 0", got)
	}
	if got := unbounded.Capacity(); got != 0 {
		t.Fatalf("Capacity without limiter = %d, want 0", got)
	}
}

func TestSessionService_PlayNextOpensFreshSession(t *testing.T) {
	svc, _ := newTestService(t, &fakeCatalog{
		next:     domain.EpisodeRef{Season: 2, Episode: 6},
		nextInfo: domain.UpNextInfo{Title: "E6: The One After"},
	}, 0)

	dto, err := svc.Create(context.Background(), CreateSessionRequest{
		MediaKind:  domain.MediaSeries,
		ExternalID: "tt0903747",
		Season:     2,
		Episode:    5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Le prefetch tourne en arrière-plan; on attend la mise en place.
	ctrl, err := svc.Controller(dto.ID)
	if err != nil {
		t.Fatalf("Controller: %v", err)
	}
	waitFor(t, "up-next prefetch", func() bool {
		_, ok := ctrl.NextEpisode()
		return ok
	})

	next, err := svc.PlayNext(dto.ID)
	if err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	if next.Target.Season != 2 || next.Target.Episode != 6 {
		t.Fatalf("next target = S%dE%d", next.Target.Season, next.Target.Episode)
	}
	if next.Target.InitialSource != nil {
		t.Fatalf("next episode must re-run source selection")
	}

	// L'ancienne session n'existe plus.
	if _, err := svc.Get(dto.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("old session should be gone, got %v", err)
	}
}

func TestSessionService_PlayNextWithoutQueuedEpisode(t *testing.T) {
	svc, _ := newTestService(t, nil, 0)

	dto, err := svc.Create(context.Background(), CreateSessionRequest{MediaKind: domain.MediaMovie, ExternalID: "tt1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.PlayNext(dto.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
