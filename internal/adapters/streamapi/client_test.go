package streamapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tokonoko12/playdeck/internal/domain"
	"github.com/tokonoko12/playdeck/internal/ports"
)

func TestListCandidates_PreservesTierOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movies/tt0111161" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		// Deux tiers de même rang exotique: l'ordre de la réponse départage.
		w.Write([]byte(`{
			"streams": {
				"720p": [{"title": "sd", "url": "u-720"}],
				"WEBRip A": [{"title": "rip-a", "url": "u-a"}],
				"WEBRip B": [{"title": "rip-b", "url": "u-b"}],
				"1080p": [{"title": "hd-1", "url": "u-hd-1"}, {"title": "hd-2", "url": "u-hd-2"}]
			}
		}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	col, err := c.ListCandidates(context.Background(), domain.PlaybackTarget{
		ExternalID: "tt0111161",
		MediaKind:  domain.MediaMovie,
	})
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(col) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(col))
	}
	if col[1].Quality != "WEBRip A" || col[2].Quality != "WEBRip B" {
		t.Fatalf("response order lost: %q then %q", col[1].Quality, col[2].Quality)
	}

	src, ok := domain.DefaultSource(col)
	if !ok || src.LocatorURL != "u-hd-1" {
		t.Fatalf("default source = %+v ok=%v", src, ok)
	}
}

func TestListCandidates_SeriesEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"streams": {"1080p": [{"title": "x", "url": "u"}]}}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	_, err := c.ListCandidates(context.Background(), domain.PlaybackTarget{
		ExternalID: "tt0903747",
		MediaKind:  domain.MediaSeries,
		Season:     2,
		Episode:    5,
	})
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if gotPath != "/series/tt0903747/2/5" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestListCandidates_EmptyResponseIsResolutionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"streams": {}}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	_, err := c.ListCandidates(context.Background(), domain.PlaybackTarget{ExternalID: "tt1", MediaKind: domain.MediaMovie})
	var re *ports.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
}

func TestListCandidates_ServerErrorIsResolutionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	_, err := c.ListCandidates(context.Background(), domain.PlaybackTarget{ExternalID: "tt1", MediaKind: domain.MediaMovie})
	var re *ports.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
}

func TestResolvePlayable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("url"); got != "magnet:xyz" {
			t.Errorf("url param = %q", got)
		}
		w.Write([]byte(`{
			"audio_lang": {"en": "English", "fr": "Français"},
			"duration": 7212.5,
			"size": 1234567,
			"streams": {
				"Original": "https://cdn.example.com/{audio}/manifest.mpd",
				"DirectFile": "https://cdn.example.com/file.mkv"
			}
		}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	stream, err := c.ResolvePlayable(context.Background(), domain.SourceRef{LocatorURL: "magnet:xyz"})
	if err != nil {
		t.Fatalf("ResolvePlayable: %v", err)
	}
	if stream.ManifestURLTemplate != "https://cdn.example.com/{audio}/manifest.mpd" {
		t.Fatalf("manifest = %q", stream.ManifestURLTemplate)
	}
	if stream.DurationSeconds != 7212.5 {
		t.Fatalf("duration = %v", stream.DurationSeconds)
	}
	if len(stream.AudioLanguages) != 2 {
		t.Fatalf("audio languages = %v", stream.AudioLanguages)
	}
}

func TestResolvePlayable_MissingPrimaryEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Des fichiers sources, mais pas de manifeste adaptatif.
		w.Write([]byte(`{"streams": {"DirectFile": "https://cdn.example.com/file.mkv"}}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	_, err := c.ResolvePlayable(context.Background(), domain.SourceRef{LocatorURL: "x"})
	var re *ports.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
}

func TestDecodeStreamCollection_SkipsUnknownFieldsAndEmptyTiers(t *testing.T) {
	col, err := decodeStreamCollection([]byte(`{
		"metadata": {"whatever": true},
		"streams": {
			"1080p": [],
			"720p": [{"title": "a", "url": "u"}]
		}
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(col) != 1 || col[0].Quality != "720p" {
		t.Fatalf("collection = %+v", col)
	}
	if col[0].Sources[0].Quality != "720p" {
		t.Fatalf("tier quality must backfill the source, got %q", col[0].Sources[0].Quality)
	}
}
