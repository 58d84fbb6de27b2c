package domain

import "testing"

func TestPlaybackTargetKey(t *testing.T) {
	movie := PlaybackTarget{ExternalID: "tt0111161", MediaKind: MediaMovie}
	if got := movie.Key(); got != "progress:tt0111161:movie" {
		t.Fatalf("movie key = %q", got)
	}

	// La saison/épisode d'un film éventuel est ignorée: un film n'a qu'une
	// seule entrée de progression.
	movie.Season, movie.Episode = 3, 4
	if got := movie.Key(); got != "progress:tt0111161:movie" {
		t.Fatalf("movie key with season set = %q", got)
	}

	series := PlaybackTarget{ExternalID: "tt0903747", MediaKind: MediaSeries, Season: 2, Episode: 5}
	if got := series.Key(); got != "progress:tt0903747:series:2:5" {
		t.Fatalf("series key = %q", got)
	}

	other := PlaybackTarget{ExternalID: "tt0903747", MediaKind: MediaSeries, Season: 2, Episode: 6}
	if series.Key() == other.Key() {
		t.Fatalf("distinct episodes must not share a key")
	}
}
