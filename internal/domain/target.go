package domain

import "fmt"

type MediaKind string

const (
	MediaMovie  MediaKind = "movie"
	MediaSeries MediaKind = "series"
)

func (k MediaKind) Valid() bool {
	return k == MediaMovie || k == MediaSeries
}

// PlaybackTarget identifies what a session plays. Immutable per attempt;
// playing the next episode is a new target and a new session.
type PlaybackTarget struct {
	// ExternalID est la clé catalogue opaque (ex: identifiant IMDb).
	ExternalID string    `json:"externalId"`
	MediaKind  MediaKind `json:"mediaKind"`
	Season     int       `json:"season,omitempty"`
	Episode    int       `json:"episode,omitempty"`

	// Title est un nom libre pour affichage/métadonnées cast.
	Title string `json:"title,omitempty"`

	// InitialSource, si présent, court-circuite la sélection de qualité.
	InitialSource *SourceRef `json:"initialSource,omitempty"`
}

// Key returns the deterministic progress-store key for the target.
// Series records additionally key on season/episode; movies do not.
func (t PlaybackTarget) Key() string {
	key := fmt.Sprintf("progress:%s:%s", t.ExternalID, t.MediaKind)
	if t.MediaKind == MediaSeries {
		key += fmt.Sprintf(":%d:%d", t.Season, t.Episode)
	}
	return key
}

// SourceRef is one candidate source inside a quality tier.
type SourceRef struct {
	Quality    string `json:"quality"`
	Title      string `json:"title"`
	LocatorURL string `json:"url"`
}

// SourceTier groups the candidates of one quality label.
type SourceTier struct {
	Quality string
	Sources []SourceRef
}

// SourceCollection preserves the tier order of the resolver response.
// Tie-breaks in the selector depend on that order staying stable.
type SourceCollection []SourceTier

// ResolvedStream is the playable data exchanged for a chosen SourceRef.
// ManifestURLTemplate is not directly playable: the {audio} placeholder
// must first be substituted with a concrete language key.
type ResolvedStream struct {
	ManifestURLTemplate string
	AudioLanguages      map[string]string
	DurationSeconds     float64
}

// EpisodeRef points at a specific episode of a series.
type EpisodeRef struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

// UpNextInfo is the display metadata for the next-episode prompt.
type UpNextInfo struct {
	Title    string `json:"title"`
	Synopsis string `json:"synopsis,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}
