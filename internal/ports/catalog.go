package ports

import (
	"context"

	"github.com/tokonoko12/playdeck/internal/domain"
)

// Catalog bridges the catalog identifier space and supplies the metadata
// the player surface needs (next-episode prompt). Implementations are thin
// read-only API clients.
type Catalog interface {
	// ExternalID resolves an internal numeric catalog id to the opaque
	// external id the stream resolver understands.
	ExternalID(ctx context.Context, internalID int, kind domain.MediaKind) (string, error)

	// NextEpisode returns the episode following (season, episode) plus its
	// display metadata, or ErrNotFound when the season has no next episode.
	NextEpisode(ctx context.Context, externalID string, season, episode int) (domain.EpisodeRef, domain.UpNextInfo, error)
}
