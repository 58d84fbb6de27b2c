package ports

import (
	"context"

	"github.com/tokonoko12/playdeck/internal/domain"
)

type ProgressRepository interface {
	// Get renvoie ErrNotFound s'il n'existe aucun enregistrement pour la clé.
	Get(ctx context.Context, key string) (domain.WatchProgress, error)
	Put(ctx context.Context, key string, rec domain.WatchProgress) error
}
