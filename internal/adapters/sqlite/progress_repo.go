package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tokonoko12/playdeck/internal/domain"
	"github.com/tokonoko12/playdeck/internal/ports"
)

// ProgressRepository persiste la progression de lecture: une ligne par clé
// cible, valeur en JSON. Jamais supprimé automatiquement — les sessions
// suivantes écrasent.
type ProgressRepository struct {
	db *sql.DB
}

func NewProgressRepository(db *sql.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

var _ ports.ProgressRepository = (*ProgressRepository)(nil)

func (r *ProgressRepository) Get(ctx context.Context, key string) (domain.WatchProgress, error) {
	var b []byte
	err := r.db.QueryRowContext(ctx, `SELECT value_json FROM watch_progress WHERE key = ?`, key).Scan(&b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WatchProgress{}, ports.ErrNotFound
		}
		return domain.WatchProgress{}, err
	}
	var rec domain.WatchProgress
	if err := json.Unmarshal(b, &rec); err != nil {
		// Corrompu : on repart de zéro plutôt que d'échouer la session.
		return domain.WatchProgress{}, ports.ErrNotFound
	}
	return rec, nil
}

func (r *ProgressRepository) Put(ctx context.Context, key string, rec domain.WatchProgress) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO watch_progress(key, value_json, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, key, b, time.Now().UTC().Format(time.RFC3339))
	return err
}
