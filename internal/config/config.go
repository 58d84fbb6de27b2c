package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr   string
	DBPath string

	// Backend de résolution des flux.
	StreamAPIURL string

	// Catalogue (identifiants, épisodes, images).
	CatalogURL      string
	CatalogImageURL string
	CatalogAPIKey   string

	MPVBinary   string
	CastEnabled bool
	MaxSessions int
}

func Default() Config {
	return Config{
		Addr:            envOr("PLAYDECK_ADDR", "127.0.0.1:8080"),
		DBPath:          envOr("PLAYDECK_DB_PATH", "playdeck.db"),
		StreamAPIURL:    envOr("PLAYDECK_STREAM_API_URL", "http://127.0.0.1:9000"),
		CatalogURL:      envOr("PLAYDECK_CATALOG_URL", "https://api.themoviedb.org/3"),
		CatalogImageURL: envOr("PLAYDECK_CATALOG_IMAGE_URL", "https://image.tmdb.org/t/p/w500"),
		CatalogAPIKey:   envOr("PLAYDECK_CATALOG_API_KEY", ""),
		MPVBinary:       envOr("PLAYDECK_MPV_BINARY", "mpv"),
		CastEnabled:     envBool("PLAYDECK_CAST_ENABLED", true),
		MaxSessions:     envInt("PLAYDECK_MAX_SESSIONS", 2),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
