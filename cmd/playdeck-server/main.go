package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tokonoko12/playdeck/internal/adapters/catalogapi"
	"github.com/tokonoko12/playdeck/internal/adapters/chromecast"
	"github.com/tokonoko12/playdeck/internal/adapters/httpapi"
	"github.com/tokonoko12/playdeck/internal/adapters/memorybus"
	"github.com/tokonoko12/playdeck/internal/adapters/mpv"
	"github.com/tokonoko12/playdeck/internal/adapters/sqlite"
	"github.com/tokonoko12/playdeck/internal/adapters/streamapi"
	"github.com/tokonoko12/playdeck/internal/app"
	"github.com/tokonoko12/playdeck/internal/buildinfo"
	"github.com/tokonoko12/playdeck/internal/config"
	"github.com/tokonoko12/playdeck/internal/ports"
)

func main() {
	def := config.Default()
	addr := flag.String("addr", def.Addr, "Adresse d'écoute (ex: 127.0.0.1:8080)")
	dbPath := flag.String("db", def.DBPath, "Chemin SQLite (ex: playdeck.db)")
	streamAPI := flag.String("stream-api", def.StreamAPIURL, "URL du backend de résolution des flux")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "playdeck-server").Logger()
	log.Logger = logger

	logger.Info().Interface("build", buildinfo.Current()).Str("db", *dbPath).Msg("starting")

	ctx := context.Background()
	db, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open db")
	}
	defer func() { _ = db.Close() }()

	bus := memorybus.New()
	progressRepo := sqlite.NewProgressRepository(db.SQL)
	resolver := streamapi.New(*streamAPI)

	var catalog ports.Catalog
	if def.CatalogAPIKey != "" {
		catalog = catalogapi.New(def.CatalogURL, def.CatalogImageURL, def.CatalogAPIKey)
	} else {
		logger.Warn().Msg("no catalog api key, next-episode lookups disabled")
	}

	var cast ports.CastPlatform
	if def.CastEnabled {
		cast = chromecast.New(logger.With().Str("component", "chromecast").Logger())
	}

	engines := mpv.NewFactory(def.MPVBinary, logger.With().Str("component", "mpv").Logger())

	// Limiteur global: borne le nombre de lecteurs simultanés.
	sessionLimiter := app.NewDynamicLimiter(def.MaxSessions)

	deps := app.ControllerDeps{
		Resolver: resolver,
		Progress: progressRepo,
		Engines:  engines,
		Cast:     cast,
		Bus:      bus,
	}
	sessions := app.NewSessionService(logger, deps, catalog, sessionLimiter)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := httpapi.NewServer(logger, sessions, bus, cast)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", *addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	// Ferme toutes les sessions pour flusher la progression avant l'arrêt.
	sessions.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	logger.Info().Msg("bye")
}
