package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sharif_lostfound/map-core/internal/category"
	"sharif_lostfound/map-core/internal/config"
	"sharif_lostfound/map-core/internal/httpapi"
	"sharif_lostfound/map-core/internal/metrics"
	"sharif_lostfound/map-core/internal/search"
	"sharif_lostfound/map-core/internal/store"
	"sharif_lostfound/map-core/internal/tilecache"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fallback := httpapi.NewLogger("info")
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	logger := httpapi.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StorePath).Msg("failed to open blob store")
	}
	defer st.Close()

	m := metrics.New()

	cache := tilecache.New(logger, st, tilecache.Options{
		TTL:        cfg.TileCacheTTL(),
		MaxEntries: cfg.TileCache.MaxEntries,
	}, m)
	tiles := tilecache.NewFetcher(logger, cache, cfg.TileURLTemplate, nil, m)

	categories := category.New(logger, st, cfg.APIBaseURL, nil, category.Options{
		TTL: cfg.CategoryTTL(),
	})

	var token search.TokenSource
	if cfg.APIToken != "" {
		token = func() string { return cfg.APIToken }
	}
	searcher := search.NewClient(logger, cfg.APIBaseURL, nil, token, m)

	h := httpapi.NewHandler(logger, httpapi.Options{
		Search:      searcher,
		Categories:  categories,
		Tiles:       tiles,
		Metrics:     m,
		Bounds:      cfg.CampusBounds(),
		PageSize:    cfg.PageSize,
		Attribution: cfg.TileAttribution,
		Ready:       st.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("map-core listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	h.CloseSessions()
	tiles.Wait()
	logger.Info().Msg("shutdown complete")
}
