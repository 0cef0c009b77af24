package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"sharif_lostfound/map-core/internal/category"
	"sharif_lostfound/map-core/internal/geo"
	"sharif_lostfound/map-core/internal/mapview"
	"sharif_lostfound/map-core/internal/metrics"
	"sharif_lostfound/map-core/internal/tilecache"
)

// Options wires the handler's collaborators. Metrics and Locator may be nil.
type Options struct {
	Search      mapview.Searcher
	Categories  *category.Directory
	Tiles       *tilecache.Fetcher
	Metrics     *metrics.Metrics
	Locator     mapview.Locator
	Bounds      geo.Bounds
	PageSize    int
	Attribution string

	// Ready probes the blob store for /readyz; nil reports not ready.
	Ready func(ctx context.Context) error
}

type Handler struct {
	log         zerolog.Logger
	metrics     *metrics.Metrics
	search      mapview.Searcher
	categories  *category.Directory
	tiles       *tilecache.Fetcher
	locator     mapview.Locator
	bounds      geo.Bounds
	pageSize    int
	attribution string
	ready       func(ctx context.Context) error

	sessions *sessionRegistry
}

func NewHandler(log zerolog.Logger, opts Options) *Handler {
	bounds := opts.Bounds
	if bounds == (geo.Bounds{}) {
		bounds = geo.Campus()
	}
	return &Handler{
		log:         log,
		metrics:     opts.Metrics,
		search:      opts.Search,
		categories:  opts.Categories,
		tiles:       opts.Tiles,
		locator:     opts.Locator,
		bounds:      bounds,
		pageSize:    opts.PageSize,
		attribution: opts.Attribution,
		ready:       opts.Ready,
		sessions:    newSessionRegistry(),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Handle("/metrics", h.metrics.Handler())

	// Tile proxy
	r.Get("/tiles/{z}/{x}/{y}", h.handleTile)

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Get("/categories", h.handleCategories)
			r.Get("/mapconfig", h.handleMapConfig)

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", h.handleCreateSession)
				r.Route("/{id}", func(r chi.Router) {
					r.Delete("/", h.handleCloseSession)
					r.Get("/view", h.handleView)
					r.Post("/filter/draft", h.handleFilterDraft)
					r.Post("/filter/apply", h.handleFilterApply)
					r.Post("/filter/clear", h.handleFilterClear)
					r.Post("/page/next", h.handlePageNext)
					r.Post("/page/prev", h.handlePagePrev)
					r.Post("/pick", h.handlePick)
					r.Post("/click", h.handleClick)
					r.Post("/dblclick", h.handleDoubleClick)
					r.Post("/position", h.handlePosition)
				})
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.ready == nil {
		h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "blob store not configured", nil)
		return
	}
	if err := h.ready(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "blob store not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) handleMapConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"attribution": h.attribution,
		"bounds":      h.bounds,
		"center":      h.bounds.Center(),
	})
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	useCache := r.URL.Query().Get("refresh") != "true"
	list, err := h.categories.Fetch(r.Context(), useCache)
	if err != nil {
		h.log.Error().Err(err).Msg("category fetch failed")
		h.writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch categories", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleTile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errZ != nil || errX != nil || errY != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_tile", "tile coordinates must be integers", nil)
		return
	}

	data, contentType, err := h.tiles.Tile(r.Context(), z, x, y)
	if err != nil {
		h.log.Warn().Err(err).Int("z", z).Int("x", x).Int("y", y).Msg("tile fetch failed")
		h.writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch tile", nil)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if h.attribution != "" {
		w.Header().Set("X-Tile-Attribution", h.attribution)
	}
	_, _ = w.Write(data)
}

// colorIndex builds the slug→color lookup for the view projection. A
// directory failure degrades to no colors rather than failing the view.
func (h *Handler) colorIndex(ctx context.Context) map[string]string {
	list, err := h.categories.Fetch(ctx, true)
	if err != nil {
		h.log.Warn().Err(err).Msg("category directory unavailable, rendering without colors")
		return map[string]string{}
	}
	out := make(map[string]string, len(list))
	for _, c := range list {
		out[c.Key] = c.Color
	}
	return out
}

func zoomParam(r *http.Request) float64 {
	const defaultZoom = 16
	v := r.URL.Query().Get("zoom")
	if v == "" {
		return defaultZoom
	}
	z, err := strconv.ParseFloat(v, 64)
	if err != nil || z <= 0 {
		return defaultZoom
	}
	return z
}
