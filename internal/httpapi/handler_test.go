package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sharif_lostfound/map-core/internal/category"
	"sharif_lostfound/map-core/internal/mapview"
	"sharif_lostfound/map-core/internal/search"
	"sharif_lostfound/map-core/internal/store"
	"sharif_lostfound/map-core/internal/tilecache"
)

type fakeSearcher struct {
	locationFn func(p search.LocationParams) ([]search.Item, search.Meta, error)
	productFn  func(page, size int) ([]search.Item, search.Meta, error)
}

func (f fakeSearcher) ItemsByLocationPage(_ context.Context, p search.LocationParams) ([]search.Item, search.Meta, error) {
	if f.locationFn == nil {
		return nil, search.Meta{}, nil
	}
	return f.locationFn(p)
}

func (f fakeSearcher) ProductsPage(_ context.Context, page, size int) ([]search.Item, search.Meta, error) {
	if f.productFn == nil {
		return nil, search.Meta{}, nil
	}
	return f.productFn(page, size)
}

type testEnv struct {
	handler  http.Handler
	h        *Handler
	tiles    *tilecache.Fetcher
	tileHits *atomic.Int64
}

func newTestEnv(t *testing.T, searcher mapview.Searcher) *testEnv {
	t.Helper()
	log := NewLogger("error")
	mem := store.NewMemory()

	catSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":"Electronics"},{"id":2,"name":"Documents"}]`))
	}))
	t.Cleanup(catSrv.Close)
	dir := category.New(log, mem, catSrv.URL, catSrv.Client(), category.Options{})

	var tileHits atomic.Int64
	tileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tileHits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("tile-bytes"))
	}))
	t.Cleanup(tileSrv.Close)
	cache := tilecache.New(log, mem, tilecache.Options{}, nil)
	tiles := tilecache.NewFetcher(log, cache, tileSrv.URL+"/{z}/{x}/{y}.png", tileSrv.Client(), nil)

	h := NewHandler(log, Options{
		Search:      searcher,
		Categories:  dir,
		Tiles:       tiles,
		PageSize:    20,
		Attribution: "test tiles",
		Ready:       func(context.Context) error { return nil },
	})
	t.Cleanup(h.CloseSessions)
	return &testEnv{handler: h.Router(), h: h, tiles: tiles, tileHits: &tileHits}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode body as json: %v\nbody=%s", err, rr.Body.String())
	}
	return v
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/sessions", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	id, ok := decodeBody(t, rr)["id"].(string)
	if !ok || id == "" {
		t.Fatalf("expected session id, got %s", rr.Body.String())
	}
	return id
}

// waitLoaded polls the view until the initial load settles.
func (e *testEnv) waitLoaded(t *testing.T, id string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rr := e.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/view", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("view failed: %d %s", rr.Code, rr.Body.String())
		}
		body := decodeBody(t, rr)
		if body["state"] == "loaded" {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("view never loaded, last state %v", body["state"])
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessions_CreateViewClose(t *testing.T) {
	lat, lng := 35.7028, 51.3516
	env := newTestEnv(t, fakeSearcher{
		productFn: func(page, size int) ([]search.Item, search.Meta, error) {
			return []search.Item{{ID: "1", Name: "keys", Category: "electronics", X: &lat, Y: &lng}}, search.Meta{}, nil
		},
	})

	id := env.createSession(t)
	body := env.waitLoaded(t, id)

	items, ok := body["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one item, got %v", body["items"])
	}
	markers, ok := body["markers"].([]any)
	if !ok || len(markers) != 1 {
		t.Fatalf("expected one marker, got %v", body["markers"])
	}
	marker := markers[0].(map[string]any)
	if marker["color"] == "" {
		t.Fatal("expected a category color on the marker")
	}

	rr := env.do(t, http.MethodDelete, "/api/v1/sessions/"+id, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodDelete, "/api/v1/sessions/"+id, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on double close, got %d", rr.Code)
	}
}

func TestView_UnknownSession(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})
	rr := env.do(t, http.MethodGet, "/api/v1/sessions/nope/view", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	errObj := decodeBody(t, rr)["error"].(map[string]any)
	if errObj["code"] != "not_found" {
		t.Fatalf("expected not_found, got %v", errObj["code"])
	}
}

func TestFilterApply_ValidationFailure(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})
	id := env.createSession(t)
	env.waitLoaded(t, id)

	rr := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/filter/draft",
		`{"locationMode":"around_pin","center":{"lat":35.7028,"lng":51.3516}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("draft failed: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/filter/apply", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	errObj := decodeBody(t, rr)["error"].(map[string]any)
	if errObj["code"] != "validation_failed" {
		t.Fatalf("expected validation_failed, got %v", errObj["code"])
	}
	details := errObj["details"].(map[string]any)
	if details["diameterMeters"] == nil {
		t.Fatalf("expected diameterMeters detail, got %v", details)
	}
}

func TestFilterDraft_RejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})
	id := env.createSession(t)

	rr := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/filter/draft", `{"name":"x","nope":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPageNext_Unavailable(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})
	id := env.createSession(t)
	env.waitLoaded(t, id)

	rr := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/page/next", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	errObj := decodeBody(t, rr)["error"].(map[string]any)
	if errObj["code"] != "page_unavailable" {
		t.Fatalf("expected page_unavailable, got %v", errObj["code"])
	}
}

func TestPick_UnknownMode(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})
	id := env.createSession(t)

	rr := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/pick", `{"mode":"launch"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDoubleClick_ReturnsClampedHandoff(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})
	id := env.createSession(t)

	rr := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/dblclick", `{"lat":90,"lng":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	handoff := decodeBody(t, rr)["handoff"].(map[string]any)
	if handoff["x"].(float64) > 36 || handoff["y"].(float64) < 51 {
		t.Fatalf("expected clamped campus point, got %v", handoff)
	}
}

func TestCategories_OK(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})
	rr := env.do(t, http.MethodGet, "/api/v1/categories", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var list []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0]["color"] == "" {
		t.Fatalf("expected two colored categories, got %v", list)
	}
}

func TestCategories_UpstreamFailure(t *testing.T) {
	log := NewLogger("error")
	mem := store.NewMemory()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	h := NewHandler(log, Options{
		Search:     fakeSearcher{},
		Categories: category.New(log, mem, srv.URL, srv.Client(), category.Options{}),
	})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestTiles_ProxyAndCache(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})

	rr := env.do(t, http.MethodGet, "/tiles/16/5/9", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}
	if got := rr.Header().Get("X-Tile-Attribution"); got != "test tiles" {
		t.Fatalf("expected attribution header, got %q", got)
	}
	if rr.Body.String() != "tile-bytes" {
		t.Fatalf("unexpected tile body %q", rr.Body.String())
	}

	env.tiles.Wait()
	rr = env.do(t, http.MethodGet, "/tiles/16/5/9", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from cache, got %d", rr.Code)
	}
	if env.tileHits.Load() != 1 {
		t.Fatalf("expected one upstream hit, got %d", env.tileHits.Load())
	}
}

func TestTiles_InvalidCoordinates(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})
	rr := env.do(t, http.MethodGet, "/tiles/a/b/c", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})

	rr := env.do(t, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rr.Code)
	}

	// Without a store probe the service reports not ready.
	bare := NewHandler(NewLogger("error"), Options{Search: fakeSearcher{}})
	rr2 := httptest.NewRecorder()
	bare.Router().ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr2.Code)
	}
}

func TestMapConfig(t *testing.T) {
	env := newTestEnv(t, fakeSearcher{})
	rr := env.do(t, http.MethodGet, "/api/v1/mapconfig", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["attribution"] != "test tiles" {
		t.Fatalf("unexpected attribution %v", body["attribution"])
	}
	if _, ok := body["bounds"].(map[string]any); !ok {
		t.Fatalf("expected bounds object, got %v", body["bounds"])
	}

	// Request ID should be set in responses by middleware.
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}
