package tilecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sharif_lostfound/map-core/internal/metrics"
)

// Fetcher resolves tiles: fresh cache entries are served directly, everything
// else is fetched from the tile server and handed back immediately while a
// background goroutine inlines the bytes into the cache for next time.
type Fetcher struct {
	log      zerolog.Logger
	cache    *Cache
	client   *http.Client
	template string
	metrics  *metrics.Metrics

	bg sync.WaitGroup
}

// NewFetcher builds a Fetcher around a tile URL template containing {z}, {x}
// and {y} placeholders.
func NewFetcher(log zerolog.Logger, cache *Cache, template string, client *http.Client, m *metrics.Metrics) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{
		log:      log,
		cache:    cache,
		client:   client,
		template: template,
		metrics:  m,
	}
}

// URL expands the tile template for one tile coordinate.
func (f *Fetcher) URL(z, x, y int) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	)
	return r.Replace(f.template)
}

// Tile returns the image bytes and content type for one tile.
func (f *Fetcher) Tile(ctx context.Context, z, x, y int) ([]byte, string, error) {
	url := f.URL(z, x, y)

	if data, ok := f.cache.Get(ctx, url); ok {
		contentType, raw, err := DecodeDataURL(data)
		if err == nil {
			f.metrics.IncTileCacheHit()
			return raw, contentType, nil
		}
		// Corrupt entry, fall through to the network.
		f.log.Debug().Err(err).Str("tile", url).Msg("cached tile unreadable")
	}

	f.metrics.IncTileCacheMiss()
	raw, contentType, err := f.fetch(ctx, url)
	if err != nil {
		return nil, "", err
	}

	f.bg.Add(1)
	go func() {
		defer f.bg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		f.cache.Set(bgCtx, url, EncodeDataURL(contentType, raw))
	}()

	return raw, contentType, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building tile request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("tile server returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading tile body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return raw, contentType, nil
}

// Wait blocks until in-flight background cache writes finish. Used by tests
// and shutdown.
func (f *Fetcher) Wait() {
	f.bg.Wait()
}
