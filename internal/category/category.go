// Package category is the session-lifetime lookup of item categories,
// fetched once from the backend and cached in the blob store with a TTL.
package category

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sharif_lostfound/map-core/internal/store"
)

const (
	// DefaultBlobKey is the well-known storage key for the categories blob.
	DefaultBlobKey = "lf_categories_cache_v1"

	DefaultTTL = time.Hour
)

// fallbackPalette supplies deterministic colors, cycled by list index, for
// categories the server returns without one.
var fallbackPalette = []string{
	"#2563eb",
	"#16a34a",
	"#db2777",
	"#f59e0b",
	"#7c3aed",
	"#f97316",
	"#0ea5e9",
	"#10b981",
	"#4f46e5",
}

// Category is one immutable directory entry.
type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Key   string `json:"key"`
	Color string `json:"color"`
}

type cacheBlob struct {
	TS    int64      `json:"ts"`
	Items []Category `json:"items"`
}

// Options tunes a Directory. Zero values fall back to the defaults above.
type Options struct {
	BlobKey string
	TTL     time.Duration
	Now     func() time.Time
}

// Directory fetches and caches the category list.
type Directory struct {
	log     zerolog.Logger
	store   store.Store
	client  *http.Client
	baseURL string

	key string
	ttl time.Duration
	now func() time.Time
}

func New(log zerolog.Logger, st store.Store, baseURL string, client *http.Client, opts Options) *Directory {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	key := opts.BlobKey
	if key == "" {
		key = DefaultBlobKey
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Directory{
		log:     log,
		store:   st,
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		key:     key,
		ttl:     ttl,
		now:     now,
	}
}

// Fetch returns the category list, from cache when useCache is set and the
// cached blob is fresh, otherwise from one network fetch. A fetch error
// propagates; callers degrade to an empty directory instead of blocking.
func (d *Directory) Fetch(ctx context.Context, useCache bool) ([]Category, error) {
	if useCache {
		if items, ok := d.loadCache(ctx); ok {
			return items, nil
		}
	}

	items, err := d.fetchRemote(ctx)
	if err != nil {
		return nil, err
	}

	d.saveCache(ctx, items)
	return items, nil
}

// Slug normalizes a category name the way the item records do: lower-cased,
// trimmed, whitespace runs collapsed to underscores. Empty names map to
// "other".
func Slug(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return "other"
	}
	return strings.Join(fields, "_")
}

func (d *Directory) loadCache(ctx context.Context) ([]Category, bool) {
	raw, err := d.store.Get(ctx, d.key)
	if err != nil {
		return nil, false
	}
	var parsed cacheBlob
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.TS == 0 || parsed.Items == nil {
		return nil, false
	}
	if d.now().UnixMilli()-parsed.TS > d.ttl.Milliseconds() {
		return nil, false
	}
	return parsed.Items, true
}

func (d *Directory) saveCache(ctx context.Context, items []Category) {
	raw, err := json.Marshal(cacheBlob{TS: d.now().UnixMilli(), Items: items})
	if err != nil {
		return
	}
	if err := d.store.Set(ctx, d.key, raw); err != nil {
		// Cache errors never surface; the next call just refetches.
		d.log.Debug().Err(err).Msg("categories cache write failed")
	}
}

type rawCategory struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (d *Directory) fetchRemote(ctx context.Context) ([]Category, error) {
	url := d.baseURL + "/api/categories"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building categories request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching categories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("categories endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading categories body: %w", err)
	}

	list, err := decodeList(body)
	if err != nil {
		return nil, err
	}

	items := make([]Category, 0, len(list))
	for i, rc := range list {
		color := rc.Color
		if color == "" {
			color = fallbackPalette[i%len(fallbackPalette)]
		}
		items = append(items, Category{
			ID:    rc.ID,
			Name:  rc.Name,
			Key:   Slug(rc.Name),
			Color: color,
		})
	}
	return items, nil
}

// decodeList accepts both observed envelope shapes: {"data":[...]} and a
// bare array.
func decodeList(body []byte) ([]rawCategory, error) {
	var envelope struct {
		Data []rawCategory `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	var bare []rawCategory
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	return nil, fmt.Errorf("unrecognized categories response shape")
}
