// Package tilecache keeps recently fetched map tiles as inlined image data in
// the persistent blob store, bounded by a TTL and a maximum entry count.
//
// The cache is strictly best-effort: every read or parse failure of the
// persisted blob is treated as an empty cache, and a failed write is retried
// by shedding oldest entries before being abandoned. Tile rendering never
// depends on it.
package tilecache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sharif_lostfound/map-core/internal/metrics"
	"sharif_lostfound/map-core/internal/store"
)

const (
	// DefaultBlobKey is the well-known storage key; the blob under it is the
	// externally inspectable cache shape.
	DefaultBlobKey = "lf_tile_cache_v1"

	DefaultTTL        = 60 * time.Second
	DefaultMaxEntries = 80
)

// Entry is one cached tile: the inlined image data and its write timestamp
// in epoch millis.
type Entry struct {
	Data string `json:"data"`
	TS   int64  `json:"ts"`
}

// blob is the persisted shape: items keyed by tile URL plus the eviction
// order, oldest first. Order holds exactly the keys present in Items.
type blob struct {
	Items map[string]Entry `json:"items"`
	Order []string         `json:"order"`
}

// Options tunes a Cache. Zero values fall back to the defaults above.
type Options struct {
	BlobKey    string
	TTL        time.Duration
	MaxEntries int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Cache is the TTL + LRU tile cache. Safe for concurrent use; concurrent
// writers race on the shared blob with last-write-wins semantics, which is
// acceptable because tile content is immutable per URL.
type Cache struct {
	log     zerolog.Logger
	store   store.Store
	metrics *metrics.Metrics

	key string
	ttl time.Duration
	max int
	now func() time.Time

	mu sync.Mutex
}

func New(log zerolog.Logger, st store.Store, opts Options, m *metrics.Metrics) *Cache {
	key := opts.BlobKey
	if key == "" {
		key = DefaultBlobKey
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	max := opts.MaxEntries
	if max <= 0 {
		max = DefaultMaxEntries
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Cache{
		log:     log,
		store:   st,
		metrics: m,
		key:     key,
		ttl:     ttl,
		max:     max,
		now:     now,
	}
}

// Get returns the cached data for a tile URL. A stale entry is a miss.
func (c *Cache) Get(ctx context.Context, url string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.load(ctx)
	entry, ok := b.Items[url]
	if !ok {
		return "", false
	}
	if c.now().UnixMilli()-entry.TS > c.ttl.Milliseconds() {
		return "", false
	}
	return entry.Data, true
}

// Set inserts or refreshes an entry, moves it to the most-recently-used end,
// prunes, and persists. Persistence failures are absorbed.
func (c *Cache) Set(ctx context.Context, url, data string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.load(ctx)
	b.Items[url] = Entry{Data: data, TS: c.now().UnixMilli()}
	b.Order = removeKey(b.Order, url)
	b.Order = append(b.Order, url)

	c.persist(ctx, b)
}

// Len reports the number of live (unexpired) entries.
func (c *Cache) Len(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.load(ctx)
	c.prune(b)
	return len(b.Items)
}

// load reads the persisted blob, failing open to an empty cache on any
// storage or parse error, then prunes expired and excess entries.
func (c *Cache) load(ctx context.Context) *blob {
	b := &blob{Items: make(map[string]Entry)}

	raw, err := c.store.Get(ctx, c.key)
	if err != nil {
		return b
	}
	var parsed blob
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.log.Debug().Err(err).Msg("tile cache blob unreadable, starting empty")
		return b
	}
	if parsed.Items != nil {
		b.Items = parsed.Items
	}
	b.Order = parsed.Order

	// Drop order entries pointing at nothing, keep order and items in sync.
	order := b.Order[:0]
	for _, k := range b.Order {
		if _, ok := b.Items[k]; ok {
			order = append(order, k)
		}
	}
	b.Order = order

	c.prune(b)
	return b
}

// prune drops expired entries, then evicts least-recently-used entries until
// the cache fits its capacity.
func (c *Cache) prune(b *blob) {
	now := c.now().UnixMilli()
	evicted := 0

	order := b.Order[:0]
	for _, k := range b.Order {
		entry, ok := b.Items[k]
		if !ok || now-entry.TS > c.ttl.Milliseconds() {
			delete(b.Items, k)
			evicted++
			continue
		}
		order = append(order, k)
	}
	b.Order = order

	for len(b.Order) > c.max {
		oldest := b.Order[0]
		b.Order = b.Order[1:]
		delete(b.Items, oldest)
		evicted++
	}

	c.metrics.AddTileCacheEvictions(evicted)
}

// persist prunes and writes the blob. On write failure it sheds oldest
// entries one at a time and retries until the write succeeds or the cache is
// empty; a final failure is abandoned silently.
func (c *Cache) persist(ctx context.Context, b *blob) {
	c.prune(b)

	for {
		raw, err := json.Marshal(b)
		if err == nil {
			if err = c.store.Set(ctx, c.key, raw); err == nil {
				return
			}
		}
		if len(b.Order) == 0 {
			c.log.Debug().Err(err).Msg("tile cache write abandoned")
			return
		}
		oldest := b.Order[0]
		b.Order = b.Order[1:]
		delete(b.Items, oldest)
		c.metrics.AddTileCacheEvictions(1)
	}
}

func removeKey(order []string, key string) []string {
	out := order[:0]
	for _, k := range order {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}
