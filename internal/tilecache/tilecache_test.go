package tilecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sharif_lostfound/map-core/internal/store"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, st store.Store, opts Options) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	opts.Now = clock.now
	return New(zerolog.New(io.Discard), st, opts, nil), clock
}

func TestCache_TTLBoundary(t *testing.T) {
	c, clock := newTestCache(t, store.NewMemory(), Options{TTL: 60 * time.Second})
	ctx := context.Background()

	c.Set(ctx, "https://tiles/16/1/1.png", "data:image/png;base64,AAAA")

	clock.advance(60*time.Second - time.Millisecond)
	if _, ok := c.Get(ctx, "https://tiles/16/1/1.png"); !ok {
		t.Fatal("entry should still be fresh just inside the TTL")
	}

	clock.advance(2 * time.Millisecond)
	if _, ok := c.Get(ctx, "https://tiles/16/1/1.png"); ok {
		t.Fatal("entry should be treated as absent past the TTL")
	}
}

func TestCache_BoundedSizeEvictsLRU(t *testing.T) {
	const max = 5
	c, _ := newTestCache(t, store.NewMemory(), Options{MaxEntries: max})
	ctx := context.Background()

	for i := 0; i < max+5; i++ {
		c.Set(ctx, fmt.Sprintf("https://tiles/16/%d/0.png", i), "data:image/png;base64,AAAA")
	}

	if got := c.Len(ctx); got != max {
		t.Fatalf("expected %d entries after inserting %d, got %d", max, max+5, got)
	}

	// The oldest five are gone, the newest five remain.
	for i := 0; i < 5; i++ {
		if _, ok := c.Get(ctx, fmt.Sprintf("https://tiles/16/%d/0.png", i)); ok {
			t.Fatalf("expected key %d to be evicted", i)
		}
	}
	for i := 5; i < max+5; i++ {
		if _, ok := c.Get(ctx, fmt.Sprintf("https://tiles/16/%d/0.png", i)); !ok {
			t.Fatalf("expected key %d to survive", i)
		}
	}
}

func TestCache_SetRefreshesRecency(t *testing.T) {
	c, _ := newTestCache(t, store.NewMemory(), Options{MaxEntries: 2})
	ctx := context.Background()

	c.Set(ctx, "a", "data:image/png;base64,AAAA")
	c.Set(ctx, "b", "data:image/png;base64,AAAA")
	c.Set(ctx, "a", "data:image/png;base64,BBBB") // a becomes most recent
	c.Set(ctx, "c", "data:image/png;base64,AAAA") // evicts b

	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatal("expected b to be the LRU victim")
	}
	if data, ok := c.Get(ctx, "a"); !ok || data != "data:image/png;base64,BBBB" {
		t.Fatalf("expected refreshed a to survive, got ok=%v data=%q", ok, data)
	}
}

func TestCache_CorruptBlobIsEmptyCache(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	if err := st.Set(ctx, DefaultBlobKey, []byte("{not json")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, _ := newTestCache(t, st, Options{})
	if _, ok := c.Get(ctx, "anything"); ok {
		t.Fatal("corrupt blob must read as an empty cache")
	}

	// And the cache keeps working afterwards.
	c.Set(ctx, "a", "data:image/png;base64,AAAA")
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Fatal("cache should recover after a corrupt blob")
	}
}

func TestCache_WriteFailureIsSilent(t *testing.T) {
	st := store.NewMemory()
	st.SetErr = errors.New("quota exceeded")

	c, _ := newTestCache(t, st, Options{})
	ctx := context.Background()

	// Must not panic or error; the write is shed entry by entry and abandoned.
	c.Set(ctx, "a", "data:image/png;base64,AAAA")

	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("nothing should have been persisted")
	}
}

func TestFetcher_ServesFromNetworkThenCache(t *testing.T) {
	var upstreamHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits++
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("tile-bytes"))
	}))
	defer srv.Close()

	c, _ := newTestCache(t, store.NewMemory(), Options{})
	f := NewFetcher(zerolog.New(io.Discard), c, srv.URL+"/{z}/{x}/{y}.png", srv.Client(), nil)

	ctx := context.Background()

	raw, contentType, err := f.Tile(ctx, 16, 10, 20)
	if err != nil {
		t.Fatalf("first tile: %v", err)
	}
	if string(raw) != "tile-bytes" || contentType != "image/png" {
		t.Fatalf("unexpected tile payload %q (%s)", raw, contentType)
	}
	f.Wait()

	raw, _, err = f.Tile(ctx, 16, 10, 20)
	if err != nil {
		t.Fatalf("second tile: %v", err)
	}
	if string(raw) != "tile-bytes" {
		t.Fatalf("unexpected cached payload %q", raw)
	}
	if upstreamHits != 1 {
		t.Fatalf("expected exactly one upstream fetch, got %d", upstreamHits)
	}
}

func TestFetcher_UpstreamErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := newTestCache(t, store.NewMemory(), Options{})
	f := NewFetcher(zerolog.New(io.Discard), c, srv.URL+"/{z}/{x}/{y}.png", srv.Client(), nil)

	if _, _, err := f.Tile(context.Background(), 16, 0, 0); err == nil {
		t.Fatal("expected an error for upstream 502")
	}
}

func TestDataURL_RoundTrip(t *testing.T) {
	enc := EncodeDataURL("image/webp", []byte{0x52, 0x49, 0x46, 0x46})
	contentType, raw, err := DecodeDataURL(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if contentType != "image/webp" {
		t.Fatalf("expected image/webp, got %s", contentType)
	}
	if string(raw) != "RIFF" {
		t.Fatalf("unexpected payload %q", raw)
	}

	if _, _, err := DecodeDataURL("https://not-a-data-url"); err == nil {
		t.Fatal("expected error for non data url")
	}
}
