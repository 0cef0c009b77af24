package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sharif_lostfound/map-core/internal/metrics"
)

// TokenSource supplies the bearer token for upstream calls. Auth is an
// external collaborator; a nil source or empty token means anonymous access.
type TokenSource func() string

// Client executes item queries against the lost-and-found backend.
type Client struct {
	log     zerolog.Logger
	http    *http.Client
	baseURL string
	token   TokenSource
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewClient(log zerolog.Logger, baseURL string, httpClient *http.Client, token TokenSource, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		log:     log,
		http:    httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		metrics: m,
		now:     time.Now,
	}
}

// LocationParams describes one filtered page query. Lat, Lon and RadiusKm
// form a trio: the caller provides all three or none — a partial trio is a
// caller contract violation, not something the client validates away.
type LocationParams struct {
	Name        string
	Type        string
	CategoryIDs []int64
	From        *time.Time
	To          *time.Time
	Lat         *float64
	Lon         *float64
	RadiusKm    *float64
	Page        int
	Size        int
}

// ItemsByLocationPage runs one filtered search query and normalizes the
// response page.
func (c *Client) ItemsByLocationPage(ctx context.Context, p LocationParams) ([]Item, Meta, error) {
	q := url.Values{}
	if p.Name != "" {
		q.Set("name", p.Name)
	}
	if p.Type != "" {
		q.Set("type", p.Type)
	}
	if len(p.CategoryIDs) > 0 {
		ids := make([]string, 0, len(p.CategoryIDs))
		for _, id := range p.CategoryIDs {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		q.Set("categoryIds", strings.Join(ids, ","))
	}
	if p.From != nil {
		q.Set("from", p.From.UTC().Format(time.RFC3339))
	}
	if p.To != nil {
		q.Set("to", p.To.UTC().Format(time.RFC3339))
	}
	if p.Lat != nil && p.Lon != nil && p.RadiusKm != nil {
		q.Set("lat", strconv.FormatFloat(*p.Lat, 'f', -1, 64))
		q.Set("lon", strconv.FormatFloat(*p.Lon, 'f', -1, 64))
		q.Set("radiusKm", strconv.FormatFloat(*p.RadiusKm, 'f', -1, 64))
	}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("size", strconv.Itoa(p.Size))

	items, meta, err := c.fetchPage(ctx, "location", "/api/items/search/location?"+q.Encode(), p.Page, p.Size)
	return items, meta, err
}

// ProductsPage runs one unfiltered listing query, used when no filter is
// applied.
func (c *Client) ProductsPage(ctx context.Context, pageNum, size int) ([]Item, Meta, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(pageNum))
	q.Set("size", strconv.Itoa(size))
	return c.fetchPage(ctx, "listing", "/api/items?"+q.Encode(), pageNum, size)
}

// ItemByID fetches and normalizes a single item.
func (c *Client) ItemByID(ctx context.Context, id string) (Item, error) {
	body, err := c.get(ctx, "/api/items/"+url.PathEscape(id)+"/")
	if err != nil {
		return Item{}, err
	}

	p, err := decodePage(body)
	if err != nil {
		return Item{}, err
	}
	if len(p.items) == 0 {
		return Item{}, fmt.Errorf("item %s: empty response", id)
	}
	return Normalize(p.items[0], c.now()), nil
}

func (c *Client) fetchPage(ctx context.Context, kind, path string, pageNum, size int) ([]Item, Meta, error) {
	start := c.now()
	body, err := c.get(ctx, path)
	c.metrics.ObserveSearch(kind, err, time.Since(start))
	if err != nil {
		return nil, Meta{}, err
	}

	p, err := decodePage(body)
	if err != nil {
		return nil, Meta{}, err
	}

	items := make([]Item, 0, len(p.items))
	now := c.now()
	for _, raw := range p.items {
		items = append(items, Normalize(raw, now))
	}

	meta := decodeMeta(p, pageNum, size, len(items))
	if meta.HasNextInferred {
		c.log.Debug().Int("page", pageNum).Int("returned", len(items)).
			Msg("pagination meta missing, hasNext inferred from returned count")
	}
	return items, meta, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return body, nil
}
