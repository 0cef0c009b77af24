// Package search talks to the lost-and-found backend: it builds paginated,
// filterable location-search queries and normalizes the loosely-shaped
// records the backend returns into one canonical item shape.
package search

// Item is the canonical, post-normalization record every downstream consumer
// (state machine, clustering, views) works with.
type Item struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CategoryID    *int64 `json:"categoryId"`
	Category      string `json:"category"`
	CategoryLabel string `json:"categoryLabel"`

	// Type is LOST or FOUND; Status is the backend lifecycle state
	// (e.g. ACTIVE, DELIVERED).
	Type   string `json:"type"`
	Status string `json:"status"`

	// X is latitude, Y is longitude. Either both are set or both are nil;
	// an item with a single coordinate has no location for map purposes.
	X *float64 `json:"x"`
	Y *float64 `json:"y"`

	CreatedAt      string `json:"createdAt"`
	RelatedProfile string `json:"relatedProfile"`
	ReporterID     string `json:"reporterId,omitempty"`

	// Image is the raw encoded form; decoding policy belongs to the
	// presentation layer.
	Image *string `json:"image,omitempty"`

	// Raw retains the original backend payload for lossless round-trips.
	Raw map[string]any `json:"raw,omitempty"`
}

// HasLocation reports whether the item carries a usable coordinate pair.
func (i Item) HasLocation() bool {
	return i.X != nil && i.Y != nil
}

// Meta is the pagination envelope for one fetched page.
type Meta struct {
	Page       int  `json:"page"`
	Size       int  `json:"size"`
	HasNext    bool `json:"hasNext"`
	TotalPages int  `json:"totalPages"`

	// HasNextInferred marks pages where the backend omitted pagination
	// metadata and hasNext fell back to the returned-count heuristic.
	// The heuristic is not authoritative; a page that happens to be exactly
	// full reports a next page that may be empty.
	HasNextInferred bool `json:"-"`
}
