package mapview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sharif_lostfound/map-core/internal/cluster"
	"sharif_lostfound/map-core/internal/geo"
	"sharif_lostfound/map-core/internal/metrics"
	"sharif_lostfound/map-core/internal/search"
)

// LoadState is the item view's load cycle.
type LoadState string

const (
	StateIdle    LoadState = "idle"
	StateLoading LoadState = "loading"
	StateLoaded  LoadState = "loaded"
)

// PickMode marks what the next map click means. The two picking modes are
// mutually exclusive.
type PickMode string

const (
	PickOff          PickMode = "off"
	PickFilterCenter PickMode = "filter_center"
	PickNewItem      PickMode = "new_item"
)

// Handoff is a clamped "create item here" point for the external
// item-creation flow. X is latitude, Y longitude, matching the item model.
type Handoff struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Searcher is the slice of the search client the controller needs.
type Searcher interface {
	ItemsByLocationPage(ctx context.Context, p search.LocationParams) ([]search.Item, search.Meta, error)
	ProductsPage(ctx context.Context, page, size int) ([]search.Item, search.Meta, error)
}

const (
	defaultPageSize      = 10
	defaultLocateTimeout = 15 * time.Second
	loadTimeout          = 30 * time.Second
)

// Options configures a Controller. Zero values get defaults; only Search is
// required.
type Options struct {
	Log           zerolog.Logger
	Search        Searcher
	Locator       Locator
	Metrics       *metrics.Metrics
	Bounds        geo.Bounds
	PageSize      int
	LocateTimeout time.Duration
	Now           func() time.Time
}

// Controller is the state machine behind one map view session. Every method
// takes the controller mutex; loads and geolocation run on goroutines and
// commit their results back under the same mutex.
type Controller struct {
	log           zerolog.Logger
	search        Searcher
	locator       Locator
	metrics       *metrics.Metrics
	bounds        geo.Bounds
	pageSize      int
	locateTimeout time.Duration
	now           func() time.Time

	mu         sync.Mutex
	closed     bool
	generation uint64

	state       LoadState
	draft       Filter
	applied     Filter
	filterOn    bool
	page        int
	hasNext     bool
	totalPages  int
	items       []search.Item
	pick        PickMode
	position    *Position
	message     string
	fieldErrors map[string]string

	locationNotice    string
	warnedOutOfBounds bool

	bg sync.WaitGroup
}

func New(opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.LocateTimeout <= 0 {
		opts.LocateTimeout = defaultLocateTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Bounds == (geo.Bounds{}) {
		opts.Bounds = geo.Campus()
	}
	return &Controller{
		log:           opts.Log,
		search:        opts.Search,
		locator:       opts.Locator,
		metrics:       opts.Metrics,
		bounds:        opts.Bounds,
		pageSize:      opts.PageSize,
		locateTimeout: opts.LocateTimeout,
		now:           opts.Now,
		state:         StateIdle,
		draft:         DefaultFilter(),
		applied:       DefaultFilter(),
		pick:          PickOff,
	}
}

// Mount starts the initial load and, when a locator is wired, the
// geolocation acquisition.
func (c *Controller) Mount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.startLoadLocked()
	if c.locator != nil {
		c.bg.Add(1)
		go c.acquireLocation()
	}
}

// Close marks the session unmounted. Any in-flight load or geolocation
// result is discarded on arrival.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.generation++
}

// Wait blocks until background loads and geolocation settle. Used by tests
// and graceful shutdown.
func (c *Controller) Wait() {
	c.bg.Wait()
}

// UpdateDraft applies a partial edit to the draft filter. Edits never touch
// the applied filter or trigger a query.
func (c *Controller) UpdateDraft(p DraftPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	p.applyTo(&c.draft)
	c.fieldErrors = nil
}

// Apply validates the draft and, on success, commits it atomically as the
// applied filter, resets to page 0 and reloads. On validation failure the
// field errors are recorded and no query is issued.
func (c *Controller) Apply() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if errs := c.draft.validate(); errs != nil {
		c.fieldErrors = errs
		return false
	}
	c.fieldErrors = nil
	if c.draft.LocationMode == LocationAroundPin && c.draft.Center != nil {
		pt := geo.Clamp(c.draft.Center.Lat, c.draft.Center.Lng, c.bounds)
		c.draft.Center = &pt
	}
	c.applied = c.draft.clone()
	c.filterOn = true
	c.page = 0
	c.startLoadLocked()
	return true
}

// Clear resets both filters to defaults and reloads the unfiltered listing.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.draft = DefaultFilter()
	c.applied = DefaultFilter()
	c.filterOn = false
	c.fieldErrors = nil
	c.page = 0
	c.startLoadLocked()
}

// NextPage advances one page when the current meta reports one.
func (c *Controller) NextPage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.hasNext {
		return false
	}
	c.page++
	c.startLoadLocked()
	return true
}

// PrevPage steps back one page; the page never goes negative.
func (c *Controller) PrevPage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.page == 0 {
		return false
	}
	c.page--
	c.startLoadLocked()
	return true
}

// EnterPick switches the click interpretation mode. Entering the
// filter-center pick forces the draft into around_pin.
func (c *Controller) EnterPick(mode PickMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pick = mode
	if mode == PickFilterCenter {
		c.draft.LocationMode = LocationAroundPin
	}
}

// Click handles a single map click. In filter-center pick mode it sets the
// draft center (clamped) and leaves pick mode without applying; in new-item
// pick mode it returns the clamped create-item handoff. Outside pick mode a
// single click does nothing.
func (c *Controller) Click(lat, lng float64) *Handoff {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	switch c.pick {
	case PickFilterCenter:
		pt := geo.Clamp(lat, lng, c.bounds)
		c.draft.Center = &pt
		c.pick = PickOff
		return nil
	case PickNewItem:
		pt := geo.Clamp(lat, lng, c.bounds)
		c.pick = PickOff
		return &Handoff{X: pt.Lat, Y: pt.Lng}
	default:
		return nil
	}
}

// DoubleClick starts item creation at the clicked point, clamped to bounds.
// Ignored while a pick mode is active.
func (c *Controller) DoubleClick(lat, lng float64) *Handoff {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pick != PickOff {
		return nil
	}
	pt := geo.Clamp(lat, lng, c.bounds)
	return &Handoff{X: pt.Lat, Y: pt.Lng}
}

// ReportPosition records a client-reported device position. An out-of-bounds
// position warns once per session; the point is kept either way.
func (c *Controller) ReportPosition(lat, lng float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.commitPositionLocked(Position{Lat: lat, Lng: lng})
}

func (c *Controller) commitPositionLocked(pos Position) {
	if !geo.Within(pos.Lat, pos.Lng, c.bounds) && !c.warnedOutOfBounds {
		c.warnedOutOfBounds = true
		c.locationNotice = "your location is outside the campus area"
	}
	c.position = &pos
}

// startLoadLocked begins one load generation. A later generation supersedes
// this one: the slower response is discarded on arrival.
func (c *Controller) startLoadLocked() {
	c.generation++
	gen := c.generation
	c.state = StateLoading
	c.message = ""

	filterOn := c.filterOn
	applied := c.applied.clone()
	page := c.page

	c.bg.Add(1)
	go c.load(gen, filterOn, applied, page)
}

func (c *Controller) load(gen uint64, filterOn bool, f Filter, page int) {
	defer c.bg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	var (
		items []search.Item
		meta  search.Meta
		err   error
	)
	if filterOn {
		items, meta, err = c.search.ItemsByLocationPage(ctx, f.params(page, c.pageSize, c.now()))
	} else {
		items, meta, err = c.search.ProductsPage(ctx, page, c.pageSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.generation {
		c.metrics.IncStaleDiscard()
		c.log.Debug().Uint64("generation", gen).Msg("discarding stale page response")
		return
	}

	c.state = StateLoaded
	if err != nil {
		c.log.Error().Err(err).Int("page", page).Msg("item page load failed")
		c.items = nil
		c.hasNext = false
		c.totalPages = 0
		c.message = "couldn't load items, please try again"
		return
	}
	c.items = items
	c.hasNext = meta.HasNext
	c.totalPages = meta.TotalPages
}

func (c *Controller) acquireLocation() {
	defer c.bg.Done()

	pos, err := c.locate(true)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			c.mu.Lock()
			if !c.closed {
				c.locationNotice = "location permission denied"
			}
			c.mu.Unlock()
			return
		}
		// One relaxed retry on timeout/unavailable, then give up silently.
		pos, err = c.locate(false)
		if err != nil {
			c.log.Debug().Err(err).Msg("geolocation unavailable")
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.commitPositionLocked(pos)
}

func (c *Controller) locate(highAccuracy bool) (Position, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.locateTimeout)
	defer cancel()
	return c.locator.Locate(ctx, highAccuracy)
}

// View is the projection handed to the HTTP layer.
type View struct {
	State        LoadState `json:"state"`
	Draft        Filter    `json:"draft"`
	Applied      Filter    `json:"applied"`
	FilterActive bool      `json:"filterActive"`

	Page       int  `json:"page"`
	Size       int  `json:"size"`
	HasNext    bool `json:"hasNext"`
	TotalPages int  `json:"totalPages"`

	Items    []search.Item     `json:"items"`
	Markers  []cluster.Marker  `json:"markers"`
	Clusters []cluster.Cluster `json:"clusters"`

	Pick           PickMode          `json:"pickMode"`
	Position       *Position         `json:"position,omitempty"`
	Message        string            `json:"message,omitempty"`
	FieldErrors    map[string]string `json:"fieldErrors,omitempty"`
	LocationNotice string            `json:"locationNotice,omitempty"`
}

// View renders the current state at the given zoom. Items are narrowed to
// the applied category selection before clustering; colors maps category
// slugs to display colors.
func (c *Controller) View(zoom float64, colors map[string]string) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	visible := c.items
	if c.filterOn && len(c.applied.CategoryIDs) > 0 {
		selected := make(map[int64]bool, len(c.applied.CategoryIDs))
		for _, id := range c.applied.CategoryIDs {
			selected[id] = true
		}
		visible = make([]search.Item, 0, len(c.items))
		for _, it := range c.items {
			if it.CategoryID != nil && selected[*it.CategoryID] {
				visible = append(visible, it)
			}
		}
	}
	projected := cluster.Build(visible, zoom, colors)

	items := append([]search.Item(nil), c.items...)
	if items == nil {
		items = []search.Item{}
	}
	return View{
		State:          c.state,
		Draft:          c.draft.clone(),
		Applied:        c.applied.clone(),
		FilterActive:   c.filterOn,
		Page:           c.page,
		Size:           c.pageSize,
		HasNext:        c.hasNext,
		TotalPages:     c.totalPages,
		Items:          items,
		Markers:        projected.Markers,
		Clusters:       projected.Clusters,
		Pick:           c.pick,
		Position:       c.position,
		Message:        c.message,
		FieldErrors:    c.fieldErrors,
		LocationNotice: c.locationNotice,
	}
}
