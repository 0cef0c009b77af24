// Package mapview holds the per-session map controller: filter draft/applied
// state, pagination, pick modes, geolocation, and the load cycle against the
// item search client.
package mapview

import (
	"time"

	"sharif_lostfound/map-core/internal/geo"
	"sharif_lostfound/map-core/internal/search"
)

// LocationMode selects whether the filter is constrained to a circle around
// a pinned center.
type LocationMode string

const (
	LocationNone      LocationMode = "none"
	LocationAroundPin LocationMode = "around_pin"
)

// Date presets for the from/to windows.
const (
	PresetAny    = "any"
	PresetToday  = "today"
	Preset7Days  = "7d"
	Preset30Days = "30d"
	Preset90Days = "90d"
)

// Filter is one filter snapshot. The controller keeps two values of it: the
// draft being edited and the applied copy behind the last committed query.
type Filter struct {
	Name           string       `json:"name"`
	Type           string       `json:"type"`
	CategoryIDs    []int64      `json:"categoryIds"`
	FromPreset     string       `json:"fromPreset"`
	ToPreset       string       `json:"toPreset"`
	LocationMode   LocationMode `json:"locationMode"`
	Center         *geo.Point   `json:"center"`
	DiameterMeters float64      `json:"diameterMeters"`
}

// DefaultFilter is the unfiltered state the draft resets to.
func DefaultFilter() Filter {
	return Filter{
		FromPreset:   PresetAny,
		ToPreset:     PresetAny,
		LocationMode: LocationNone,
	}
}

// clone deep-copies the filter so draft and applied never share slices.
func (f Filter) clone() Filter {
	out := f
	if f.CategoryIDs != nil {
		out.CategoryIDs = append([]int64(nil), f.CategoryIDs...)
	}
	if f.Center != nil {
		c := *f.Center
		out.Center = &c
	}
	return out
}

// validate checks the around_pin constraints. Returned field errors are
// user-facing and block the apply locally.
func (f Filter) validate() map[string]string {
	errs := map[string]string{}
	if f.LocationMode == LocationAroundPin {
		if f.DiameterMeters <= 0 {
			errs["diameterMeters"] = "diameter must be greater than zero"
		}
		if f.Center == nil {
			errs["center"] = "pick a center point on the map"
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// params translates the applied filter and page into one upstream query.
func (f Filter) params(page, size int, now time.Time) search.LocationParams {
	p := search.LocationParams{
		Name:        f.Name,
		Type:        f.Type,
		CategoryIDs: f.CategoryIDs,
		From:        presetFrom(f.FromPreset, now),
		To:          presetTo(f.ToPreset, now),
		Page:        page,
		Size:        size,
	}
	if f.LocationMode == LocationAroundPin && f.Center != nil {
		lat, lng := f.Center.Lat, f.Center.Lng
		radius := f.DiameterMeters / 2000
		p.Lat, p.Lon, p.RadiusKm = &lat, &lng, &radius
	}
	return p
}

// presetFrom resolves a date preset to a lower bound at the start of the
// target day, nil for "any".
func presetFrom(preset string, now time.Time) *time.Time {
	base, ok := presetBase(preset, now)
	if !ok {
		return nil
	}
	y, m, d := base.Date()
	t := time.Date(y, m, d, 0, 0, 0, 0, base.Location())
	return &t
}

// presetTo resolves a date preset to an upper bound at the end of the target
// day (23:59:59), nil for "any". A to-bound at the start of the day would
// exclude everything reported on the day itself.
func presetTo(preset string, now time.Time) *time.Time {
	base, ok := presetBase(preset, now)
	if !ok {
		return nil
	}
	y, m, d := base.Date()
	t := time.Date(y, m, d, 23, 59, 59, 0, base.Location())
	return &t
}

func presetBase(preset string, now time.Time) (time.Time, bool) {
	switch preset {
	case PresetToday:
		return now, true
	case Preset7Days:
		return now.AddDate(0, 0, -7), true
	case Preset30Days:
		return now.AddDate(0, 0, -30), true
	case Preset90Days:
		return now.AddDate(0, 0, -90), true
	default:
		return time.Time{}, false
	}
}

// DraftPatch is a partial draft update; nil fields are left untouched.
type DraftPatch struct {
	Name           *string       `json:"name"`
	Type           *string       `json:"type"`
	CategoryIDs    *[]int64      `json:"categoryIds"`
	FromPreset     *string       `json:"fromPreset"`
	ToPreset       *string       `json:"toPreset"`
	LocationMode   *LocationMode `json:"locationMode"`
	Center         *geo.Point    `json:"center"`
	DiameterMeters *float64      `json:"diameterMeters"`
}

func (p DraftPatch) applyTo(f *Filter) {
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.Type != nil {
		f.Type = *p.Type
	}
	if p.CategoryIDs != nil {
		f.CategoryIDs = append([]int64(nil), (*p.CategoryIDs)...)
	}
	if p.FromPreset != nil {
		f.FromPreset = *p.FromPreset
	}
	if p.ToPreset != nil {
		f.ToPreset = *p.ToPreset
	}
	if p.LocationMode != nil {
		f.LocationMode = *p.LocationMode
	}
	if p.Center != nil {
		c := *p.Center
		f.Center = &c
	}
	if p.DiameterMeters != nil {
		f.DiameterMeters = *p.DiameterMeters
	}
}
